// Package keycodec encodes key values into canonical strings, so that
// two keys that identify the same row always compare equal regardless
// of the Go type used to represent them.
package keycodec

import (
	"database/sql/driver"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/jjeffery/errors"
)

var (
	// ErrNull is returned when a key, or any part of a composite key, is nil.
	ErrNull = errors.New("key cannot be null")

	timeType = reflect.TypeOf(time.Time{})
)

// Encode returns the canonical encoding of v.
//
// Integers of any width encode identically, as do floating point values
// that hold an integral value, so a key read from the database as int64
// matches the same key supplied as an int. Byte slices encode the same as
// strings. A slice of interface{} is a composite key; a composite key
// with one element encodes the same as its only element.
func Encode(v interface{}) (string, error) {
	var sb strings.Builder
	if err := encode(&sb, v); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// MustEncode is like Encode but panics if v cannot be encoded.
func MustEncode(v interface{}) string {
	s, err := Encode(v)
	if err != nil {
		panic(err)
	}
	return s
}

func encode(sb *strings.Builder, v interface{}) error {
	switch t := v.(type) {
	case nil:
		return ErrNull
	case string:
		writeString(sb, t)
		return nil
	case []byte:
		if t == nil {
			return ErrNull
		}
		writeString(sb, string(t))
		return nil
	case int:
		writeInt(sb, int64(t))
		return nil
	case int64:
		writeInt(sb, t)
		return nil
	case int32:
		writeInt(sb, int64(t))
		return nil
	case float64:
		return writeFloat(sb, t)
	case bool:
		sb.WriteString("b:")
		sb.WriteString(strconv.FormatBool(t))
		return nil
	case time.Time:
		sb.WriteString("t:")
		sb.WriteString(t.UTC().Format(time.RFC3339Nano))
		return nil
	case []interface{}:
		return writeTuple(sb, t)
	case driver.Valuer:
		rv := reflect.ValueOf(t)
		if rv.Kind() == reflect.Ptr && rv.IsNil() {
			return ErrNull
		}
		dv, err := t.Value()
		if err != nil {
			return errors.Wrap(err, "cannot get key value").With("type", fmt.Sprintf("%T", v))
		}
		return encode(sb, dv)
	}
	return encodeValue(sb, reflect.ValueOf(v))
}

// encodeValue handles named types, pointers and anything else that
// did not match one of the common cases in encode.
func encodeValue(sb *strings.Builder, rv reflect.Value) error {
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return ErrNull
		}
		return encode(sb, rv.Elem().Interface())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		writeInt(sb, rv.Int())
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u <= math.MaxInt64 {
			writeInt(sb, int64(u))
			return nil
		}
		sb.WriteString("u:")
		sb.WriteString(strconv.FormatUint(u, 10))
		return nil
	case reflect.Float32, reflect.Float64:
		return writeFloat(sb, rv.Float())
	case reflect.String:
		writeString(sb, rv.String())
		return nil
	case reflect.Bool:
		sb.WriteString("b:")
		sb.WriteString(strconv.FormatBool(rv.Bool()))
		return nil
	case reflect.Slice:
		if rv.IsNil() {
			return ErrNull
		}
		switch rv.Type().Elem().Kind() {
		case reflect.Uint8:
			writeString(sb, string(rv.Bytes()))
			return nil
		case reflect.Interface:
			vals := make([]interface{}, rv.Len())
			for i := range vals {
				vals[i] = rv.Index(i).Interface()
			}
			return writeTuple(sb, vals)
		}
	case reflect.Struct:
		if rv.Type().ConvertibleTo(timeType) {
			return encode(sb, rv.Convert(timeType).Interface())
		}
	}
	if s, ok := rv.Interface().(fmt.Stringer); ok {
		writeString(sb, s.String())
		return nil
	}
	return errors.New("unsupported key type").With("type", rv.Type().String())
}

func writeTuple(sb *strings.Builder, vals []interface{}) error {
	if len(vals) == 0 {
		return errors.New("composite key cannot be empty")
	}
	if len(vals) == 1 {
		return encode(sb, vals[0])
	}
	sb.WriteByte('(')
	for i, v := range vals {
		if i > 0 {
			sb.WriteByte(',')
		}
		if err := encode(sb, v); err != nil {
			return err
		}
	}
	sb.WriteByte(')')
	return nil
}

func writeString(sb *strings.Builder, s string) {
	sb.WriteString("s:")
	sb.WriteString(strconv.Quote(s))
}

func writeInt(sb *strings.Builder, n int64) {
	sb.WriteString("i:")
	sb.WriteString(strconv.FormatInt(n, 10))
}

func writeFloat(sb *strings.Builder, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return errors.New("key cannot be NaN or infinite")
	}
	if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		writeInt(sb, int64(f))
		return nil
	}
	sb.WriteString("f:")
	sb.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	return nil
}
