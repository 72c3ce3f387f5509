package sqlload

import (
	"github.com/jjeffery/errors"
	"github.com/jjeffery/kv"
)

// ErrClosed is returned when a session is used after it has been closed.
var ErrClosed = errors.New("session is closed")

// ConfigurationError is returned immediately, without scheduling
// any load, when a request names an unknown kind or relation, or
// supplies a key that does not fit the kind. It is also returned when
// a registry fails validation.
type ConfigurationError struct {
	Kind     string
	Relation string
	Msg      string
}

func (e *ConfigurationError) Error() string {
	var keyvals []interface{}
	if e.Kind != "" {
		keyvals = append(keyvals, "kind", e.Kind)
	}
	if e.Relation != "" {
		keyvals = append(keyvals, "relation", e.Relation)
	}
	if len(keyvals) == 0 {
		return e.Msg
	}
	return e.Msg + " " + kv.List(keyvals).String()
}

// AdapterError is returned to every request in a batch when the
// adapter fails to fetch the batch. Adapter errors are not cached,
// so a later request for the same thing will try again.
type AdapterError struct {
	// Batch is the name of the batch class, eg "user" or "user/posts".
	Batch string

	// Keys are the keys that the adapter was asked to fetch.
	Keys []interface{}

	// Err is the error returned by the adapter.
	Err error
}

func (e *AdapterError) Error() string {
	keyvals := []interface{}{"batch", e.Batch, "keys", len(e.Keys)}
	msg := "adapter failed " + kv.List(keyvals).String()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Cause returns the error returned by the adapter.
func (e *AdapterError) Cause() error {
	return e.Err
}

// Unwrap returns the error returned by the adapter.
func (e *AdapterError) Unwrap() error {
	return e.Err
}

func configError(kind, relation, msg string) *ConfigurationError {
	return &ConfigurationError{Kind: kind, Relation: relation, Msg: msg}
}
