package sqlload

import (
	"github.com/jjeffery/kv"
)

// Logger is an interface for a logger that can be supplied
// to a session to log batch activity.
//
// The Logger type in the standard library package "log" implements
// this interface.
type Logger interface {
	Print(v ...interface{})
}

// observer receives loader activity and passes it on to
// the session's logger and metrics.
type observer struct {
	id      string
	logger  Logger
	metrics *Metrics
}

func (o *observer) CacheHit(batch string) {
	if o.metrics != nil {
		o.metrics.CacheHit(batch)
	}
}

func (o *observer) Dispatched(batch string, keys int) {
	if o.logger != nil {
		o.logger.Print("dispatch batch ", kv.List{"session", o.id, "batch", batch, "keys", keys}.String())
	}
	if o.metrics != nil {
		o.metrics.Dispatched(batch, keys)
	}
}

func (o *observer) Settled(batch string, keys int, err error) {
	if o.logger != nil {
		keyvals := kv.List{"session", o.id, "batch", batch, "keys", keys}
		if err != nil {
			keyvals = append(keyvals, "error", err.Error())
		}
		o.logger.Print("settle batch ", keyvals.String())
	}
	if o.metrics != nil {
		o.metrics.Settled(batch, keys, err)
	}
}
