package sqlload

import "time"

// An Option provides optional configuration and is supplied when
// creating a new Session.
type Option func(sess *Session)

// WithNaming creates an option that sets the session's naming strategy.
func WithNaming(strategy NamingStrategy) Option {
	return func(sess *Session) {
		if strategy != nil {
			sess.naming = strategy
		}
	}
}

// WithLogger creates an option that logs batch activity to logger.
func WithLogger(logger Logger) Option {
	return func(sess *Session) {
		sess.logger = logger
	}
}

// WithMetrics creates an option that records batch activity in metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(sess *Session) {
		sess.metrics = metrics
	}
}

// WithWait creates an option that dispatches each batch once the wait
// period has elapsed after the first request was added to it. This suits
// hosts that issue requests from many goroutines. Without a wait period,
// batches are dispatched by Flush or when a thunk is called.
func WithWait(wait time.Duration) Option {
	return func(sess *Session) {
		sess.wait = wait
	}
}

// WithID creates an option that sets the session ID, which appears in
// log messages. The default is a random UUID.
func WithID(id string) Option {
	return func(sess *Session) {
		sess.id = id
	}
}
