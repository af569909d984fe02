package actor

import "time"

// Metrics receives actor runtime measurements. Implementations must be safe
// for concurrent use.
type Metrics interface {
	MessageProcessed(msgType string, duration time.Duration, success bool)
	MessagePanic(msgType string)
	InboxDepth(id ActorID, depth int)
}

type nopMetrics struct{}

func (nopMetrics) MessageProcessed(string, time.Duration, bool) {}
func (nopMetrics) MessagePanic(string)                          {}
func (nopMetrics) InboxDepth(ActorID, int)                      {}

// NopMetrics returns a Metrics that discards everything.
func NopMetrics() Metrics { return nopMetrics{} }
