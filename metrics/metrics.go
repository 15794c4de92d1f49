package metrics

import "time"

// Event names recorded by the gate and the reconciliation worker.
const (
	EventChallenge          = "challenge"
	EventPassthrough        = "passthrough"
	EventVerify             = "verify"
	EventSettle             = "settle"
	EventFulfilledUnsettled = "fulfilled_unsettled"
	EventReconciled         = "reconciled"
	EventSessionHit         = "session_hit"
)

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}
