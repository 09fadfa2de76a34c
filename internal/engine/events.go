package engine

// EventSink receives engine events for delivery to observers. Emit must not
// block the turn loop for long; delivery is best-effort and observers that
// are not connected at emit time receive nothing.
type EventSink interface {
	Emit(event string, payload any)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Emit(string, any) {}

// MultiSink fans events out to several sinks in order.
type MultiSink []EventSink

func (m MultiSink) Emit(event string, payload any) {
	for _, s := range m {
		s.Emit(event, payload)
	}
}
