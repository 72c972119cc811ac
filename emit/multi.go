package emit

import "context"

// MultiEmitter fans an event out to every configured Emitter in order
// (spec.md §2 AMBIENT: logging and metrics sinks run side by side, neither
// replacing the other).
type MultiEmitter struct {
	Emitters []Emitter
}

// NewMultiEmitter returns a MultiEmitter wrapping emitters, skipping any nil
// entries so callers can pass an optional metrics sink unconditionally.
func NewMultiEmitter(emitters ...Emitter) *MultiEmitter {
	m := &MultiEmitter{}
	for _, e := range emitters {
		if e != nil {
			m.Emitters = append(m.Emitters, e)
		}
	}
	return m
}

func (m *MultiEmitter) Emit(event Event) {
	for _, e := range m.Emitters {
		e.Emit(event)
	}
}

func (m *MultiEmitter) EmitBatch(ctx context.Context, events []Event) error {
	for _, e := range m.Emitters {
		if err := e.EmitBatch(ctx, events); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiEmitter) Flush(ctx context.Context) error {
	for _, e := range m.Emitters {
		if err := e.Flush(ctx); err != nil {
			return err
		}
	}
	return nil
}
