package engine

import (
	"context"
	"errors"
	"fmt"

	"smc-systemv1/internal/model"
)

// NamedSink is one signal store. Status is used for lifecycle updates; when
// nil, Sink is used if it also implements model.SignalStatusWriter.
type NamedSink struct {
	Name   string
	Sink   model.SignalSink
	Status model.SignalStatusWriter
}

func (n NamedSink) statusWriter() model.SignalStatusWriter {
	if n.Status != nil {
		return n.Status
	}
	if w, ok := n.Sink.(model.SignalStatusWriter); ok {
		return w
	}
	return nil
}

// Sinks writes every signal and status update to all stores. A failing
// store does not stop the others; errors are joined.
type Sinks []NamedSink

func (s Sinks) SaveSignal(ctx context.Context, sig *model.Signal) error {
	var errs []error
	for _, n := range s {
		if n.Sink == nil {
			continue
		}
		if err := n.Sink.SaveSignal(ctx, sig); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (s Sinks) UpdateStatus(ctx context.Context, u model.StatusUpdate) error {
	var errs []error
	for _, n := range s {
		w := n.statusWriter()
		if w == nil {
			continue
		}
		if err := w.UpdateStatus(ctx, u); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name, err))
		}
	}
	return errors.Join(errs...)
}
