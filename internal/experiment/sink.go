package experiment

import (
	"context"

	"activelearn/internal/model"
)

// MetricsSink receives records as the runner produces them.
type MetricsSink interface {
	RecordEpoch(ctx context.Context, m model.EpochMetrics) error
	RecordRound(ctx context.Context, r model.RoundResult) error
}

type sinkKey struct{}

// WithSink returns a context whose runs forward their records to sink.
func WithSink(ctx context.Context, sink MetricsSink) context.Context {
	return context.WithValue(ctx, sinkKey{}, sink)
}

func sinkFrom(ctx context.Context) MetricsSink {
	sink, _ := ctx.Value(sinkKey{}).(MetricsSink)
	return sink
}

// SinkFuncs adapts plain functions to MetricsSink. Nil fields are skipped.
type SinkFuncs struct {
	Epoch func(model.EpochMetrics)
	Round func(model.RoundResult)
}

func (s SinkFuncs) RecordEpoch(_ context.Context, m model.EpochMetrics) error {
	if s.Epoch != nil {
		s.Epoch(m)
	}
	return nil
}

func (s SinkFuncs) RecordRound(_ context.Context, r model.RoundResult) error {
	if s.Round != nil {
		s.Round(r)
	}
	return nil
}
