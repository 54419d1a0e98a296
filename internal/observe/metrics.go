// Package observe records agent activity as OpenTelemetry metrics and
// serves them in Prometheus text format.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/rbright/parlando/internal/fsm"
	"github.com/rbright/parlando/internal/session"
)

const meterName = "github.com/rbright/parlando"

// Stage names used on the stage duration histogram.
const (
	StageCapture = "capture"
	StageSTT     = "stt"
	StageLLM     = "llm"
	StageTTS     = "tts"
)

// latencyBuckets are in seconds; local inference dominates the upper end.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30, 60,
}

// Metrics holds the instruments. It implements session.Observer and
// agent.ToolObserver.
type Metrics struct {
	Turns           metric.Int64Counter
	ModeTransitions metric.Int64Counter
	StageDuration   metric.Float64Histogram
	ToolCalls       metric.Int64Counter
	ToolDuration    metric.Float64Histogram
}

func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Turns, err = m.Int64Counter("parlando.turns",
		metric.WithDescription("Listen cycles by outcome and mode."),
	); err != nil {
		return nil, err
	}
	if met.ModeTransitions, err = m.Int64Counter("parlando.mode_transitions",
		metric.WithDescription("Mode changes by source, target, and reason."),
	); err != nil {
		return nil, err
	}
	if met.StageDuration, err = m.Float64Histogram("parlando.stage.duration",
		metric.WithDescription("Latency of each blocking stage of a cycle."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("parlando.tool.calls",
		metric.WithDescription("Tool invocations by tool name."),
	); err != nil {
		return nil, err
	}
	if met.ToolDuration, err = m.Float64Histogram("parlando.tool.duration",
		metric.WithDescription("Latency of tool invocations."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	return met, nil
}

func (m *Metrics) ModeChanged(from fsm.Mode, to fsm.Mode, reason fsm.Event) {
	m.ModeTransitions.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
		attribute.String("reason", string(reason)),
	))
}

func (m *Metrics) TurnFinished(turn session.Turn) {
	ctx := context.Background()
	m.Turns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", string(turn.Outcome)),
		attribute.String("mode", string(turn.Mode)),
	))

	stages := []struct {
		name string
		d    time.Duration
	}{
		{StageCapture, turn.Timings.Capture},
		{StageSTT, turn.Timings.Transcribe},
		{StageLLM, turn.Timings.Reason},
		{StageTTS, turn.Timings.Speak},
	}
	for _, s := range stages {
		if s.d <= 0 {
			continue
		}
		m.StageDuration.Record(ctx, s.d.Seconds(), metric.WithAttributes(attribute.String("stage", s.name)))
	}
}

func (m *Metrics) ToolInvoked(name string, elapsed time.Duration) {
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.String("tool", name))
	m.ToolCalls.Add(ctx, 1, attrs)
	m.ToolDuration.Record(ctx, elapsed.Seconds(), attrs)
}
