// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
)

// EventName identifies a named orchestrator lifecycle event.
type EventName string

const (
	EventSprintStarted    EventName = "sprint_started"
	EventLoop3IterDone    EventName = "loop3_iteration_done"
	EventConfidenceGate   EventName = "confidence_gate_evaluated"
	EventLoop2IterDone    EventName = "loop2_iteration_done"
	EventConsensusGate    EventName = "consensus_gate_evaluated"
	EventFeedbackInjected EventName = "feedback_injected"
	EventSprintTerminal   EventName = "sprint_terminal"
	EventPhaseTerminal    EventName = "phase_terminal"
	EventEpicTerminal     EventName = "epic_terminal"
	EventCircuitTripped   EventName = "circuit_tripped"
)

// Event is one structured fact emitted by an orchestrator. Sink
// implementations decide how to render it (span event, log line, metric);
// the orchestrator core never depends on a specific sink.
type Event struct {
	Name   EventName
	Fields map[string]any
}

// Sink receives orchestrator lifecycle events. This interface replaces a
// callback/listener registration pattern: orchestrators hold one Sink and
// call Emit, rather than exposing Subscribe/Unsubscribe methods that couple
// them to their observers' lifecycles.
type Sink interface {
	Emit(ctx context.Context, ev Event)
}

// SlogSink renders events as structured log lines via log/slog, the same
// key-value logging idiom used throughout the coordinator and agent
// packages.
type SlogSink struct {
	log *slog.Logger
}

// NewSlogSink wraps a *slog.Logger (slog.Default() if nil) as a Sink.
func NewSlogSink(log *slog.Logger) *SlogSink {
	if log == nil {
		log = slog.Default()
	}
	return &SlogSink{log: log}
}

func (s *SlogSink) Emit(ctx context.Context, ev Event) {
	args := make([]any, 0, len(ev.Fields)*2+2)
	args = append(args, "event", string(ev.Name))
	for k, v := range ev.Fields {
		args = append(args, k, v)
	}
	s.log.InfoContext(ctx, "cfn event", args...)
}

// TracingSink renders events as span events on the current context's OTel
// span, via AddEvent — used alongside SlogSink, not instead of it, since
// traces and logs serve different consumers.
type TracingSink struct {
	tracerName string
}

// NewTracingSink builds a Sink that records events as span events on
// whatever span is active in the context passed to Emit.
func NewTracingSink(tracerName string) *TracingSink {
	return &TracingSink{tracerName: tracerName}
}

func (s *TracingSink) Emit(ctx context.Context, ev Event) {
	attrs := make([]attribute.KeyValue, 0, len(ev.Fields))
	for k, v := range ev.Fields {
		attrs = append(attrs, attribute.String(k, fmt.Sprintf("%v", v)))
	}
	AddEvent(ctx, string(ev.Name), attrs...)
}

// MultiSink fans one Emit call out to several sinks, letting a caller wire
// both SlogSink and TracingSink without the core knowing there is more than
// one consumer.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink constructs a Sink that forwards to all of sinks in order.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Emit(ctx context.Context, ev Event) {
	for _, s := range m.sinks {
		s.Emit(ctx, ev)
	}
}
