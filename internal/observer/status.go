// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package observer provides a one-way status reporting sink for epic/phase
// progress, replacing a circular orchestrator<->status-file dependency: the
// EpicOrchestrator writes through a StatusObserver, and nothing downstream
// ever reads the observer back to influence orchestration decisions.
//
// Grounded on pkg/coordinator.Coordinator.Sync, which already logs and
// prints a checkmark-prefixed human-readable status line for each completed
// step; generalized here from a fixed five-step sync sequence to an
// arbitrary sequence of epic/phase/sprint status transitions.
package observer

import (
	"fmt"
	"io"
	"log/slog"

	"cfnloop/pkg/cfntypes"
)

// marker returns the glyph used for each status in the rendered status line.
func marker(s cfntypes.Status) string {
	switch s {
	case cfntypes.StatusNotStarted:
		return "❌"
	case cfntypes.StatusInProgress:
		return "🔄"
	case cfntypes.StatusComplete:
		return "✅"
	case cfntypes.StatusFailed, cfntypes.StatusBlocked:
		return "✗"
	default:
		return "?"
	}
}

// StatusObserver receives status transitions. It has no methods that let an
// orchestrator read back what it previously wrote.
type StatusObserver interface {
	ObserveEpic(epicID, name string, status cfntypes.Status)
	ObservePhase(epicID, phaseID, name string, status cfntypes.Status)
	ObserveSprint(epicID, phaseID, sprintID, name string, status cfntypes.Status)
}

// WriterObserver renders status lines to an io.Writer (typically stdout or
// a log file) and to a structured logger, matching the print-and-log-both
// idiom in Coordinator.Sync.
type WriterObserver struct {
	out io.Writer
	log *slog.Logger
}

// NewWriterObserver constructs a WriterObserver. A nil logger falls back to
// slog.Default().
func NewWriterObserver(out io.Writer, log *slog.Logger) *WriterObserver {
	if log == nil {
		log = slog.Default()
	}
	return &WriterObserver{out: out, log: log}
}

func (w *WriterObserver) ObserveEpic(epicID, name string, status cfntypes.Status) {
	fmt.Fprintf(w.out, "%s epic %s (%s): %s\n", marker(status), epicID, name, status)
	w.log.Info("epic status", "epic_id", epicID, "name", name, "status", string(status))
}

func (w *WriterObserver) ObservePhase(epicID, phaseID, name string, status cfntypes.Status) {
	fmt.Fprintf(w.out, "  %s phase %s (%s): %s\n", marker(status), phaseID, name, status)
	w.log.Info("phase status", "epic_id", epicID, "phase_id", phaseID, "name", name, "status", string(status))
}

func (w *WriterObserver) ObserveSprint(epicID, phaseID, sprintID, name string, status cfntypes.Status) {
	fmt.Fprintf(w.out, "    %s sprint %s (%s): %s\n", marker(status), sprintID, name, status)
	w.log.Info("sprint status", "epic_id", epicID, "phase_id", phaseID, "sprint_id", sprintID, "name", name, "status", string(status))
}

// NoopObserver discards all observations, used in tests that don't care
// about status output.
type NoopObserver struct{}

func (NoopObserver) ObserveEpic(string, string, cfntypes.Status)             {}
func (NoopObserver) ObservePhase(string, string, string, cfntypes.Status)    {}
func (NoopObserver) ObserveSprint(string, string, string, string, cfntypes.Status) {}
