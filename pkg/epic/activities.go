// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package epic

import (
	"context"

	"cfnloop/internal/observer"
	"cfnloop/internal/telemetry"
	"cfnloop/pkg/cfntypes"
)

// Activities bundles the one side effect EpicWorkflow needs outside its own
// deterministic control flow: writing status transitions through a
// StatusObserver. A StatusObserver's ObserveEpic/ObservePhase/ObserveSprint
// calls print and log, so they must run from an activity, not from the
// workflow function, for the same replay-safety reason pkg/loop's
// Activities keeps telemetry.Sink off the workflow goroutine.
type Activities struct {
	Observer observer.StatusObserver
}

// NewActivities constructs an Activities with the given StatusObserver. A
// nil Observer falls back to observer.NoopObserver.
func NewActivities(obs observer.StatusObserver) *Activities {
	if obs == nil {
		obs = observer.NoopObserver{}
	}
	return &Activities{Observer: obs}
}

// ReportEpicStatus records an epic-level status transition.
func (a *Activities) ReportEpicStatus(ctx context.Context, epicID, name string, status cfntypes.Status) error {
	_, span := telemetry.StartSpan(ctx, "cfnloop/epic", "ReportEpicStatus")
	span.SetAttributes(telemetry.SprintAttrs(epicID, "", "")...)
	span.SetAttributes(telemetry.AttrGatePassed.Bool(status == cfntypes.StatusComplete))
	defer span.End()

	a.Observer.ObserveEpic(epicID, name, status)
	return nil
}

// ReportPhaseStatus records a phase-level status transition.
func (a *Activities) ReportPhaseStatus(ctx context.Context, epicID, phaseID, name string, status cfntypes.Status) error {
	_, span := telemetry.StartSpan(ctx, "cfnloop/epic", "ReportPhaseStatus")
	span.SetAttributes(telemetry.SprintAttrs(epicID, phaseID, "")...)
	span.SetAttributes(telemetry.AttrGatePassed.Bool(status == cfntypes.StatusComplete))
	defer span.End()

	a.Observer.ObservePhase(epicID, phaseID, name, status)
	return nil
}
