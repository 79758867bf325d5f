package service

import (
	"fmt"

	"github.com/nvthao/greenroute/internal/model"
)

// ─── Lifecycle Errors ───────────────────────────────────────

// InvalidStateError reports an operation that is illegal in the
// schedule's current lifecycle state. The current state is included so
// the caller can explain the rejection to the operator.
type InvalidStateError struct {
	Op      string
	Current model.ScheduleStatus
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("schedule is %s: cannot %s", e.Current, e.Op)
}

// ─── ScheduleLifecycle ──────────────────────────────────────

// allowedTransitions is the closed transition table of the schedule
// state machine; terminal states map to an empty set. It governs a
// daily schedule's progression from draft to completion and the
// legality of structural edits at each state.
//
// Transition graph:
//
//	draft ──approve──▶ approved ──first stop started──▶ in_progress ──last stop done──▶ completed
//	  │                    │                                  │
//	  └────────────────────┴────────cancel────────────────────┘──▶ cancelled
//
// Deleting is not a state: it is a destructive action allowed only
// while draft. Reordering and optimizing are allowed while draft or
// approved; reordering an approved schedule merely invalidates the
// approval informally (re-approval is cheap), while reordering a route
// already being executed is hard-rejected.
var allowedTransitions = map[model.ScheduleStatus][]model.ScheduleStatus{
	model.ScheduleDraft:      {model.ScheduleApproved, model.ScheduleCancelled},
	model.ScheduleApproved:   {model.ScheduleInProgress, model.ScheduleCancelled},
	model.ScheduleInProgress: {model.ScheduleCompleted, model.ScheduleCancelled},
	model.ScheduleCompleted:  {},
	model.ScheduleCancelled:  {},
}

// CanTransition reports whether from → to is an allowed transition.
func CanTransition(from, to model.ScheduleStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CheckTransition returns an InvalidStateError if from → to is not allowed.
func CheckTransition(from, to model.ScheduleStatus, op string) error {
	if !CanTransition(from, to) {
		return &InvalidStateError{Op: op, Current: from}
	}
	return nil
}

// CanReorder reports whether the schedule's stop order may be changed
// (manually or by the optimizer) in the given state. This is the one
// hard-enforced structural guard: a route already being executed is
// immutable.
func CanReorder(status model.ScheduleStatus) bool {
	return status == model.ScheduleDraft || status == model.ScheduleApproved
}

// CanDelete reports whether the schedule may be deleted in the given
// state. Only drafts are deletable; everything later is kept for audit
// (cancel instead).
func CanDelete(status model.ScheduleStatus) bool {
	return status == model.ScheduleDraft
}

// IsTerminal reports whether the state admits no further transitions.
func IsTerminal(status model.ScheduleStatus) bool {
	return len(allowedTransitions[status]) == 0
}
