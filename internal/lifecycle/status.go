// Package lifecycle holds the status state machines for submissions, events, and organizers.
// Each guard only checks the shape of a transition; who may perform it is decided by the
// authorization policy.
package lifecycle

import (
	"fmt"

	"github.com/event-registry/event-registry/internal/db/models"
)

// InvalidTransitionError reports a rejected (From, To) pair. The API maps it to 409.
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s status transition: %s -> %s", e.Entity, e.From, e.To)
}

// machine maps each state to its allowed successors. A state with no entry or an empty
// set is terminal.
type machine struct {
	entity     string
	successors map[string][]string
}

func (m machine) assert(current, target string) error {
	for _, next := range m.successors[current] {
		if next == target {
			return nil
		}
	}
	return &InvalidTransitionError{Entity: m.entity, From: current, To: target}
}

func (m machine) states() []string {
	out := make([]string, 0, len(m.successors))
	for s := range m.successors {
		out = append(out, s)
	}
	return out
}

var submissionMachine = machine{
	entity: "submission",
	successors: map[string][]string{
		models.SubmissionStatusPending:       {models.SubmissionStatusEmailVerified},
		models.SubmissionStatusEmailVerified: {models.SubmissionStatusPaid},
		models.SubmissionStatusPaid:          {models.SubmissionStatusCompleted},
		models.SubmissionStatusCompleted:     {},
	},
}

var eventMachine = machine{
	entity: "event",
	successors: map[string][]string{
		models.EventStatusDraft:     {models.EventStatusPublished},
		models.EventStatusPublished: {models.EventStatusClosed},
		models.EventStatusClosed:    {},
	},
}

var organizerMachine = machine{
	entity: "organizer",
	successors: map[string][]string{
		models.OrganizerStatusPending:  {models.OrganizerStatusApproved, models.OrganizerStatusRejected},
		models.OrganizerStatusApproved: {},
		models.OrganizerStatusRejected: {models.OrganizerStatusPending},
	},
}

// AssertSubmissionTransition allows pending -> email_verified -> paid -> completed, one step
// at a time. Self-transitions, skips, and moves backward are rejected.
func AssertSubmissionTransition(current, target string) error {
	return submissionMachine.assert(current, target)
}

// AssertEventTransition allows draft -> published -> closed.
func AssertEventTransition(current, target string) error {
	return eventMachine.assert(current, target)
}

// AssertOrganizerTransition allows pending -> approved|rejected and rejected -> pending.
func AssertOrganizerTransition(current, target string) error {
	return organizerMachine.assert(current, target)
}

// SubmissionStatuses lists every known submission status.
func SubmissionStatuses() []string {
	return submissionMachine.states()
}

// IsSubmissionStatus reports whether s is a known submission status.
func IsSubmissionStatus(s string) bool {
	_, ok := submissionMachine.successors[s]
	return ok
}

// IsEventStatus reports whether s is a known event status.
func IsEventStatus(s string) bool {
	_, ok := eventMachine.successors[s]
	return ok
}
