// Package audit implements the append-only case audit trail.
package audit

import (
	"time"

	"github.com/google/uuid"

	"github.com/locumbnb/enforcement/internal/domain"
)

// Entry metadata keys written by the engine on every transition.
const (
	MetaPreviousStatus = "previousStatus"
	MetaNewStatus      = "newStatus"
	MetaCorrects       = "corrects" // id of the entry being corrected
)

// NewEntry stamps server time and a unique id on a new trail entry.
func NewEntry(action string, actor domain.Party, details string, metadata map[string]string) domain.AuditEntry {
	return domain.AuditEntry{
		ID:              uuid.New().String(),
		Timestamp:       time.Now().UTC(),
		Action:          action,
		PerformedBy:     actor.ID,
		PerformedByRole: actor.Role,
		Details:         details,
		Metadata:        metadata,
	}
}

// Append returns a new trail with the entry appended. The input slice is
// never mutated in place; sharing the backing array across case copies is
// how audit entries get lost under concurrency.
func Append(trail []domain.AuditEntry, entry domain.AuditEntry) []domain.AuditEntry {
	out := make([]domain.AuditEntry, len(trail), len(trail)+1)
	copy(out, trail)
	return append(out, entry)
}

// TransitionMetadata builds the metadata map recorded with a state change.
func TransitionMetadata(from, to domain.State) map[string]string {
	return map[string]string{
		MetaPreviousStatus: string(from),
		MetaNewStatus:      string(to),
	}
}
