// Package audit records administrative actions. Events are appended inside
// the transaction of the command that caused them, so a command and its audit
// trail commit or roll back together.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/silvermint/idserver/internal/domain"
	"github.com/silvermint/idserver/internal/storage"
)

// Recorder appends audit events with a consistent clock.
type Recorder struct {
	now func() time.Time
}

// NewRecorder creates a recorder. A nil clock uses wall time.
func NewRecorder(now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{now: now}
}

// Record appends one event to the transaction's audit log.
func (r *Recorder) Record(ctx context.Context, log storage.AuditQueries, actor uuid.UUID, eventType string, data map[string]string) error {
	if data == nil {
		data = map[string]string{}
	}
	err := log.Append(ctx, domain.AuditEvent{
		Time:  r.now().UTC(),
		Actor: actor,
		Type:  eventType,
		Data:  data,
	})
	if err != nil {
		return fmt.Errorf("record %s: %w", eventType, err)
	}
	return nil
}
