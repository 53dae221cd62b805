// Package audit archives account lifecycle transitions as immutable JSON records.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/felipet/lacoctelera-backend/internal/metrics"
	"github.com/felipet/lacoctelera-backend/internal/objects"
	"github.com/felipet/lacoctelera-backend/internal/store/models"
	"github.com/google/uuid"
)

// Event names the archived transition
type Event string

const (
	EventRequested     Event = "requested"
	EventValidated     Event = "validated"
	EventEnabled       Event = "enabled"
	EventDisabled      Event = "disabled"
	EventRejected      Event = "rejected"
	EventDeleted       Event = "deleted"
	EventTokenIssued   Event = "token_issued"
	EventTokensRevoked Event = "tokens_revoked"
	EventExpiryWarned  Event = "expiry_warned"
)

// Actors
const (
	ActorRequester = "requester"
	ActorAdmin     = "admin"
	ActorSystem    = "system"
)

// Record is one archived transition. It never contains token secrets, only the
// short reference of a token's digest.
type Record struct {
	ID         string              `json:"id"`
	AccountID  string              `json:"account_id"`
	Event      Event               `json:"event"`
	Actor      string              `json:"actor"`
	State      models.AccountState `json:"state,omitempty"`
	TokenRef   string              `json:"token_ref,omitempty"`
	Count      int64               `json:"count,omitempty"`
	OccurredAt time.Time           `json:"occurred_at"`
}

// Recorder archives records
type Recorder interface {
	Record(ctx context.Context, record Record) error
}

// HistoryReader reads back the records of one account, oldest first
type HistoryReader interface {
	History(ctx context.Context, accountID string) ([]Record, error)
}

// ErrNoHistory means records are not kept, so there is nothing to read back
var ErrNoHistory = errors.New("audit archive disabled")

// NopRecorder discards records
type NopRecorder struct{}

func (NopRecorder) Record(ctx context.Context, record Record) error {
	return nil
}

func (NopRecorder) History(ctx context.Context, accountID string) ([]Record, error) {
	return nil, ErrNoHistory
}

// ArchiveRecorder writes each record to its own object under audit/<account_id>/
type ArchiveRecorder struct {
	store   objects.ObjectStore
	nowFunc func() time.Time

	mu   sync.Mutex
	last time.Time
}

func NewArchiveRecorder(store objects.ObjectStore) *ArchiveRecorder {
	return &ArchiveRecorder{store: store, nowFunc: time.Now}
}

// keyTimeFormat sorts lexically in time order
const keyTimeFormat = "20060102T150405.000000000Z"

func recordPrefix(accountID string) string {
	return "audit/" + accountID + "/"
}

func (r *ArchiveRecorder) Record(ctx context.Context, record Record) error {
	if record.AccountID == "" {
		return fmt.Errorf("audit record without account id")
	}
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.OccurredAt.IsZero() {
		record.OccurredAt = r.stamp()
	}
	record.OccurredAt = record.OccurredAt.UTC()

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}
	suffix := record.ID
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	key := fmt.Sprintf("%s%s-%s-%s.json", recordPrefix(record.AccountID),
		record.OccurredAt.Format(keyTimeFormat), record.Event, suffix)

	if err := r.store.Put(ctx, key, data, "application/json"); err != nil {
		metrics.AuditRecords.WithLabelValues("failed").Inc()
		return fmt.Errorf("failed to archive audit record %s: %w", key, err)
	}
	metrics.AuditRecords.WithLabelValues("archived").Inc()
	return nil
}

// stamp returns a strictly increasing time so records written in one burst keep their order
func (r *ArchiveRecorder) stamp() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.nowFunc()
	if !now.After(r.last) {
		now = r.last.Add(time.Nanosecond)
	}
	r.last = now
	return now
}

// History returns the archived records of an account, oldest first
func (r *ArchiveRecorder) History(ctx context.Context, accountID string) ([]Record, error) {
	infos, err := r.store.List(ctx, recordPrefix(accountID))
	if err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}

	records := make([]Record, 0, len(infos))
	for _, info := range infos {
		data, err := r.store.Get(ctx, info.Key)
		if err != nil {
			return nil, fmt.Errorf("failed to read audit record %s: %w", info.Key, err)
		}
		var record Record
		if err := json.Unmarshal(data, &record); err != nil {
			return nil, fmt.Errorf("failed to decode audit record %s: %w", info.Key, err)
		}
		records = append(records, record)
	}
	return records, nil
}
