package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"guildhall/core/events"
	"guildhall/observability"
)

// EventRecord is one committed organization event.
type EventRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Sequence   uint64    `gorm:"uniqueIndex;not null"`
	Type       string    `gorm:"size:64;index"`
	Org        string    `gorm:"size:96;index"`
	ProposalID string    `gorm:"size:32;index"`
	Attributes string    `gorm:"type:text"`
	CreatedAt  time.Time
}

// Attrs decodes the stored attributes.
func (r EventRecord) Attrs() (map[string]string, error) {
	out := map[string]string{}
	if r.Attributes == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(r.Attributes), &out); err != nil {
		return nil, fmt.Errorf("archive: decode attributes: %w", err)
	}
	return out, nil
}

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	Type       string
	ProposalID string
	After      uint64
	Limit      int
}

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// Archive persists published events and implements events.Emitter so it
// can be attached to an organization.
type Archive struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time

	mu  sync.Mutex
	seq uint64
}

// Open connects to the SQLite database at dsn and migrates the schema.
func Open(dsn string, log *slog.Logger) (*Archive, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("archive: open: %w", err)
	}
	return New(db, log)
}

// New wraps an existing database handle.
func New(db *gorm.DB, log *slog.Logger) (*Archive, error) {
	if db == nil {
		return nil, fmt.Errorf("archive: database required")
	}
	if err := db.AutoMigrate(&EventRecord{}); err != nil {
		return nil, fmt.Errorf("archive: migrate: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	a := &Archive{db: db, logger: log, now: func() time.Time { return time.Now().UTC() }}
	var last EventRecord
	res := db.Order("sequence desc").Limit(1).Find(&last)
	if res.Error != nil {
		return nil, fmt.Errorf("archive: load sequence: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		a.seq = last.Sequence
	}
	return a, nil
}

// Append stores evt and returns the record written.
func (a *Archive) Append(ctx context.Context, evt events.Event) (*EventRecord, error) {
	payload, ok := events.Payload(evt)
	if !ok {
		return nil, fmt.Errorf("archive: event without payload")
	}
	attrs, err := json.Marshal(payload.Attributes)
	if err != nil {
		return nil, fmt.Errorf("archive: encode attributes: %w", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	rec := &EventRecord{
		ID:         uuid.New(),
		Sequence:   a.seq + 1,
		Type:       payload.Type,
		Org:        payload.Attr("org"),
		ProposalID: payload.Attr("proposalId"),
		Attributes: string(attrs),
		CreatedAt:  a.now(),
	}
	if err := a.db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, fmt.Errorf("archive: insert: %w", err)
	}
	a.seq = rec.Sequence
	return rec, nil
}

// Emit archives evt. Failures are logged; publication is never blocked.
func (a *Archive) Emit(evt events.Event) {
	_, err := a.Append(context.Background(), evt)
	observability.Events().RecordArchived(err)
	if err != nil {
		a.logger.Error("archive event failed", "type", evt.EventType(), "error", err)
	}
}

// List returns archived events in sequence order.
func (a *Archive) List(ctx context.Context, f Filter) ([]EventRecord, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	q := a.db.WithContext(ctx).Model(&EventRecord{}).Where("sequence > ?", f.After)
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.ProposalID != "" {
		q = q.Where("proposal_id = ?", f.ProposalID)
	}
	var out []EventRecord
	if err := q.Order("sequence asc").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("archive: list: %w", err)
	}
	return out, nil
}

// Close releases the database connection.
func (a *Archive) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
