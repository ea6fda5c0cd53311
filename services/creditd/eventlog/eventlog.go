// Package eventlog persists committed protocol events to a relational
// journal. Entries form a hash chain: each digest covers the previous digest
// and the entry's payload, so truncation or edits are detectable.
package eventlog

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"lukechampine.com/blake3"

	"trustlend/core/events"
	"trustlend/observability"
)

var ErrChainBroken = errors.New("eventlog: digest chain broken")

// Entry is one journaled event.
type Entry struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Seq        uint64    `gorm:"uniqueIndex;not null"`
	Type       string    `gorm:"size:64;index;not null"`
	Module     string    `gorm:"size:32;index;not null"`
	Attributes string    `gorm:"type:text;not null"`
	PrevDigest string    `gorm:"size:64;not null"`
	Digest     string    `gorm:"size:64;uniqueIndex;not null"`
	CreatedAt  time.Time
}

// TableName pins the table name independent of the struct name.
func (Entry) TableName() string { return "event_journal" }

// Journal appends committed events in publication order.
type Journal struct {
	db     *gorm.DB
	mu     sync.Mutex
	seq    uint64
	head   string
	logger *slog.Logger
	now    func() time.Time
}

// Open connects to driver ("sqlite" or "postgres") and migrates the schema.
func Open(driver, dsn string) (*Journal, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("eventlog: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("eventlog: open: %w", err)
	}
	return New(db)
}

// New wraps an existing gorm handle.
func New(db *gorm.DB) (*Journal, error) {
	if db == nil {
		return nil, errors.New("eventlog: database required")
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("eventlog: migrate: %w", err)
	}
	j := &Journal{
		db:     db,
		logger: slog.Default().With(slog.String("component", "eventlog")),
		now:    func() time.Time { return time.Now().UTC() },
	}
	var last Entry
	err := db.Order("seq desc").Limit(1).Take(&last).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
	case err != nil:
		return nil, fmt.Errorf("eventlog: load head: %w", err)
	default:
		j.seq = last.Seq
		j.head = last.Digest
	}
	return j, nil
}

// Emit implements events.Emitter. Failures are logged and counted; the
// protocol state has already committed by the time sinks run.
func (j *Journal) Emit(evt events.Event) {
	if j == nil || evt == nil {
		return
	}
	_, err := j.Append(context.Background(), evt)
	observability.Events().RecordJournalWrite(err)
	if err != nil {
		j.logger.Error("journal append failed", slog.String("type", evt.EventType()), slog.Any("error", err))
	}
}

// Append journals evt and returns the stored entry.
func (j *Journal) Append(ctx context.Context, evt events.Event) (*Entry, error) {
	payload := events.Render(evt)
	attrs, err := json.Marshal(payload.Attributes)
	if err != nil {
		return nil, err
	}
	module, _, _ := strings.Cut(payload.Type, ".")

	j.mu.Lock()
	defer j.mu.Unlock()
	entry := &Entry{
		ID:         uuid.New(),
		Seq:        j.seq + 1,
		Type:       payload.Type,
		Module:     module,
		Attributes: string(attrs),
		PrevDigest: j.head,
		CreatedAt:  j.now(),
	}
	entry.Digest = digest(entry.PrevDigest, entry.Seq, entry.Type, entry.Attributes)
	if err := j.db.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, err
	}
	j.seq = entry.Seq
	j.head = entry.Digest
	return entry, nil
}

// List returns up to limit entries with Seq greater than after.
func (j *Journal) List(ctx context.Context, after uint64, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	var out []Entry
	err := j.db.WithContext(ctx).Where("seq > ?", after).Order("seq asc").Limit(limit).Find(&out).Error
	return out, err
}

// Head returns the latest sequence number and digest.
func (j *Journal) Head() (uint64, string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.seq, j.head
}

// Verify walks the journal and recomputes every digest.
func (j *Journal) Verify(ctx context.Context) error {
	var (
		prev string
		next uint64 = 1
	)
	for {
		batch, err := j.List(ctx, next-1, 500)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		for _, entry := range batch {
			if entry.Seq != next || entry.PrevDigest != prev {
				return fmt.Errorf("%w at seq %d", ErrChainBroken, entry.Seq)
			}
			if digest(prev, entry.Seq, entry.Type, entry.Attributes) != entry.Digest {
				return fmt.Errorf("%w at seq %d", ErrChainBroken, entry.Seq)
			}
			prev = entry.Digest
			next++
		}
	}
}

// Close releases the underlying connection pool.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func digest(prev string, seq uint64, eventType, attrs string) string {
	h := blake3.New(32, nil)
	fmt.Fprintf(h, "%s\n%d\n%s\n%s", prev, seq, eventType, attrs)
	return hex.EncodeToString(h.Sum(nil))
}
