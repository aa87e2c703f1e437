package persist

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// InteractionEntry is one triggered interaction.
type InteractionEntry struct {
	Room        string
	ObjectID    string
	ObjectType  string
	Action      string
	X, Y        int
	TriggeredAt time.Time
}

type InteractionLogRepo struct {
	db *DB
}

func NewInteractionLogRepo(db *DB) *InteractionLogRepo {
	return &InteractionLogRepo{db: db}
}

// WriteBatch atomically writes a batch of entries in a single transaction.
func (r *InteractionLogRepo) WriteBatch(ctx context.Context, entries []InteractionEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("interaction log begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range entries {
		if _, err := tx.Exec(ctx,
			`INSERT INTO interaction_log (room, object_id, object_type, action, x, y, triggered_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			e.Room, e.ObjectID, e.ObjectType, e.Action, e.X, e.Y, e.TriggeredAt,
		); err != nil {
			return fmt.Errorf("interaction log insert: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// RecentForRoom returns the latest entries of a room, newest first.
func (r *InteractionLogRepo) RecentForRoom(ctx context.Context, room string, limit int) ([]InteractionEntry, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT room, object_id, object_type, action, x, y, triggered_at
		 FROM interaction_log WHERE room = $1
		 ORDER BY triggered_at DESC, id DESC LIMIT $2`,
		room, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []InteractionEntry
	for rows.Next() {
		var e InteractionEntry
		if err := rows.Scan(&e.Room, &e.ObjectID, &e.ObjectType, &e.Action, &e.X, &e.Y, &e.TriggeredAt); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// LogBuffer queues entries on the hot path and hands them to the writer in
// batches. Drained entries that fail to write are put back in front.
type LogBuffer struct {
	mu      sync.Mutex
	entries []InteractionEntry
	max     int
	dropped int
}

// NewLogBuffer returns a buffer holding at most max entries (0 = unbounded).
// When full, the oldest entries are dropped.
func NewLogBuffer(max int) *LogBuffer {
	return &LogBuffer{max: max}
}

func (b *LogBuffer) Add(e InteractionEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, e)
	b.trimLocked()
}

// Drain removes and returns every queued entry.
func (b *LogBuffer) Drain() []InteractionEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.entries
	b.entries = nil
	return out
}

// Requeue puts a failed batch back ahead of anything queued since.
func (b *LogBuffer) Requeue(batch []InteractionEntry) {
	if len(batch) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(append([]InteractionEntry(nil), batch...), b.entries...)
	b.trimLocked()
}

func (b *LogBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Dropped reports how many entries were discarded for lack of room.
func (b *LogBuffer) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

func (b *LogBuffer) trimLocked() {
	if b.max <= 0 || len(b.entries) <= b.max {
		return
	}
	n := len(b.entries) - b.max
	b.dropped += n
	b.entries = append([]InteractionEntry(nil), b.entries[n:]...)
}
