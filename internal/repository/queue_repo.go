package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/civicpay/unifee/internal/domain"
)

// QueueRepo is the durable work queue for retry batches. Messages carry a
// visibility delay (requeues become visible only after the configured
// backoff) and a time-to-live after which they are dropped.
type QueueRepo struct {
	db *sql.DB
}

func NewQueueRepo(db *sql.DB) *QueueRepo {
	return &QueueRepo{db: db}
}

// Enqueue pushes one serialized batch message.
func (r *QueueRepo) Enqueue(msg *domain.BatchMessage, delay, ttl time.Duration) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	now := time.Now().UTC()
	_, err = r.db.Exec(
		`INSERT INTO work_queue (body, visible_at, expires_at, enqueued_at) VALUES (?,?,?,?)`,
		string(body),
		now.Add(delay).Format(time.RFC3339),
		now.Add(ttl).Format(time.RFC3339),
		now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	return nil
}

// Dequeue pops the oldest visible, unexpired message. It returns ok=false
// when the queue has nothing ready.
func (r *QueueRepo) Dequeue() (*domain.BatchMessage, bool, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	sqlTx, err := r.db.Begin()
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback()

	// Drop expired messages first so they never surface.
	if _, err := sqlTx.Exec("DELETE FROM work_queue WHERE expires_at <= ?", now); err != nil {
		return nil, false, fmt.Errorf("purge expired: %w", err)
	}

	var id int64
	var body string
	err = sqlTx.QueryRow(
		"SELECT id, body FROM work_queue WHERE visible_at <= ? ORDER BY id LIMIT 1", now,
	).Scan(&id, &body)
	if err == sql.ErrNoRows {
		return nil, false, sqlTx.Commit()
	}
	if err != nil {
		return nil, false, fmt.Errorf("select: %w", err)
	}

	if _, err := sqlTx.Exec("DELETE FROM work_queue WHERE id = ?", id); err != nil {
		return nil, false, fmt.Errorf("delete: %w", err)
	}
	if err := sqlTx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit: %w", err)
	}

	var msg domain.BatchMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return nil, false, fmt.Errorf("unmarshal message %d: %w", id, err)
	}
	return &msg, true, nil
}

// Len reports how many messages are pending, visible or not.
func (r *QueueRepo) Len() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM work_queue").Scan(&count)
	return count, err
}
