package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/deemkeen/mammut/domain"
	"github.com/google/uuid"
)

const (
	sqlInsertDelivery = `INSERT INTO delivery_queue(id, inbox_uri, actor_iri, activity_json, attempts, next_retry_at, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	sqlSelectPendingDeliveries = `SELECT id, inbox_uri, actor_iri, activity_json, attempts, next_retry_at, created_at FROM delivery_queue
                                   WHERE next_retry_at <= ? ORDER BY next_retry_at LIMIT ?`
	sqlUpdateDeliveryAttempt = `UPDATE delivery_queue SET attempts = ?, next_retry_at = ? WHERE id = ?`
	sqlDeleteDelivery        = `DELETE FROM delivery_queue WHERE id = ?`
)

// EnqueueDelivery adds one pending signed delivery to the queue.
func (db *DB) EnqueueDelivery(ctx context.Context, item *domain.DeliveryQueueItem) error {
	return db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, sqlInsertDelivery,
			item.Id.String(),
			item.InboxURI,
			item.ActorIRI,
			item.ActivityJSON,
			item.Attempts,
			item.NextRetryAt,
			item.CreatedAt,
		)
		return err
	})
}

// ReadPendingDeliveries returns up to limit deliveries that are due.
func (db *DB) ReadPendingDeliveries(ctx context.Context, limit int) ([]domain.DeliveryQueueItem, error) {
	rows, err := db.db.QueryContext(ctx, sqlSelectPendingDeliveries, time.Now(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.DeliveryQueueItem
	for rows.Next() {
		var item domain.DeliveryQueueItem
		var id string
		if err := rows.Scan(&id, &item.InboxURI, &item.ActorIRI, &item.ActivityJSON, &item.Attempts, &item.NextRetryAt, &item.CreatedAt); err != nil {
			return items, err
		}
		item.Id, err = uuid.Parse(id)
		if err != nil {
			return items, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpdateDeliveryAttempt records a failed attempt and its retry time.
func (db *DB) UpdateDeliveryAttempt(ctx context.Context, id uuid.UUID, attempts int, nextRetryAt time.Time) error {
	return db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, sqlUpdateDeliveryAttempt, attempts, nextRetryAt, id.String())
		return err
	})
}

// DeleteDelivery removes a completed or abandoned delivery.
func (db *DB) DeleteDelivery(ctx context.Context, id uuid.UUID) error {
	return db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, sqlDeleteDelivery, id.String())
		return err
	})
}
