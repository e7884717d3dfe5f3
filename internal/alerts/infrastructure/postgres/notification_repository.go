package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	alerts "pasture-cloud/internal/alerts/domain"
)

// NotificationRepository is a Postgres repository for notification records.
type NotificationRepository struct {
	db *sql.DB
}

// NewNotificationRepository constructs a repository.
func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a notification record.
func (r *NotificationRepository) Create(ctx context.Context, n *alerts.Notification) error {
	if r == nil || r.db == nil {
		return errors.New("notification repo: nil db")
	}
	if n == nil {
		return errors.New("notification repo: nil notification")
	}
	if n.ID == "" || n.AlertID == "" {
		return errors.New("notification repo: missing fields")
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if n.Status == "" {
		n.Status = alerts.NotificationPending
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO notifications (id, alert_id, farmer_id, channel, status, detail, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		n.ID, n.AlertID, nullableString(n.FarmerID), n.Channel, n.Status, nullableString(n.Detail), n.CreatedAt)
	return err
}

// UpdateStatus records the delivery outcome.
func (r *NotificationRepository) UpdateStatus(ctx context.Context, id, status, detail string) error {
	if r == nil || r.db == nil {
		return errors.New("notification repo: nil db")
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE notifications SET status = $1, detail = $2 WHERE id = $3`,
		status, nullableString(detail), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return alerts.ErrNotFound
	}
	return err
}

// ListByAlert returns notifications for an alert.
func (r *NotificationRepository) ListByAlert(ctx context.Context, alertID string) ([]alerts.Notification, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("notification repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, alert_id, farmer_id, channel, status, detail, created_at
FROM notifications
WHERE alert_id = $1
ORDER BY created_at`, alertID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []alerts.Notification
	for rows.Next() {
		var (
			n        alerts.Notification
			farmerID sql.NullString
			detail   sql.NullString
		)
		if err := rows.Scan(&n.ID, &n.AlertID, &farmerID, &n.Channel, &n.Status, &detail, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.FarmerID = farmerID.String
		n.Detail = detail.String
		out = append(out, n)
	}
	return out, rows.Err()
}
