package store

import (
	"context"
	"database/sql"
	"time"

	"tezrelay/pkg/models"
)

// EnqueueDelivery writes a queued outbound delivery outside any larger
// transaction (SaveTez enqueues atomically with the tez insert; this is
// for re-enqueues).
func EnqueueDelivery(ctx context.Context, dv models.OutboundDelivery) error {
	d, err := handle()
	if err != nil {
		return err
	}
	_, err = d.ExecContext(ctx,
		`INSERT INTO outbound_deliveries (id, target_host, bundle, status, attempts, next_attempt_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		dv.ID, dv.TargetHost, dv.Bundle, string(dv.Status), dv.Attempts,
		fmtTime(dv.NextAttemptAt), fmtTime(dv.CreatedAt), fmtTime(dv.UpdatedAt))
	return err
}

func scanDelivery(row rowScanner) (models.OutboundDelivery, error) {
	var dv models.OutboundDelivery
	var status, next, created, updated string
	err := row.Scan(&dv.ID, &dv.TargetHost, &dv.Bundle, &status, &dv.Attempts, &next, &created, &updated)
	if err == sql.ErrNoRows {
		return models.OutboundDelivery{}, ErrNotFound
	}
	if err != nil {
		return models.OutboundDelivery{}, err
	}
	dv.Status = models.DeliveryStatus(status)
	dv.NextAttemptAt = parseTime(next)
	dv.CreatedAt = parseTime(created)
	dv.UpdatedAt = parseTime(updated)
	return dv, nil
}

const selectDelivery = `SELECT id, target_host, bundle, status, attempts, next_attempt_at, created_at, updated_at
  FROM outbound_deliveries`

// ClaimDueDeliveries atomically moves up to limit due queued deliveries to
// in_flight and returns them oldest-first per host, preserving FIFO order
// for each target. The claim happens inside one transaction so concurrent
// pump workers never pick up the same row.
func ClaimDueDeliveries(ctx context.Context, now time.Time, limit int) ([]models.OutboundDelivery, error) {
	var out []models.OutboundDelivery
	err := inTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			selectDelivery+` WHERE status = ? AND next_attempt_at <= ? ORDER BY target_host, created_at, id LIMIT ?`,
			string(models.DeliveryQueued), fmtTime(now), limit)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			dv, err := scanDelivery(rows)
			if err != nil {
				return err
			}
			out = append(out, dv)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		for i := range out {
			if _, err := tx.ExecContext(ctx,
				`UPDATE outbound_deliveries SET status = ?, updated_at = ? WHERE id = ?`,
				string(models.DeliveryInFlight), fmtTime(now), out[i].ID); err != nil {
				return err
			}
			out[i].Status = models.DeliveryInFlight
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SettleDelivery records a pump outcome: sent, failed, or queued again
// with the attempt count and next attempt time advanced.
func SettleDelivery(ctx context.Context, id string, status models.DeliveryStatus, attempts int, nextAttempt time.Time) error {
	d, err := handle()
	if err != nil {
		return err
	}
	_, err = d.ExecContext(ctx,
		`UPDATE outbound_deliveries SET status = ?, attempts = ?, next_attempt_at = ?, updated_at = ? WHERE id = ?`,
		string(status), attempts, fmtTime(nextAttempt), fmtTime(time.Now()), id)
	return err
}

// ListDeliveries returns outbox rows newest-first, optionally filtered by
// status, for the admin outbox view.
func ListDeliveries(ctx context.Context, status string, limit int) ([]models.OutboundDelivery, error) {
	d, err := handle()
	if err != nil {
		return nil, err
	}
	var rows *sql.Rows
	if status != "" {
		rows, err = d.QueryContext(ctx,
			selectDelivery+` WHERE status = ? ORDER BY created_at DESC LIMIT ?`, status, limit)
	} else {
		rows, err = d.QueryContext(ctx,
			selectDelivery+` ORDER BY created_at DESC LIMIT ?`, limit)
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []models.OutboundDelivery
	for rows.Next() {
		dv, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, dv)
	}
	return out, rows.Err()
}

// PurgeSettledDeliveries removes sent and failed rows older than cutoff
// and returns how many were deleted.
func PurgeSettledDeliveries(ctx context.Context, cutoff time.Time) (int64, error) {
	d, err := handle()
	if err != nil {
		return 0, err
	}
	res, err := d.ExecContext(ctx,
		`DELETE FROM outbound_deliveries WHERE status IN (?, ?) AND updated_at < ?`,
		string(models.DeliverySent), string(models.DeliveryFailed), fmtTime(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
