package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"receiptnotifier/internal/types"
)

// UnitRepository is the document store of notifiable units.
type UnitRepository struct {
	db  DBTX
	now func() time.Time
}

func NewUnitRepository(db DBTX) *UnitRepository {
	return &UnitRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const upsertUnitSQL = `
INSERT INTO notifiable_units (id, kind, status, payload, notification_num_retry, notified_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
	status                 = EXCLUDED.status,
	payload                = CASE
		WHEN notifiable_units.notified_at IS NULL THEN EXCLUDED.payload
		ELSE jsonb_set(EXCLUDED.payload, '{notified_at}', to_jsonb(notifiable_units.notified_at))
	END,
	notification_num_retry = EXCLUDED.notification_num_retry,
	notified_at            = COALESCE(notifiable_units.notified_at, EXCLUDED.notified_at),
	updated_at             = EXCLUDED.updated_at`

// UpsertBatch writes all units in one round trip. UpdatedAt is stamped on
// every unit. A stored notified_at is never cleared or moved, in the column
// or in the payload.
func (r *UnitRepository) UpsertBatch(ctx context.Context, units []*types.NotifiableUnit) error {
	if len(units) == 0 {
		return nil
	}

	now := r.now()
	batch := &pgx.Batch{}
	for _, u := range units {
		u.UpdatedAt = now
		payload, err := json.Marshal(u)
		if err != nil {
			return types.NewAppError(types.ErrCodeInternalEncoding, fmt.Sprintf("failed to encode unit %s", u.ID), err)
		}
		batch.Queue(upsertUnitSQL,
			u.ID,
			string(u.Kind),
			string(u.Status),
			payload,
			u.RetryCount,
			nilIfZeroTime(u.NotifiedAt),
			now,
		)
	}

	br := r.db.SendBatch(ctx, batch)
	defer br.Close()

	for _, u := range units {
		if _, err := br.Exec(); err != nil {
			return types.NewAppErrorWithDetails(types.ErrCodeInternalDB, "failed to upsert units", err,
				map[string]any{"unit_id": u.ID, "batch_size": len(units)})
		}
	}
	return nil
}

// Get returns the unit or a not_found_unit AppError.
func (r *UnitRepository) Get(ctx context.Context, id string) (*types.NotifiableUnit, error) {
	var payload []byte
	err := r.db.QueryRow(ctx, `SELECT payload FROM notifiable_units WHERE id = $1`, id).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFoundUnit, fmt.Sprintf("unit %s not found", id), nil)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get unit", err)
	}
	return decodeUnit(payload)
}

// ListByStatus returns up to limit units in status, oldest update first.
func (r *UnitRepository) ListByStatus(ctx context.Context, status types.UnitStatus, limit int) ([]*types.NotifiableUnit, error) {
	rows, err := r.db.Query(ctx,
		`SELECT payload FROM notifiable_units WHERE status = $1 ORDER BY updated_at ASC LIMIT $2`,
		string(status), limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list units", err)
	}
	defer rows.Close()

	var units []*types.NotifiableUnit
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan unit", err)
		}
		u, err := decodeUnit(payload)
		if err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate units", err)
	}
	return units, nil
}

func decodeUnit(payload []byte) (*types.NotifiableUnit, error) {
	var u types.NotifiableUnit
	if err := json.Unmarshal(payload, &u); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalEncoding, "failed to decode unit payload", err)
	}
	return &u, nil
}

func nilIfZeroTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
