package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"receiptnotifier/internal/types"
)

// MessageRepository is the append-only store of messages accepted by the
// provider, keyed by (unit_id, sub_unit_id, role).
type MessageRepository struct {
	db  DBTX
	now func() time.Time
}

func NewMessageRepository(db DBTX) *MessageRepository {
	return &MessageRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Find returns the record for the key, or (nil, nil) when none exists.
func (r *MessageRepository) Find(ctx context.Context, unitID, subUnitID string, role types.RecipientRole) (*types.MessageRecord, error) {
	rec := types.MessageRecord{}
	var roleStr string
	err := r.db.QueryRow(ctx,
		`SELECT id, unit_id, sub_unit_id, role, message_id, subject, markdown, created_at
		 FROM io_messages
		 WHERE unit_id = $1 AND sub_unit_id = $2 AND role = $3`,
		unitID, subUnitID, string(role),
	).Scan(&rec.ID, &rec.UnitID, &rec.SubUnitID, &roleStr, &rec.MessageID, &rec.Subject, &rec.Markdown, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to find message record", err)
	}
	rec.Role = types.RecipientRole(roleStr)
	return &rec, nil
}

// UpsertBatch inserts the records in one round trip. An existing record for
// the same key is left untouched.
func (r *MessageRepository) UpsertBatch(ctx context.Context, records []*types.MessageRecord) error {
	if len(records) == 0 {
		return nil
	}

	now := r.now()
	batch := &pgx.Batch{}
	for _, rec := range records {
		if rec.ID == "" {
			rec.ID = "msg_" + uuid.NewString()
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		batch.Queue(
			`INSERT INTO io_messages (id, unit_id, sub_unit_id, role, message_id, subject, markdown, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (unit_id, sub_unit_id, role) DO NOTHING`,
			rec.ID, rec.UnitID, rec.SubUnitID, string(rec.Role), rec.MessageID, rec.Subject, rec.Markdown, rec.CreatedAt,
		)
	}

	br := r.db.SendBatch(ctx, batch)
	defer br.Close()

	for range records {
		if _, err := br.Exec(); err != nil {
			return types.NewAppErrorWithDetails(types.ErrCodeInternalDB, "failed to insert message records", err,
				map[string]any{"batch_size": len(records)})
		}
	}
	return nil
}

// CountByUnit returns how many messages were recorded for a unit.
func (r *MessageRepository) CountByUnit(ctx context.Context, unitID string) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM io_messages WHERE unit_id = $1`, unitID).Scan(&n); err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count message records", err)
	}
	return n, nil
}
