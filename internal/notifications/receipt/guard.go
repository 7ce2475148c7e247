package receipt

import (
	"context"
	"time"

	"receiptnotifier/internal/types"
)

// MessageStore is the message-record store.
type MessageStore interface {
	// Find returns (nil, nil) when no record exists for the key.
	Find(ctx context.Context, unitID, subUnitID string, role types.RecipientRole) (*types.MessageRecord, error)
	UpsertBatch(ctx context.Context, records []*types.MessageRecord) error
}

// Guard prevents a second send to a (unit, sub-unit, role) slot.
type Guard struct {
	store       MessageStore
	callTimeout time.Duration
	logger      types.Logger
}

func NewGuard(store MessageStore, callTimeout time.Duration, logger types.Logger) *Guard {
	return &Guard{store: store, callTimeout: callTimeout, logger: logger}
}

// Check reports whether a message was already accepted for the slot. The
// reference carried on the unit is consulted first, then the store. A store
// failure counts as "not found": delivery is re-attempted rather than a
// citizen silently skipped.
func (g *Guard) Check(ctx context.Context, unit *types.NotifiableUnit, rcpt Recipient) (*types.MessageRecord, bool) {
	if ref := unit.MessageSlot(rcpt.Role, rcpt.SubUnitID); ref != nil && ref.ID != "" {
		return &types.MessageRecord{
			UnitID:    unit.ID,
			SubUnitID: rcpt.SubUnitID,
			Role:      rcpt.Role,
			MessageID: ref.ID,
			Subject:   ref.Subject,
			Markdown:  ref.Markdown,
		}, true
	}

	callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	rec, err := g.store.Find(callCtx, unit.ID, rcpt.SubUnitID, rcpt.Role)
	if err != nil {
		g.logger.Warn("message store lookup failed, proceeding with delivery",
			"unit_id", unit.ID,
			"role", rcpt.Role,
			"sub_unit_id", rcpt.SubUnitID,
			"error", err.Error(),
		)
		return nil, false
	}
	if rec == nil || rec.MessageID == "" {
		return nil, false
	}
	return rec, true
}
