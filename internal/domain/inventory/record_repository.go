package inventory

import (
	"context"

	"github.com/google/uuid"
)

// SyncSelection selects the records of one store for a pass against one marketplace
type SyncSelection struct {
	StoreID     uuid.UUID
	Marketplace string
	// Force selects records already synced as well
	Force bool
	// RecordIDs restricts the selection to explicit records when non-empty
	RecordIDs []uuid.UUID
}

// Matches reports whether a record falls within the selection
func (s SyncSelection) Matches(r *Record) bool {
	if r.StoreID != s.StoreID {
		return false
	}
	if len(s.RecordIDs) > 0 {
		found := false
		for _, id := range s.RecordIDs {
			if id == r.ID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return s.Force || r.NeedsSync(s.Marketplace)
}

// RecordRepository defines the interface for inventory record persistence
type RecordRepository interface {
	// FindByID finds a record by its ID, including its channel states
	FindByID(ctx context.Context, id uuid.UUID) (*Record, error)

	// FindForSync returns the records matching a selection, ordered by card
	FindForSync(ctx context.Context, sel SyncSelection) ([]Record, error)

	// FindByCard finds all records of a card within a store
	FindByCard(ctx context.Context, storeID, cardID uuid.UUID) ([]Record, error)

	// Save creates or updates a record and its channel states
	Save(ctx context.Context, record *Record) error

	// SaveSyncState persists the sync fields of a record and its state for one marketplace
	SaveSyncState(ctx context.Context, record *Record, marketplace string) error

	// ClearRemoteVariantsForCard drops cached variant ids of every record of a card for a store + marketplace
	ClearRemoteVariantsForCard(ctx context.Context, storeID, cardID uuid.UUID, marketplace string) (int64, error)

	// ClearRemoteVariantsForChannel drops every cached variant id of a store + marketplace
	ClearRemoteVariantsForChannel(ctx context.Context, storeID uuid.UUID, marketplace string) (int64, error)
}
