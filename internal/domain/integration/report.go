package integration

import (
	"time"

	"github.com/google/uuid"
)

// RecordState is a step of the per-record reconciliation state machine
type RecordState string

const (
	StatePending            RecordState = "pending"
	StateResolvingProduct   RecordState = "resolving_product"
	StateResolvingVariant   RecordState = "resolving_variant"
	StateActivatingTracking RecordState = "activating_tracking"
	StatePushingQuantity    RecordState = "pushing_quantity"
	StatePushingPrice       RecordState = "pushing_price"
	StateSynced             RecordState = "synced"
	StateFailed             RecordState = "failed"
)

// String returns the string representation of RecordState
func (s RecordState) String() string {
	return string(s)
}

// SyncRequest asks for one reconciliation pass of a store against a marketplace
type SyncRequest struct {
	StoreID     uuid.UUID   `json:"store_id"`
	Marketplace Marketplace `json:"marketplace"`
	// Force includes records already synced
	Force bool `json:"force"`
	// RecordIDs restricts the pass to explicit records when non-empty
	RecordIDs []uuid.UUID `json:"record_ids,omitempty"`
}

// Key returns the (store, marketplace) key of the request
func (r SyncRequest) Key() CredentialKey {
	return CredentialKey{StoreID: r.StoreID, Marketplace: r.Marketplace}
}

// RecordOutcome is the result of one record in a pass
type RecordOutcome struct {
	RecordID        uuid.UUID   `json:"record_id"`
	CardID          uuid.UUID   `json:"card_id"`
	SKU             string      `json:"sku"`
	State           RecordState `json:"state"`
	FailedIn        RecordState `json:"failed_in,omitempty"`
	RemoteProductID string      `json:"remote_product_id,omitempty"`
	RemoteVariantID string      `json:"remote_variant_id,omitempty"`
	PricePushed     bool        `json:"price_pushed"`
	Error           string      `json:"error,omitempty"`
	ErrorKind       ErrorKind   `json:"error_kind,omitempty"`
	Retryable       bool        `json:"retryable"`
}

// Succeeded reports whether the record ended synced
func (o RecordOutcome) Succeeded() bool {
	return o.State == StateSynced
}

// BatchReport summarizes one pass
type BatchReport struct {
	StoreID     uuid.UUID       `json:"store_id"`
	Marketplace Marketplace     `json:"marketplace"`
	Attempted   int             `json:"attempted"`
	Succeeded   int             `json:"succeeded"`
	Failed      int             `json:"failed"`
	Outcomes    []RecordOutcome `json:"outcomes"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  time.Time       `json:"finished_at"`
}

// Add appends an outcome and updates the counters
func (r *BatchReport) Add(o RecordOutcome) {
	r.Outcomes = append(r.Outcomes, o)
	r.Attempted++
	if o.Succeeded() {
		r.Succeeded++
	} else {
		r.Failed++
	}
}

// Outcome returns the outcome of a record
func (r *BatchReport) Outcome(recordID uuid.UUID) (RecordOutcome, bool) {
	for _, o := range r.Outcomes {
		if o.RecordID == recordID {
			return o, true
		}
	}
	return RecordOutcome{}, false
}

// Duration returns the wall time of the pass
func (r *BatchReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
