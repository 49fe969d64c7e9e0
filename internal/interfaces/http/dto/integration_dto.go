package dto

// StoreIntegrationURI binds the store and marketplace path parameters
type StoreIntegrationURI struct {
	StoreID     string `uri:"store_id" binding:"required,uuid"`
	Marketplace string `uri:"marketplace" binding:"required"`
}

// SyncJobURI binds the job path parameters
type SyncJobURI struct {
	StoreID string `uri:"store_id" binding:"required,uuid"`
	JobID   string `uri:"job_id" binding:"required,uuid"`
}

// CreateIntegrationRequest connects a store to a marketplace
type CreateIntegrationRequest struct {
	Secrets  map[string]string `json:"secrets" binding:"required,min=1,dive,keys,required,endkeys,required"`
	Settings map[string]string `json:"settings"`
}

// UpdateIntegrationRequest replaces secrets and/or settings; omitted fields are kept
type UpdateIntegrationRequest struct {
	Secrets  map[string]string `json:"secrets" binding:"omitempty,min=1,dive,keys,required,endkeys,required"`
	Settings map[string]string `json:"settings"`
}

// SetEnabledRequest enables or disables an integration
type SetEnabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// SyncQuery holds the query flags of a sync trigger
type SyncQuery struct {
	Force bool `form:"force"`
	Async bool `form:"async"`
}

// SyncRequestBody optionally restricts a pass to explicit records
type SyncRequestBody struct {
	RecordIDs []string `json:"record_ids" binding:"omitempty,max=1000,dive,uuid"`
}

// JobHistoryQuery limits the job history listing
type JobHistoryQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
}
