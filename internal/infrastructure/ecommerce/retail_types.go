package ecommerce

// Retail marketplace listings API constants
const (
	RetailProductionURL = "https://sellingpartner.retailhub.com"
	RetailSandboxURL    = "https://sandbox.sellingpartner.retailhub.com"

	RetailTokenPath    = "/auth/o2/token"
	RetailListingsPath = "/listings/2021-08-01/items"

	RetailDefaultMarketplaceID = "RETAIL_US"
	RetailDefaultCurrency      = "USD"
	RetailDefaultScope         = "sellingpartnerapi::listings"
	RetailProductType          = "COLLECTIBLE_CARD"
	RetailVariationTheme       = "FINISH_EDITION"

	RetailStatusAccepted = "ACCEPTED"
	RetailStatusInvalid  = "INVALID"
	RetailSeverityError  = "ERROR"
)

// RetailErrorResponse is the error body of the retail API
type RetailErrorResponse struct {
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// RetailIssue is a listing validation issue
type RetailIssue struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// RetailAttributeValue is one value of a listing attribute
type RetailAttributeValue struct {
	Value         any    `json:"value,omitempty"`
	MarketplaceID string `json:"marketplace_id,omitempty"`
}

// RetailListingRequest creates or fully replaces a listing
type RetailListingRequest struct {
	ProductType  string         `json:"productType"`
	Requirements string         `json:"requirements,omitempty"`
	Attributes   map[string]any `json:"attributes"`
}

// RetailPatch is one JSON patch operation on listing attributes
type RetailPatch struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value []any  `json:"value"`
}

// RetailPatchRequest partially updates a listing
type RetailPatchRequest struct {
	ProductType string        `json:"productType"`
	Patches     []RetailPatch `json:"patches"`
}

// RetailSubmission is the response of listing writes
type RetailSubmission struct {
	SKU          string        `json:"sku"`
	Status       string        `json:"status"`
	SubmissionID string        `json:"submissionId"`
	Issues       []RetailIssue `json:"issues"`
}

// RetailFulfillmentAvailability is the quantity of a listing in one fulfillment channel
type RetailFulfillmentAvailability struct {
	FulfillmentChannelCode string `json:"fulfillmentChannelCode"`
	Quantity               int    `json:"quantity"`
}

// RetailListing is a listing as read back
type RetailListing struct {
	SKU                     string                          `json:"sku"`
	Attributes              map[string]any                  `json:"attributes,omitempty"`
	FulfillmentAvailability []RetailFulfillmentAvailability `json:"fulfillmentAvailability,omitempty"`
	Issues                  []RetailIssue                   `json:"issues,omitempty"`
}

// RetailListingPage is one page of a listings search
type RetailListingPage struct {
	NumberOfResults int             `json:"numberOfResults"`
	Items           []RetailListing `json:"items"`
	Pagination      struct {
		NextToken string `json:"nextToken,omitempty"`
	} `json:"pagination"`
}

// RetailParticipations lists the marketplaces the seller participates in
type RetailParticipations struct {
	Payload []struct {
		Marketplace struct {
			ID string `json:"id"`
		} `json:"marketplace"`
	} `json:"payload"`
}
