package dto

// CorrelateRequest triggers one correlation pass for a seller
type CorrelateRequest struct {
	SellerID      string `json:"sellerId" validate:"required,max=64"`
	LookbackHours *int   `json:"lookbackHours,omitempty" validate:"omitempty,min=1,max=8760"`
	OrderLimit    *int   `json:"orderLimit,omitempty" validate:"omitempty,min=1"`
	DryRun        bool   `json:"dryRun"`
}

// CorrelationMatchDTO is a match computed by a dry run
type CorrelationMatchDTO struct {
	OrderID        string  `json:"orderId"`
	ClickID        string  `json:"clickId"`
	ConfidenceTier string  `json:"confidenceTier"`
	MatchMethod    string  `json:"matchMethod"`
	MatchScore     int     `json:"matchScore"`
	ElapsedHours   float64 `json:"elapsedHours"`
	ItemID         string  `json:"itemId,omitempty"`
}

// CorrelationSummaryResponse is returned by every correlation pass, even a failed one
type CorrelationSummaryResponse struct {
	RunID                string                `json:"runId"`
	SellerID             string                `json:"sellerId"`
	DryRun               bool                  `json:"dryRun"`
	OrdersProcessed      int                   `json:"ordersProcessed"`
	OrdersWithCandidates int                   `json:"ordersWithCandidates"`
	Correlated           int                   `json:"correlated"`
	AlreadyCorrelated    int                   `json:"alreadyCorrelated"`
	NoMatch              int                   `json:"noMatch"`
	Errors               int                   `json:"errors"`
	StartedAt            string                `json:"startedAt"`
	FinishedAt           string                `json:"finishedAt"`
	Matches              []CorrelationMatchDTO `json:"matches,omitempty"`
}

// CorrelationRunDTO is one audit row of a past pass
type CorrelationRunDTO struct {
	RunID                string  `json:"run_id"`
	SellerID             string  `json:"seller_id"`
	DryRun               bool    `json:"dry_run"`
	Status               string  `json:"status"`
	LookbackHours        int     `json:"lookback_hours"`
	OrderLimit           int     `json:"order_limit"`
	OrdersProcessed      int     `json:"orders_processed"`
	OrdersWithCandidates int     `json:"orders_with_candidates"`
	Correlated           int     `json:"correlated"`
	AlreadyCorrelated    int     `json:"already_correlated"`
	NoMatch              int     `json:"no_match"`
	Errors               int     `json:"errors"`
	FailureReason        *string `json:"failure_reason,omitempty"`
	StartedAt            string  `json:"started_at"`
	FinishedAt           *string `json:"finished_at,omitempty"`
}

// ListCorrelationRunsRequest filters the run history
type ListCorrelationRunsRequest struct {
	SellerID *string `query:"seller_id" validate:"omitempty,max=64"`
	Limit    int     `query:"limit" validate:"omitempty,min=1,max=200"`
}

// ListCorrelationRunsResponse lists past passes, newest first
type ListCorrelationRunsResponse struct {
	Items []CorrelationRunDTO `json:"items"`
}

// ExportConversionsRequest selects the conversions written to the report
type ExportConversionsRequest struct {
	From    string  `query:"from" validate:"required"`
	To      string  `query:"to" validate:"required"`
	MinTier *string `query:"min_tier" validate:"omitempty,oneof=high medium low"`
}

// ExportConversionsResponse carries the generated workbook
type ExportConversionsResponse struct {
	Filename string
	Data     []byte
	Rows     int
}
