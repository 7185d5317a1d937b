package storage

// ReceiptFilter narrows ListReceipts. Zero value lists everything.
type ReceiptFilter struct {
	StatementID   string // Only receipts in this statement (empty = all)
	Unassigned    bool   // Only receipts with no statement
	UnmatchedOnly bool
	NeedsReview   bool
}

// ChargeFilter narrows ListCharges. Zero value lists everything.
type ChargeFilter struct {
	StatementID   string // Only charges in this statement (empty = all)
	UnmatchedOnly bool
}

// Stats holds aggregate reconciliation counts
type Stats struct {
	Receipts            int `json:"receipts"`
	MatchedReceipts     int `json:"matched_receipts"`
	UnassignedReceipts  int `json:"unassigned_receipts"`
	NeedsReview         int `json:"needs_review"`
	Charges             int `json:"charges"`
	MatchedCharges      int `json:"matched_charges"`
	ChargesOwingReceipt int `json:"charges_owing_receipt"`
	Skips               int `json:"skips"`
	ModelVersion        int `json:"model_version"`
}
