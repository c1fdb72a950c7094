package models

// ClaimState is the per-user badge eligibility view for one event. It is
// derived from two ledger predicates on each scan, never stored.
type ClaimState struct {
	EventID   int64 `json:"event_id"`
	HasSigned bool  `json:"has_signed"`
	CanClaim  bool  `json:"can_claim"`

	// Claimed is a client-side inference, not a ledger fact: a user who
	// signed in but is no longer eligible is assumed to have already
	// claimed. The ledger exposes no direct claimed(event, user) view.
	Claimed bool `json:"claimed"`
}

// DeriveClaimState applies the claimed inference to the two predicates.
func DeriveClaimState(eventID int64, hasSigned, canClaim bool) ClaimState {
	return ClaimState{
		EventID:   eventID,
		HasSigned: hasSigned,
		CanClaim:  canClaim,
		Claimed:   hasSigned && !canClaim,
	}
}
