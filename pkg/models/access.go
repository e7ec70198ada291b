package models

import "github.com/google/uuid"

// AccessMode is the mode a caller asks for
type AccessMode string

const (
	AccessModeFull  AccessMode = "full"
	AccessModeTrial AccessMode = "trial"
)

// ResolvedMode is the mode the service actually grants
type ResolvedMode string

const (
	ResolvedFull   ResolvedMode = "full"
	ResolvedTrial  ResolvedMode = "trial"
	ResolvedDenied ResolvedMode = "denied"
)

// DecisionReason explains a resolved mode
type DecisionReason string

const (
	ReasonPurchased        DecisionReason = "purchased"
	ReasonTrialRequested   DecisionReason = "trial_requested"
	ReasonRequiresPurchase DecisionReason = "requires_purchase"
)

// AccessDecision is computed fresh for every request and never stored
type AccessDecision struct {
	BookID        uuid.UUID      `json:"book_id"`
	UserID        string         `json:"user_id,omitempty"`
	RequestedMode AccessMode     `json:"requested_mode"`
	ResolvedMode  ResolvedMode   `json:"resolved_mode"`
	Reason        DecisionReason `json:"reason"`
}

// Denied reports whether the decision refuses delivery
func (d *AccessDecision) Denied() bool {
	return d.ResolvedMode == ResolvedDenied
}

// IsTrial reports whether the decision limits delivery to the trial slice
func (d *AccessDecision) IsTrial() bool {
	return d.ResolvedMode == ResolvedTrial
}

// AccessSummary describes what a caller could obtain for a book without
// downloading it
type AccessSummary struct {
	BookID        uuid.UUID `json:"bookId" yaml:"bookId"`
	HasPurchased  bool      `json:"hasPurchased" yaml:"hasPurchased"`
	IsLoggedIn    bool      `json:"isLoggedIn" yaml:"isLoggedIn"`
	TrialSections int       `json:"trialSections" yaml:"trialSections"`
}
