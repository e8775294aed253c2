// Package model defines domain entities for the application.
package model

import "time"

// OutcomeState is the tag of a MintOutcome.
type OutcomeState string

const (
	OutcomeIdle    OutcomeState = "idle"
	OutcomePending OutcomeState = "pending"
	OutcomeSuccess OutcomeState = "success"
	OutcomeFailure OutcomeState = "failure"
)

// Messages surfaced on a failed mint.
const (
	// MintRejectedMessage is reported when the write call yields no result.
	MintRejectedMessage = "Transaction failed or was rejected."
	// MintUnexpectedMessage is reported when an error carries no message.
	MintUnexpectedMessage = "An unexpected error occurred."
)

// Address is an externally supplied account address (0x-prefixed hex).
type Address string

// String returns the address as a plain string.
func (a Address) String() string {
	return string(a)
}

// MintRequest is constructed fresh for every submission.
type MintRequest struct {
	Recipient Address
}

// MintOutcome is the tagged outcome of the latest mint submission.
// TxHash is set only for OutcomeSuccess, Message only for OutcomeFailure.
type MintOutcome struct {
	State   OutcomeState
	TxHash  string
	Message string
}

// IdleOutcome returns the initial outcome.
func IdleOutcome() MintOutcome {
	return MintOutcome{State: OutcomeIdle}
}

// PendingOutcome returns an outcome with no payload.
func PendingOutcome() MintOutcome {
	return MintOutcome{State: OutcomePending}
}

// SuccessOutcome returns a settled outcome carrying the transaction hash.
func SuccessOutcome(txHash string) MintOutcome {
	return MintOutcome{State: OutcomeSuccess, TxHash: txHash}
}

// FailureOutcome returns a settled outcome carrying a user-visible message.
func FailureOutcome(message string) MintOutcome {
	if message == "" {
		message = MintUnexpectedMessage
	}
	return MintOutcome{State: OutcomeFailure, Message: message}
}

// IsPending reports whether a submission is in flight.
func (o MintOutcome) IsPending() bool {
	return o.State == OutcomePending
}

// IsSettled reports whether the outcome is Success or Failure.
func (o MintOutcome) IsSettled() bool {
	return o.State == OutcomeSuccess || o.State == OutcomeFailure
}

// MintStatus is the persisted status of a mint attempt.
type MintStatus string

const (
	MintStatusPending MintStatus = "pending"
	MintStatusSuccess MintStatus = "success"
	MintStatusFailure MintStatus = "failure"
)

// MintAttempt is one row of the mint ledger.
type MintAttempt struct {
	ID        string     `json:"id"`
	Contract  string     `json:"contract"`
	Recipient string     `json:"recipient"`
	Status    MintStatus `json:"status"`
	TxHash    string     `json:"tx_hash,omitempty"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	SettledAt *time.Time `json:"settled_at,omitempty"`
}

// StatusFromOutcome maps a settled outcome to its ledger status.
func StatusFromOutcome(o MintOutcome) MintStatus {
	switch o.State {
	case OutcomeSuccess:
		return MintStatusSuccess
	case OutcomeFailure:
		return MintStatusFailure
	default:
		return MintStatusPending
	}
}
