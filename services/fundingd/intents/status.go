package intents

import "strings"

// Status enumerates the swap states reported by the provider. Unrecognised
// provider codes parse to StatusUnknown so new upstream states degrade to the
// reconciler's conservative default branch instead of being silently dropped.
type Status string

const (
	StatusUnknown           Status = "UNKNOWN"
	StatusPendingDeposit    Status = "PENDING_DEPOSIT"
	StatusProcessing        Status = "PROCESSING"
	StatusSuccess           Status = "SUCCESS"
	StatusFailed            Status = "FAILED"
	StatusRefunded          Status = "REFUNDED"
	StatusIncompleteDeposit Status = "INCOMPLETE_DEPOSIT"
)

// ParseStatus maps a raw provider status code onto the closed enumeration.
func ParseStatus(raw string) Status {
	switch Status(strings.ToUpper(strings.TrimSpace(raw))) {
	case StatusPendingDeposit:
		return StatusPendingDeposit
	case StatusProcessing:
		return StatusProcessing
	case StatusSuccess:
		return StatusSuccess
	case StatusFailed:
		return StatusFailed
	case StatusRefunded:
		return StatusRefunded
	case StatusIncompleteDeposit:
		return StatusIncompleteDeposit
	default:
		return StatusUnknown
	}
}

// Terminal reports whether the provider will make no further progress on the
// swap behind this status.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusRefunded, StatusIncompleteDeposit:
		return true
	default:
		return false
	}
}

func (s Status) String() string { return string(s) }
