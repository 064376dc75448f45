package barter

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEngineUnavailable is returned when a submission or decrypt is
	// attempted before the encryption engine is ready. No network work is
	// attempted in this case.
	ErrEngineUnavailable = errors.New("barter: encryption engine unavailable")
	// ErrBadCounterparty is returned for a zero counterparty address.
	ErrBadCounterparty = errors.New("barter: counterparty address is invalid")
	// ErrSelfBarter is returned when the counterparty equals the caller.
	ErrSelfBarter = errors.New("barter: counterparty must differ from your own account")
	// ErrToleranceRange is returned for a tolerance outside [0, 10000] bps.
	ErrToleranceRange = errors.New("barter: tolerance must be between 0 and 10000 basis points")
	// ErrProofRejected is returned when the pre-submission simulation
	// rejects an encrypted valuation, before any gas is spent.
	ErrProofRejected = errors.New("barter: encrypted submission rejected in simulation")
	// ErrUserDeclined is returned when the signer rejected the transaction.
	// It is never retried automatically.
	ErrUserDeclined = errors.New("barter: transaction declined by signer")
	// ErrInsufficientFunds is returned when the account cannot cover gas.
	ErrInsufficientFunds = errors.New("barter: insufficient funds for transaction")
	// ErrCreationEventMissing is returned when a create transaction
	// confirmed but its receipt carries no creation event. The assigned id
	// is unknowable in that case, so it is surfaced instead of guessed.
	ErrCreationEventMissing = errors.New("barter: creation confirmed but no creation event found")
	// ErrNotComputable is returned when compute is requested before both
	// valuations are in, or after a result or cancellation.
	ErrNotComputable = errors.New("barter: fairness cannot be computed yet")
	// ErrNotCancelable is returned when cancel is requested on a barter
	// that already has a result or is already canceled.
	ErrNotCancelable = errors.New("barter: barter can no longer be canceled")
)

// classifySend maps raw signer/network failures from a transaction
// submission onto the error taxonomy. Unrecognized failures pass through
// unchanged.
func classifySend(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "user rejected"),
		strings.Contains(msg, "user denied"),
		strings.Contains(msg, "action_rejected"):
		return fmt.Errorf("%w: %v", ErrUserDeclined, err)
	case strings.Contains(msg, "insufficient funds"):
		return fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
	}
	return err
}

// classifyDryRun wraps a simulation failure with actionable guidance. The
// raw revert from a rejected proof says nothing useful to the submitter, so
// the likely cause is named instead.
func classifyDryRun(err error) error {
	if err == nil {
		return nil
	}
	guidance := "check that the encrypted input was bound to the contract and account actually submitting"
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "relayer"):
		guidance = "the relayer appears unreachable; retry once it is available"
	case strings.Contains(msg, "proof"):
		guidance = "the input proof was rejected; re-encrypt with fresh key material"
	}
	return fmt.Errorf("%w (%s): %v", ErrProofRejected, guidance, err)
}
