package fhe

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrInputConsumed is returned when an input is encrypted twice or
	// appended to after encryption. Inputs are single-use: the proof binds
	// the exact staged sequence.
	ErrInputConsumed = errors.New("fhe: encrypted input already consumed")
	// ErrNoValues is returned when Encrypt is called on an empty input.
	ErrNoValues = errors.New("fhe: no values staged for encryption")
)

// CipherResult is the output of one encrypt operation: one ciphertext
// handle per staged value, in staging order, plus a single proof shared by
// all of them.
type CipherResult struct {
	Handles [][]byte
	Proof   []byte
}

// EncryptedInput stages unsigned 64-bit values for one encrypt operation.
// It is bound at creation to the (contract, user) pair the proof will
// attest to; the remote program rejects the proof if the actual call target
// or caller differ. An input is consumed by exactly one Encrypt call and
// cannot be reused.
type EncryptedInput struct {
	cryptor  Cryptor
	contract common.Address
	user     common.Address
	values   []uint64
	consumed bool
}

func newEncryptedInput(cryptor Cryptor, contract, user common.Address) *EncryptedInput {
	return &EncryptedInput{
		cryptor:  cryptor,
		contract: contract,
		user:     user,
	}
}

// Contract returns the contract address the input is bound to.
func (in *EncryptedInput) Contract() common.Address { return in.contract }

// User returns the user address the input is bound to.
func (in *EncryptedInput) User() common.Address { return in.user }

// Len returns the number of staged values.
func (in *EncryptedInput) Len() int { return len(in.values) }

// Add64 stages one unsigned 64-bit value. Order is significant: the i-th
// staged value yields the i-th handle of the encrypt result.
func (in *EncryptedInput) Add64(v uint64) error {
	if in.consumed {
		return ErrInputConsumed
	}
	in.values = append(in.values, v)
	return nil
}

// Encrypt consumes the input, producing handles and the shared proof. The
// input is unusable afterwards even if encryption fails; callers build a
// fresh input per attempt.
func (in *EncryptedInput) Encrypt(ctx context.Context) (*CipherResult, error) {
	if in.consumed {
		return nil, ErrInputConsumed
	}
	in.consumed = true
	if len(in.values) == 0 {
		return nil, ErrNoValues
	}
	return in.cryptor.Encrypt(ctx, in.contract, in.user, in.values)
}
