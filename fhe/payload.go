package fhe

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// MaxUint64Decimal is the largest value an euint64 can carry, as entered by
// a user: 18,446,744,073,709,551,615.
const MaxUint64Decimal = "18446744073709551615"

var (
	// ErrEmptyValuation is returned for blank input.
	ErrEmptyValuation = errors.New("fhe: valuation input is empty")
	// ErrNotAnInteger is returned when the input is not a plain decimal
	// integer after separator stripping.
	ErrNotAnInteger = errors.New("fhe: valuation must be a non-negative integer")
	// ErrValuationTooLarge is returned when the value exceeds 2^64-1.
	ErrValuationTooLarge = errors.New("fhe: valuation exceeds euint64 maximum")
	// ErrBadCipherResult is returned when the encrypt operation yields a
	// result without handles or without a proof. Either absence is a hard
	// failure, never a partial result.
	ErrBadCipherResult = errors.New("fhe: encrypt returned incomplete result")
)

// EncryptedValuation is the transport form of one encrypted value: the
// ciphertext handle and the zero-knowledge input proof, both as 0x-prefixed
// lowercase hex. No other representation crosses the call boundary.
type EncryptedValuation struct {
	Handle string
	Proof  string
}

// EncryptOne stages amount on input and performs the single encrypt call,
// returning the handle/proof pair for the contract submission.
func EncryptOne(ctx context.Context, input *EncryptedInput, amount uint64) (*EncryptedValuation, error) {
	if err := input.Add64(amount); err != nil {
		return nil, err
	}
	res, err := input.Encrypt(ctx)
	if err != nil {
		return nil, fmt.Errorf("fhe: encrypt valuation: %w", err)
	}
	if res == nil || len(res.Handles) == 0 || len(res.Handles[0]) == 0 || len(res.Proof) == 0 {
		return nil, ErrBadCipherResult
	}
	return &EncryptedValuation{
		Handle: EncodeHex(res.Handles[0]),
		Proof:  EncodeHex(res.Proof),
	}, nil
}

// EncryptMany stages all amounts on the same input before one encrypt call,
// so every handle shares a single proof. Handles come back in staging
// order: handle[i] corresponds to amounts[i].
func EncryptMany(ctx context.Context, input *EncryptedInput, amounts []uint64) (handles []string, proof string, err error) {
	if len(amounts) == 0 {
		return nil, "", ErrNoValues
	}
	for _, a := range amounts {
		if err := input.Add64(a); err != nil {
			return nil, "", err
		}
	}
	res, err := input.Encrypt(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("fhe: encrypt valuations: %w", err)
	}
	if res == nil || len(res.Handles) != len(amounts) || len(res.Proof) == 0 {
		return nil, "", ErrBadCipherResult
	}
	handles = make([]string, len(res.Handles))
	for i, h := range res.Handles {
		if len(h) == 0 {
			return nil, "", ErrBadCipherResult
		}
		handles[i] = EncodeHex(h)
	}
	return handles, EncodeHex(res.Proof), nil
}

// EncodeHex renders bytes as 0x-prefixed lowercase hex, two digits per
// byte. Inputs that are already hex strings pass through EncodeHexAny
// unchanged, keeping the encoding idempotent at the transport boundary.
func EncodeHex(b []byte) string {
	var sb strings.Builder
	sb.Grow(2 + 2*len(b))
	sb.WriteString("0x")
	const digits = "0123456789abcdef"
	for _, c := range b {
		sb.WriteByte(digits[c>>4])
		sb.WriteByte(digits[c&0x0f])
	}
	return sb.String()
}

// EncodeHexAny accepts either raw bytes or an already-encoded hex string.
// Strings pass through unchanged; any other type is an error.
func EncodeHexAny(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return EncodeHex(x), nil
	default:
		return "", fmt.Errorf("fhe: cannot hex-encode value of type %T", v)
	}
}

// valuationSeparators strips thousands separators and whitespace before the
// digit scan: "1,000 000" and "1000000" parse identically.
var valuationSeparators = regexp.MustCompile(`[,\s]`)

// ParseValuation converts user-entered text to a uint64 valuation. It
// rejects anything that is not a plain non-negative decimal integer within
// euint64 range, so malformed or out-of-range submissions fail before any
// encryption or network work is spent.
func ParseValuation(text string) (uint64, error) {
	cleaned := valuationSeparators.ReplaceAllString(text, "")
	if cleaned == "" {
		return 0, ErrEmptyValuation
	}
	for _, r := range cleaned {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("%w: %q", ErrNotAnInteger, text)
		}
	}
	v, err := strconv.ParseUint(cleaned, 10, 64)
	if err != nil {
		// Digits-only input that still fails can only be out of range.
		return 0, fmt.Errorf("%w (max %s)", ErrValuationTooLarge, MaxUint64Decimal)
	}
	return v, nil
}

// ValuationFromBig validates that v fits an euint64. Used where amounts
// arrive as big integers rather than text.
func ValuationFromBig(v *big.Int) (uint64, error) {
	if v == nil {
		return 0, ErrEmptyValuation
	}
	if v.Sign() < 0 {
		return 0, fmt.Errorf("%w: %s", ErrNotAnInteger, v)
	}
	if !v.IsUint64() {
		return 0, fmt.Errorf("%w (max %s)", ErrValuationTooLarge, MaxUint64Decimal)
	}
	return v.Uint64(), nil
}

// FormatValuation renders v with thousands separators for display.
// ParseValuation(FormatValuation(v)) == v for all v.
func FormatValuation(v uint64) string {
	s := strconv.FormatUint(v, 10)
	if len(s) <= 3 {
		return s
	}
	var sb strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		sb.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if sb.Len() > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(s[i : i+3])
	}
	return sb.String()
}

// IsValidAddress reports whether s is a well-formed hex address. Used to
// vet user-entered counterparties before any contract call.
func IsValidAddress(s string) bool {
	return common.IsHexAddress(s)
}

// BpsToPercentage renders basis points as a percentage string: 500 -> "5.00%".
func BpsToPercentage(bps uint16) string {
	return fmt.Sprintf("%d.%02d%%", bps/100, bps%100)
}

// IsValidToleranceBps reports whether bps is within the contract's
// accepted range [0, 10000].
func IsValidToleranceBps(bps int) bool {
	return bps >= 0 && bps <= 10000
}
