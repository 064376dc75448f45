package fhe

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	testContract = common.HexToAddress("0x1000000000000000000000000000000000000001")
	testUser     = common.HexToAddress("0x2000000000000000000000000000000000000002")
)

func TestParseValuation(t *testing.T) {
	tests := []struct {
		in      string
		want    uint64
		wantErr error
	}{
		{"0", 0, nil},
		{"1000", 1000, nil},
		{"1,000", 1000, nil},
		{"1,000,000", 1000000, nil},
		{" 42 ", 42, nil},
		{"1 000 000", 1000000, nil},
		{"18446744073709551615", math.MaxUint64, nil},
		{"", 0, ErrEmptyValuation},
		{"   ", 0, ErrEmptyValuation},
		{"-1", 0, ErrNotAnInteger},
		{"1.5", 0, ErrNotAnInteger},
		{"1e6", 0, ErrNotAnInteger},
		{"0x10", 0, ErrNotAnInteger},
		{"abc", 0, ErrNotAnInteger},
		{"18446744073709551616", 0, ErrValuationTooLarge},
		{"99999999999999999999999", 0, ErrValuationTooLarge},
	}
	for _, tt := range tests {
		got, err := ParseValuation(tt.in)
		if tt.wantErr != nil {
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ParseValuation(%q) error = %v, want %v", tt.in, err, tt.wantErr)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseValuation(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseValuation(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 99, 100, 999, 1000, 123456, 1234567, 999999999, math.MaxUint64}
	for _, v := range values {
		formatted := FormatValuation(v)
		got, err := ParseValuation(formatted)
		if err != nil {
			t.Errorf("ParseValuation(FormatValuation(%d)=%q): %v", v, formatted, err)
			continue
		}
		if got != v {
			t.Errorf("round trip %d -> %q -> %d", v, formatted, got)
		}
	}
}

func TestFormatValuation(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1234567, "1,234,567"},
		{18446744073709551615, "18,446,744,073,709,551,615"},
	}
	for _, tt := range tests {
		if got := FormatValuation(tt.in); got != tt.want {
			t.Errorf("FormatValuation(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValuationFromBig(t *testing.T) {
	if _, err := ValuationFromBig(nil); err == nil {
		t.Error("nil should be rejected")
	}
	if _, err := ValuationFromBig(big.NewInt(-5)); !errors.Is(err, ErrNotAnInteger) {
		t.Errorf("negative: got %v", err)
	}
	over := new(big.Int).Lsh(big.NewInt(1), 64)
	if _, err := ValuationFromBig(over); !errors.Is(err, ErrValuationTooLarge) {
		t.Errorf("2^64: got %v", err)
	}
	v, err := ValuationFromBig(big.NewInt(1040))
	if err != nil || v != 1040 {
		t.Errorf("1040: got %d, %v", v, err)
	}
}

func TestEncodeHex(t *testing.T) {
	tests := []struct {
		in   []byte
		want string
	}{
		{nil, "0x"},
		{[]byte{0x00}, "0x00"},
		{[]byte{0xde, 0xad, 0xbe, 0xef}, "0xdeadbeef"},
		{[]byte{0x0f, 0xf0}, "0x0ff0"},
	}
	for _, tt := range tests {
		if got := EncodeHex(tt.in); got != tt.want {
			t.Errorf("EncodeHex(%x) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEncodeHexAnyIdempotent(t *testing.T) {
	// Already-encoded strings pass through unchanged.
	s, err := EncodeHexAny("0xdeadbeef")
	if err != nil || s != "0xdeadbeef" {
		t.Errorf("string passthrough: got %q, %v", s, err)
	}
	s, err = EncodeHexAny([]byte{0xab})
	if err != nil || s != "0xab" {
		t.Errorf("bytes: got %q, %v", s, err)
	}
	if _, err := EncodeHexAny(42); err == nil {
		t.Error("unsupported type should error")
	}
}

func TestEncryptOne(t *testing.T) {
	fc := &fakeCryptor{}
	input := newEncryptedInput(fc, testContract, testUser)

	val, err := EncryptOne(context.Background(), input, 1000)
	if err != nil {
		t.Fatalf("EncryptOne: %v", err)
	}
	if !strings.HasPrefix(val.Handle, "0x") || len(val.Handle) != 2+64 {
		t.Errorf("handle %q is not 32 bytes of hex", val.Handle)
	}
	if !strings.HasPrefix(val.Proof, "0x") || len(val.Proof) == 2 {
		t.Errorf("proof %q is empty or unprefixed", val.Proof)
	}
	if got := fc.calls.Load(); got != 1 {
		t.Errorf("expected exactly one encrypt call, got %d", got)
	}
}

func TestEncryptOneIncompleteResultIsHardFailure(t *testing.T) {
	tests := []struct {
		name string
		res  *CipherResult
	}{
		{"no handles", &CipherResult{Proof: []byte{1}}},
		{"empty handle", &CipherResult{Handles: [][]byte{{}}, Proof: []byte{1}}},
		{"no proof", &CipherResult{Handles: [][]byte{{1}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := &fakeCryptor{badResult: tt.res}
			input := newEncryptedInput(fc, testContract, testUser)
			if _, err := EncryptOne(context.Background(), input, 7); !errors.Is(err, ErrBadCipherResult) {
				t.Errorf("expected ErrBadCipherResult, got %v", err)
			}
		})
	}
}

func TestEncryptManyOrderAndSharedProof(t *testing.T) {
	fc := &fakeCryptor{}
	input := newEncryptedInput(fc, testContract, testUser)

	amounts := []uint64{1000, 1040, 1200}
	handles, proof, err := EncryptMany(context.Background(), input, amounts)
	if err != nil {
		t.Fatalf("EncryptMany: %v", err)
	}
	if len(handles) != len(amounts) {
		t.Fatalf("got %d handles, want %d", len(handles), len(amounts))
	}
	if proof == "" || !strings.HasPrefix(proof, "0x") {
		t.Fatalf("bad shared proof %q", proof)
	}
	if got := fc.calls.Load(); got != 1 {
		t.Errorf("batch must use a single encrypt call, got %d", got)
	}
	// handle[i] corresponds to amounts[i]: the fake embeds the value in the
	// trailing eight bytes of each 32-byte handle.
	for i, h := range handles {
		if len(h) != 2+64 {
			t.Fatalf("handle %d has hex length %d, want 66", i, len(h))
		}
		raw := common.FromHex(h)
		if got := binary.BigEndian.Uint64(raw[24:]); got != amounts[i] {
			t.Errorf("handle[%d] encodes %d, want %d", i, got, amounts[i])
		}
	}
}

func TestEncryptManyEmpty(t *testing.T) {
	input := newEncryptedInput(&fakeCryptor{}, testContract, testUser)
	if _, _, err := EncryptMany(context.Background(), input, nil); !errors.Is(err, ErrNoValues) {
		t.Errorf("expected ErrNoValues, got %v", err)
	}
}

func TestBpsToPercentage(t *testing.T) {
	tests := []struct {
		bps  uint16
		want string
	}{
		{0, "0.00%"},
		{1, "0.01%"},
		{500, "5.00%"},
		{550, "5.50%"},
		{10000, "100.00%"},
	}
	for _, tt := range tests {
		if got := BpsToPercentage(tt.bps); got != tt.want {
			t.Errorf("BpsToPercentage(%d) = %q, want %q", tt.bps, got, tt.want)
		}
	}
}

func TestIsValidToleranceBps(t *testing.T) {
	for _, ok := range []int{0, 1, 500, 10000} {
		if !IsValidToleranceBps(ok) {
			t.Errorf("%d should be valid", ok)
		}
	}
	for _, bad := range []int{-1, 10001, 1 << 20} {
		if IsValidToleranceBps(bad) {
			t.Errorf("%d should be invalid", bad)
		}
	}
}

func TestIsValidAddress(t *testing.T) {
	valid := []string{
		"0x1234567890123456789012345678901234567890",
		"0xAbcDEF1234567890123456789012345678901234",
		"1234567890123456789012345678901234567890",
	}
	for _, s := range valid {
		if !IsValidAddress(s) {
			t.Errorf("%q should be valid", s)
		}
	}
	invalid := []string{"", "0x", "0x1234", "not-an-address",
		"0x12345678901234567890123456789012345678zz"}
	for _, s := range invalid {
		if IsValidAddress(s) {
			t.Errorf("%q should be invalid", s)
		}
	}
}
