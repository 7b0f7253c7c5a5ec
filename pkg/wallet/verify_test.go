package wallet

import (
	"errors"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// signMessage produces a wallet-style r||s||v signature over message.
func signMessage(t *testing.T, key *secp256k1.PrivateKey, message string) string {
	t.Helper()
	compact := ecdsa.SignCompact(key, signedMessageDigest(message), false)
	sig := make([]byte, 65)
	copy(sig, compact[1:])
	sig[64] = compact[0]
	return "0x" + hexEncode(sig)
}

func hexEncode(b []byte) string {
	const digits = "0123456789abcdef"
	out := make([]byte, 0, len(b)*2)
	for _, c := range b {
		out = append(out, digits[c>>4], digits[c&0xf])
	}
	return string(out)
}

func TestVerifyRoundTrip(t *testing.T) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	address := AddressFromPublicKey(key.PubKey())
	message := ChallengeMessage("abc123")
	sig := signMessage(t, key, message)

	if err := Verify(message, sig, address); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestVerifyRejectsWrongAddress(t *testing.T) {
	key, _ := secp256k1.GeneratePrivateKey()
	other, _ := secp256k1.GeneratePrivateKey()
	message := ChallengeMessage("abc123")
	sig := signMessage(t, key, message)

	err := Verify(message, sig, AddressFromPublicKey(other.PubKey()))
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyRejectsTamperedMessage(t *testing.T) {
	key, _ := secp256k1.GeneratePrivateKey()
	address := AddressFromPublicKey(key.PubKey())
	sig := signMessage(t, key, ChallengeMessage("abc123"))

	err := Verify(ChallengeMessage("zzz999"), sig, address)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestRecoverAddressRejectsMalformed(t *testing.T) {
	for _, sig := range []string{"", "0x", "0xdeadbeef", "not-hex"} {
		if _, err := RecoverAddress("msg", sig); !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("sig %q: expected ErrInvalidSignature, got %v", sig, err)
		}
	}
}

func TestNormalizeAddress(t *testing.T) {
	got, err := NormalizeAddress("0xAbCd000000000000000000000000000000001234")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got != "0xabcd000000000000000000000000000000001234" {
		t.Fatalf("unexpected normalized address %q", got)
	}
	for _, bad := range []string{"", "abcd", "0x1234", "0xZZcd000000000000000000000000000000001234"} {
		if _, err := NormalizeAddress(bad); !errors.Is(err, ErrInvalidAddress) {
			t.Fatalf("address %q: expected ErrInvalidAddress, got %v", bad, err)
		}
	}
}
