package wallet

import (
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/sha3"
)

// ErrInvalidSignature is returned when a signature is malformed or was not
// produced by the claimed address.
var ErrInvalidSignature = errors.New("invalid signature")

// ErrInvalidAddress is returned for inputs that are not 0x-prefixed
// 20-byte hex addresses.
var ErrInvalidAddress = errors.New("invalid wallet address")

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// NormalizeAddress validates the address shape and lowercases it so it can
// serve as a stable identity key.
func NormalizeAddress(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if !addressPattern.MatchString(addr) {
		return "", ErrInvalidAddress
	}
	return strings.ToLower(addr), nil
}

// ChallengeMessage is the exact text a wallet must sign for the nonce.
func ChallengeMessage(nonce string) string {
	return fmt.Sprintf("Sign this message to authenticate with Book Market.\n\nNonce: %s", nonce)
}

// RecoverAddress recovers the signer address from a personal-sign style
// signature (r||s||v hex) over message.
func RecoverAddress(message, sigHex string) (string, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(sigHex), "0x"))
	if err != nil || len(sig) != 65 {
		return "", ErrInvalidSignature
	}
	// Wallets emit r||s||v; compact recovery wants the header first.
	v := sig[64]
	if v < 27 {
		v += 27
	}
	compact := make([]byte, 65)
	compact[0] = v
	copy(compact[1:], sig[:64])

	digest := signedMessageDigest(message)
	pub, _, err := ecdsa.RecoverCompact(compact, digest)
	if err != nil {
		return "", ErrInvalidSignature
	}
	return AddressFromPublicKey(pub), nil
}

// Verify checks that sigHex over message was produced by claimed. The
// comparison is case-insensitive on the hex address.
func Verify(message, sigHex, claimed string) error {
	claimed, err := NormalizeAddress(claimed)
	if err != nil {
		return err
	}
	recovered, err := RecoverAddress(message, sigHex)
	if err != nil {
		return err
	}
	if recovered != claimed {
		return ErrInvalidSignature
	}
	return nil
}

// AddressFromPublicKey derives the 0x address: the last 20 bytes of the
// keccak-256 hash of the uncompressed public key.
func AddressFromPublicKey(pub *secp256k1.PublicKey) string {
	raw := pub.SerializeUncompressed()
	h := sha3.NewLegacyKeccak256()
	h.Write(raw[1:])
	sum := h.Sum(nil)
	return "0x" + hex.EncodeToString(sum[12:])
}

// signedMessageDigest applies the signed-message envelope before hashing,
// matching what wallets prepend during personal signing.
func signedMessageDigest(message string) []byte {
	h := sha3.NewLegacyKeccak256()
	fmt.Fprintf(h, "\x19Ethereum Signed Message:\n%d%s", len(message), message)
	return h.Sum(nil)
}
