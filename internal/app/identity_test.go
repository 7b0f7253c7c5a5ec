package app

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/sha3"

	"bookmarket/pkg/domain"
	"bookmarket/pkg/wallet"
)

// signChallenge produces a personal-sign style r||s||v signature the way
// a wallet would.
func signChallenge(t *testing.T, key *secp256k1.PrivateKey, message string) string {
	t.Helper()
	h := sha3.NewLegacyKeccak256()
	fmt.Fprintf(h, "\x19Ethereum Signed Message:\n%d%s", len(message), message)
	compact := ecdsa.SignCompact(key, h.Sum(nil), false)
	sig := make([]byte, 65)
	copy(sig, compact[1:])
	sig[64] = compact[0]
	return "0x" + hex.EncodeToString(sig)
}

func TestWalletLoginProvisionsAccount(t *testing.T) {
	env := newTestApp(t)
	ctx := context.Background()
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	address := wallet.AddressFromPublicKey(key.PubKey())

	message, nonce, err := env.app.WalletChallenge(ctx, address)
	if err != nil {
		t.Fatalf("challenge: %v", err)
	}
	account, token, err := env.app.WalletLogin(ctx, address, nonce, signChallenge(t, key, message))
	if err != nil {
		t.Fatalf("wallet login: %v", err)
	}
	if token == "" {
		t.Fatal("empty token")
	}
	if account.Role != domain.RoleBuyer {
		t.Fatalf("auto-provisioned role = %q, want buyer", account.Role)
	}
	if account.Username != address || account.WalletAddress != address {
		t.Fatalf("account keyed by %q / wallet %q, want %q", account.Username, account.WalletAddress, address)
	}

	// A later login reuses the same account.
	message, nonce, err = env.app.WalletChallenge(ctx, address)
	if err != nil {
		t.Fatalf("second challenge: %v", err)
	}
	again, _, err := env.app.WalletLogin(ctx, address, nonce, signChallenge(t, key, message))
	if err != nil {
		t.Fatalf("second wallet login: %v", err)
	}
	if again.ID != account.ID {
		t.Fatalf("second login provisioned a new account %q, want %q", again.ID, account.ID)
	}
}

func TestWalletLoginWrongSigner(t *testing.T) {
	env := newTestApp(t)
	ctx := context.Background()
	key, _ := secp256k1.GeneratePrivateKey()
	other, _ := secp256k1.GeneratePrivateKey()
	address := wallet.AddressFromPublicKey(key.PubKey())

	message, nonce, err := env.app.WalletChallenge(ctx, address)
	if err != nil {
		t.Fatalf("challenge: %v", err)
	}
	_, _, err = env.app.WalletLogin(ctx, address, nonce, signChallenge(t, other, message))
	if !errors.Is(err, wallet.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	// The failed attempt burned the nonce and provisioned nothing.
	if _, ok, _ := env.store.GetAccountByWallet(address); ok {
		t.Fatal("failed login must not provision an account")
	}
	_, _, err = env.app.WalletLogin(ctx, address, nonce, signChallenge(t, key, message))
	if !errors.Is(err, ErrInvalidNonce) {
		t.Fatalf("expected ErrInvalidNonce after burned nonce, got %v", err)
	}
}

func TestWalletLoginUnknownNonce(t *testing.T) {
	env := newTestApp(t)
	key, _ := secp256k1.GeneratePrivateKey()
	address := wallet.AddressFromPublicKey(key.PubKey())
	message := wallet.ChallengeMessage("made-up")

	_, _, err := env.app.WalletLogin(context.Background(), address, "made-up", signChallenge(t, key, message))
	if !errors.Is(err, ErrInvalidNonce) {
		t.Fatalf("expected ErrInvalidNonce, got %v", err)
	}
}

func TestWalletChallengeRejectsBadAddress(t *testing.T) {
	env := newTestApp(t)
	if _, _, err := env.app.WalletChallenge(context.Background(), "not-an-address"); !errors.Is(err, wallet.ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
}
