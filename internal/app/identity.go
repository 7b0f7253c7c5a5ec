package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bookmarket/internal/util"
	"bookmarket/pkg/auth"
	"bookmarket/pkg/domain"
	"bookmarket/pkg/wallet"
)

// Register creates a password-based account. The role is fixed at
// registration and never changes afterwards.
func (a *App) Register(username, password, role string) (domain.Account, error) {
	username = strings.TrimSpace(strings.ToLower(username))
	if username == "" || password == "" {
		return domain.Account{}, ErrInvalidCredentials
	}
	parsedRole, ok := domain.ParseRole(strings.TrimSpace(role))
	if !ok {
		return domain.Account{}, ErrInvalidRole
	}
	if err := auth.ValidatePassword(password); err != nil {
		return domain.Account{}, err
	}
	exists, err := a.store.HasUsername(username)
	if err != nil {
		return domain.Account{}, fmt.Errorf("check username: %w", err)
	}
	if exists {
		return domain.Account{}, ErrUsernameTaken
	}
	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return domain.Account{}, fmt.Errorf("hash password: %w", err)
	}
	return a.createAccount(username, "", passwordHash, parsedRole)
}

// Login validates credentials and issues a bearer token.
func (a *App) Login(username, password string) (domain.Account, string, error) {
	username = strings.TrimSpace(strings.ToLower(username))
	account, ok, err := a.store.GetAccountByUsername(username)
	if err != nil {
		return domain.Account{}, "", fmt.Errorf("fetch account: %w", err)
	}
	if !ok || !auth.CheckPassword(password, account.PasswordHash) {
		return domain.Account{}, "", ErrInvalidCredentials
	}
	token, err := a.sessions.Issue(account.ID, account.Role)
	if err != nil {
		return domain.Account{}, "", fmt.Errorf("issue token: %w", err)
	}
	return account, token, nil
}

// WalletChallenge issues a one-time nonce and returns the exact message
// the wallet must sign.
func (a *App) WalletChallenge(ctx context.Context, address string) (message, nonce string, err error) {
	normalized, err := wallet.NormalizeAddress(address)
	if err != nil {
		return "", "", err
	}
	nonce, err = a.nonces.Issue(ctx, normalized)
	if err != nil {
		return "", "", fmt.Errorf("issue challenge: %w", err)
	}
	return wallet.ChallengeMessage(nonce), nonce, nil
}

// WalletLogin verifies a signature over a previously issued challenge and
// issues a bearer token. First successful verification auto-provisions an
// account with the buyer role, keyed by the lowercased address.
func (a *App) WalletLogin(ctx context.Context, address, nonce, signature string) (domain.Account, string, error) {
	normalized, err := wallet.NormalizeAddress(address)
	if err != nil {
		return domain.Account{}, "", err
	}
	ok, err := a.nonces.Consume(ctx, normalized, nonce)
	if err != nil {
		return domain.Account{}, "", fmt.Errorf("consume challenge: %w", err)
	}
	if !ok {
		return domain.Account{}, "", ErrInvalidNonce
	}
	if err := wallet.Verify(wallet.ChallengeMessage(nonce), signature, normalized); err != nil {
		return domain.Account{}, "", err
	}

	account, err := a.getOrCreateWalletAccount(normalized)
	if err != nil {
		return domain.Account{}, "", err
	}
	token, err := a.sessions.Issue(account.ID, account.Role)
	if err != nil {
		return domain.Account{}, "", fmt.Errorf("issue token: %w", err)
	}
	return account, token, nil
}

// AccountByID resolves the authoritative account record for a validated
// token subject.
func (a *App) AccountByID(id string) (domain.Account, bool) {
	account, ok, err := a.store.GetAccountByID(id)
	if err != nil || !ok {
		return domain.Account{}, false
	}
	return account, true
}

func (a *App) getOrCreateWalletAccount(address string) (domain.Account, error) {
	account, ok, err := a.store.GetAccountByWallet(address)
	if err != nil {
		return domain.Account{}, fmt.Errorf("fetch wallet account: %w", err)
	}
	if ok {
		return account, nil
	}
	created, err := a.createAccount(address, address, "", domain.RoleBuyer)
	if err == nil {
		return created, nil
	}
	// A concurrent first login may have provisioned the account already.
	if errors.Is(err, ErrUsernameTaken) {
		account, ok, err = a.store.GetAccountByWallet(address)
		if err == nil && ok {
			return account, nil
		}
	}
	return domain.Account{}, fmt.Errorf("provision wallet account: %w", err)
}

func (a *App) createAccount(username, walletAddress, passwordHash string, role domain.Role) (domain.Account, error) {
	exists, err := a.store.HasUsername(username)
	if err != nil {
		return domain.Account{}, fmt.Errorf("check username: %w", err)
	}
	if exists {
		return domain.Account{}, ErrUsernameTaken
	}
	now := time.Now().UTC()
	account := domain.Account{
		ID:            util.NewID(),
		Username:      username,
		WalletAddress: walletAddress,
		Role:          role,
		PasswordHash:  passwordHash,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := a.store.SaveAccount(account); err != nil {
		return domain.Account{}, fmt.Errorf("save account: %w", err)
	}
	return account, nil
}
