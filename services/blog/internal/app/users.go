package app

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"blogstore/internal/util"
	"blogstore/pkg/auth"
	"blogstore/pkg/domain"
	"blogstore/pkg/store"
)

// SignUp registers a new account.
func (a *App) SignUp(ctx context.Context, username, email, password string) (domain.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(strings.ToLower(email))
	if err := required([2]string{"username", username}, [2]string{"email", email}, [2]string{"password", password}); err != nil {
		return domain.User{}, err
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return domain.User{}, &ValidationError{Field: "email", Err: errors.New("invalid email address")}
	}
	if err := auth.ValidatePassword(password); err != nil {
		return domain.User{}, &ValidationError{Field: "password", Err: err}
	}

	sctx, cancel := a.storeCtx(ctx)
	defer cancel()
	_, exists, err := a.store.GetUserByEmail(sctx, email)
	if err != nil {
		return domain.User{}, operationError("check email", err)
	}
	if exists {
		return domain.User{}, ErrEmailAlreadyExists
	}
	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	user := domain.User{
		ID:           util.NewID(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    store.Now(),
	}
	if err := a.store.SaveUser(sctx, user); err != nil {
		return domain.User{}, operationError("save user", err)
	}
	return user, nil
}

// Login validates credentials and issues a bearer token.
func (a *App) Login(ctx context.Context, email, password string) (domain.User, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if err := required([2]string{"email", email}, [2]string{"password", password}); err != nil {
		return domain.User{}, "", err
	}
	sctx, cancel := a.storeCtx(ctx)
	defer cancel()
	user, ok, err := a.store.GetUserByEmail(sctx, email)
	if err != nil {
		return domain.User{}, "", operationError("fetch user", err)
	}
	if !ok || !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	token, err := a.sessions.NewSession(ctx, user)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue token: %w", err)
	}
	return user, token, nil
}

// Logout revokes token until it would have expired.
func (a *App) Logout(ctx context.Context, token string) error {
	if err := a.sessions.DeleteSession(ctx, token); err != nil {
		return operationError("revoke token", err)
	}
	return nil
}

// Authenticate resolves a bearer token to its account. The returned user id
// is the owner id trusted by article writes.
func (a *App) Authenticate(ctx context.Context, token string) (domain.User, error) {
	uid, ok, err := a.sessions.GetUserIDByToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrInvalidToken) || errors.Is(err, store.ErrTokenRevoked) {
			return domain.User{}, ErrUnauthorized
		}
		return domain.User{}, operationError("verify token", err)
	}
	if !ok {
		return domain.User{}, ErrUnauthorized
	}
	sctx, cancel := a.storeCtx(ctx)
	defer cancel()
	user, found, err := a.store.GetUserByID(sctx, uid)
	if err != nil {
		return domain.User{}, operationError("fetch user", err)
	}
	if !found {
		return domain.User{}, ErrUnauthorized
	}
	return user, nil
}
