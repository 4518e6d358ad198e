package auth

import (
	"context"
	"fmt"
	"sync"

	"github.com/cbodonnell/quicksave/pkg/auth/providers"
)

// UserIdentity identifies the authenticated user that owns the save.
type UserIdentity struct {
	UID string `json:"uid"`
}

// IdentityProvider resolves the current authenticated user. It is
// injected into everything that needs an identity so the sync engine
// stays testable without a real session. A (nil, nil) return means no
// user is signed in.
type IdentityProvider interface {
	CurrentUser(ctx context.Context) (*UserIdentity, error)
}

// StaticIdentityProvider always resolves the same user. Used for
// single-player deployments with a preconfigured identity and for
// tests.
type StaticIdentityProvider struct {
	uid string
}

func NewStaticIdentityProvider(uid string) *StaticIdentityProvider {
	return &StaticIdentityProvider{
		uid: uid,
	}
}

func (p *StaticIdentityProvider) CurrentUser(ctx context.Context) (*UserIdentity, error) {
	if p.uid == "" {
		return nil, nil
	}
	return &UserIdentity{UID: p.uid}, nil
}

// TokenIdentityProvider resolves the current user by verifying the
// session's ID token against an auth provider. The token source is a
// callback so a refreshed token is picked up on the next call.
type TokenIdentityProvider struct {
	authProvider providers.AuthProvider
	tokenSource  func() string
	lock         sync.Mutex
	lastUID      string
	lastToken    string
}

func NewTokenIdentityProvider(authProvider providers.AuthProvider, tokenSource func() string) *TokenIdentityProvider {
	return &TokenIdentityProvider{
		authProvider: authProvider,
		tokenSource:  tokenSource,
	}
}

func (p *TokenIdentityProvider) CurrentUser(ctx context.Context) (*UserIdentity, error) {
	token := p.tokenSource()
	if token == "" {
		return nil, nil
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	if token == p.lastToken && p.lastUID != "" {
		return &UserIdentity{UID: p.lastUID}, nil
	}

	claims, err := p.authProvider.VerifyToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %v", err)
	}

	p.lastToken = token
	p.lastUID = claims.UID

	return &UserIdentity{UID: claims.UID}, nil
}
