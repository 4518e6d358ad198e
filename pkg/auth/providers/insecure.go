package providers

import "context"

var _ AuthProvider = &InsecureAuthProvider{}

// InsecureAuthProvider trusts the bearer token as the user id without
// verification. Development use only, for deployments without a
// configured auth backend.
type InsecureAuthProvider struct {
}

func NewInsecureAuthProvider() *InsecureAuthProvider {
	return &InsecureAuthProvider{}
}

func (p *InsecureAuthProvider) VerifyToken(ctx context.Context, idToken string) (*TokenClaims, error) {
	return &TokenClaims{
		UID: idToken,
	}, nil
}
