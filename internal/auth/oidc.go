package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/zitadel/oidc/v3/pkg/client/rp"
	"github.com/zitadel/oidc/v3/pkg/oidc"

	"github.com/homeonmap/backend/internal/models"
)

// OIDCProvider is the external identity provider, reached through a
// Zitadel relying party.
type OIDCProvider struct {
	rp rp.RelyingParty
}

// NewOIDCProvider performs discovery against issuer.
func NewOIDCProvider(ctx context.Context, issuer, clientID, clientSecret, redirectURL string) (*OIDCProvider, error) {
	relyingParty, err := rp.NewRelyingPartyOIDC(ctx,
		issuer,
		clientID,
		clientSecret,
		redirectURL,
		[]string{oidc.ScopeOpenID, oidc.ScopeProfile, oidc.ScopeEmail},
		rp.WithHTTPClient(&http.Client{Timeout: 15 * time.Second}),
	)
	if err != nil {
		return nil, fmt.Errorf("create relying party: %w", err)
	}
	return &OIDCProvider{rp: relyingParty}, nil
}

// AuthURL returns the provider authorization URL for state.
func (p *OIDCProvider) AuthURL(state string) string {
	return rp.AuthURL(state, p.rp)
}

// Exchange trades an authorization code for the caller's identity.
func (p *OIDCProvider) Exchange(ctx context.Context, code string) (*models.Identity, error) {
	tokens, err := rp.CodeExchange[*oidc.IDTokenClaims](ctx, code, p.rp)
	if err != nil {
		return nil, fmt.Errorf("code exchange: %w", err)
	}
	claims := tokens.IDTokenClaims
	if claims == nil || claims.Subject == "" {
		return nil, errors.New("id token has no subject")
	}
	return &models.Identity{
		ID:        claims.Subject,
		Email:     claims.Email,
		AvatarURL: claims.Picture,
	}, nil
}
