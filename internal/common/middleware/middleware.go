package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/danielgtaylor/huma/v2"
	"github.com/mirzahilmi/sealedreport/internal/common/config"
	"github.com/rs/zerolog/log"
)

type Middleware interface {
	// NewOidcAuthorization only lets requests with a valid bearer token from
	// the configured issuer through. The token subject is available to the
	// handler through ReviewerFromContext.
	NewOidcAuthorization(ctx context.Context) func(huma.Context, func(huma.Context))
}

type TokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)
}

type middleware struct {
	api    huma.API
	config config.Config

	mu       sync.Mutex
	verifier TokenVerifier
}

func NewMiddleware(api huma.API, config config.Config) Middleware {
	return &middleware{api: api, config: config}
}

func NewMiddlewareWithVerifier(api huma.API, verifier TokenVerifier) Middleware {
	return &middleware{api: api, verifier: verifier}
}

type reviewerKey struct{}

func ReviewerFromContext(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(reviewerKey{}).(string)
	return subject, ok
}

func (m *middleware) NewOidcAuthorization(ctx context.Context) func(huma.Context, func(huma.Context)) {
	return func(hctx huma.Context, next func(huma.Context)) {
		verifier, err := m.tokenVerifier(ctx)
		if err != nil {
			log.Error().Err(err).Str("issuer", m.config.Oidc.Issuer).Msg("oidc provider unavailable")
			huma.WriteErr(m.api, hctx, http.StatusServiceUnavailable, "authorization is temporarily unavailable")
			return
		}

		raw, ok := bearerToken(hctx.Header("Authorization"))
		if !ok {
			huma.WriteErr(m.api, hctx, http.StatusUnauthorized, "missing bearer token")
			return
		}

		token, err := verifier.Verify(hctx.Context(), raw)
		if err != nil {
			log.Warn().Err(err).Msg("rejected reviewer token")
			huma.WriteErr(m.api, hctx, http.StatusUnauthorized, "invalid bearer token")
			return
		}

		next(huma.WithValue(hctx, reviewerKey{}, token.Subject))
	}
}

// tokenVerifier discovers the provider on first use, so the API can start
// while the identity provider is still coming up. Failed discovery is retried
// on the next request.
func (m *middleware) tokenVerifier(ctx context.Context) (TokenVerifier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.verifier != nil {
		return m.verifier, nil
	}
	provider, err := oidc.NewProvider(ctx, m.config.Oidc.Issuer)
	if err != nil {
		return nil, err
	}
	m.verifier = provider.Verifier(&oidc.Config{ClientID: m.config.Oidc.ClientId})
	return m.verifier, nil
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
