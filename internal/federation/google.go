package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.pilab.hu/fxapi/domain"
	"golang.org/x/oauth2"
	googleOAuth2 "golang.org/x/oauth2/google"
)

var (
	GoogleUserInfoEndpoint = "https://www.googleapis.com/oauth2/v3/userinfo"
	// GoogleEndpoint holds the authorization and token URLs.
	GoogleEndpoint = googleOAuth2.Endpoint
)

const (
	defaultGoogleName = "Google User"
	googleHTTPTimeout = 10 * time.Second
)

var defaultGoogleScopes = []string{"openid", "profile", "email"}

// GoogleConfig configures the Google provider.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// GoogleProvider implements OAuth2Provider for Google.
type GoogleProvider struct {
	config     *oauth2.Config
	httpClient *http.Client
}

// NewGoogleProvider creates a GoogleProvider. The client id, secret and
// redirect URL are required.
func NewGoogleProvider(cfg GoogleConfig) (*GoogleProvider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RedirectURL == "" {
		return nil, ErrProviderMisconfigured
	}

	scopes := cfg.Scopes
	for _, s := range defaultGoogleScopes {
		if !contains(scopes, s) {
			scopes = append(scopes, s)
		}
	}

	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     GoogleEndpoint,
		},
		httpClient: &http.Client{
			Timeout:   googleHTTPTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}, nil
}

func (g *GoogleProvider) Name() domain.Provider {
	return domain.ProviderGoogle
}

// Scopes returns the requested scopes.
func (g *GoogleProvider) Scopes() []string {
	return append([]string(nil), g.config.Scopes...)
}

func (g *GoogleProvider) AuthCodeURL(state string) string {
	return g.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// withClient makes oauth2 use the traced client unless the caller set one.
func (g *GoogleProvider) withClient(ctx context.Context) context.Context {
	if _, ok := ctx.Value(oauth2.HTTPClient).(*http.Client); ok {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
}

func (g *GoogleProvider) Exchange(ctx context.Context, code string) (*domain.ExternalProfile, error) {
	ctx = g.withClient(ctx)
	token, err := g.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeCodeFailed, err)
	}
	return g.FetchUserInfo(ctx, token)
}

// FetchUserInfo loads the profile of the token's owner.
func (g *GoogleProvider) FetchUserInfo(ctx context.Context, token *oauth2.Token) (*domain.ExternalProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, GoogleUserInfoEndpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := g.config.Client(g.withClient(ctx), token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchUserInfoFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d, body: %s", ErrFetchUserInfoFailed, resp.StatusCode, string(body))
	}

	var info struct {
		Sub           string `json:"sub"`
		Name          string `json:"name"`
		GivenName     string `json:"given_name"`
		Picture       string `json:"picture"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to unmarshal Google user info: %w", err)
	}

	name := strings.TrimSpace(info.Name)
	if name == "" {
		name = strings.TrimSpace(info.GivenName)
	}
	if name == "" {
		name = defaultGoogleName
	}

	return &domain.ExternalProfile{
		Provider:      domain.ProviderGoogle,
		ExternalID:    info.Sub,
		Email:         info.Email,
		EmailVerified: info.EmailVerified,
		Name:          name,
		AvatarURL:     info.Picture,
	}, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

var _ OAuth2Provider = (*GoogleProvider)(nil)
