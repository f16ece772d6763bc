package meta

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/reels-agent/internal/config"
	"github.com/reels-agent/pkg/logger"
)

// OAuthManager handles the Meta OAuth 2.0 code exchange used to obtain the
// long-lived access tokens stored on managed accounts. Token persistence and
// the dashboard-side authorization flow live outside the pipeline.
type OAuthManager struct {
	config *oauth2.Config
	log    *logger.Logger
}

// NewOAuthManager creates a new OAuth manager
func NewOAuthManager(cfg config.MetaConfig, log *logger.Logger) *OAuthManager {
	return &OAuthManager{
		config: &oauth2.Config{
			ClientID:     cfg.AppID,
			ClientSecret: cfg.AppSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       []string{"instagram_basic", "instagram_content_publish"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://www.facebook.com/v19.0/dialog/oauth",
				TokenURL: "https://graph.facebook.com/v19.0/oauth/access_token",
			},
		},
		log: log.WithComponent("oauth"),
	}
}

// GenerateState creates a random state for OAuth CSRF protection
func GenerateState() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// AuthURL returns the authorization URL to send the operator to
func (m *OAuthManager) AuthURL(state string) string {
	return m.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for an access token
func (m *OAuthManager) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := m.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("code exchange failed: %w", err)
	}

	if token.Expiry.IsZero() {
		// Meta long-lived tokens last ~60 days
		token.Expiry = time.Now().Add(60 * 24 * time.Hour)
	}

	m.log.Info().
		Time("expires_at", token.Expiry).
		Msg("Access token obtained")

	return token, nil
}
