package authz

import (
	"net/url"

	"github.com/google/uuid"
)

// googleAuthURL is the Google OAuth consent endpoint used for Gmail send
// delegation.
const googleAuthURL = "https://accounts.google.com/o/oauth2/v2/auth"

// gmailSendScope is the minimal scope needed to deliver reports.
const gmailSendScope = "https://www.googleapis.com/auth/gmail.send"

// GoogleProvider builds authorization URLs for Gmail delegation. Token
// exchange and refresh are the authorization service's concern; the core only
// stores the resulting credential and checks its presence.
type GoogleProvider struct {
	clientID    string
	redirectURL string
}

// NewGoogleProvider creates a provider with the given OAuth client ID and
// redirect URL.
func NewGoogleProvider(clientID, redirectURL string) *GoogleProvider {
	return &GoogleProvider{clientID: clientID, redirectURL: redirectURL}
}

// Name returns the credential key for Google grants.
func (p *GoogleProvider) Name() string {
	return "google"
}

// AuthorizationURL builds the consent URL. The clarification ID is carried in
// the state parameter so the confirmation callback can be matched back to the
// suspended action.
func (p *GoogleProvider) AuthorizationURL(clarificationID uuid.UUID) string {
	q := url.Values{}
	q.Set("client_id", p.clientID)
	q.Set("redirect_uri", p.redirectURL)
	q.Set("response_type", "code")
	q.Set("scope", gmailSendScope)
	q.Set("access_type", "offline")
	q.Set("state", clarificationID.String())
	return googleAuthURL + "?" + q.Encode()
}

var _ Provider = (*GoogleProvider)(nil)

// MockProvider is an authorization provider for tests and development.
type MockProvider struct {
	// BaseURL overrides the URL prefix; defaults to a local placeholder.
	BaseURL string
}

// Name returns the credential key for mock grants.
func (p *MockProvider) Name() string {
	return "mock"
}

// AuthorizationURL returns a deterministic placeholder URL.
func (p *MockProvider) AuthorizationURL(clarificationID uuid.UUID) string {
	base := p.BaseURL
	if base == "" {
		base = "http://localhost:8080/oauth/mock"
	}
	return base + "?state=" + clarificationID.String()
}

var _ Provider = (*MockProvider)(nil)
