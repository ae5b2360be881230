package sso

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// ProviderGoogle names the Google backend.
const ProviderGoogle = "google"

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// GoogleVerifier accepts Google access tokens by calling the userinfo
// endpoint with them.
type GoogleVerifier struct {
	config      *oauth2.Config
	userInfoURL string
	httpClient  *http.Client // base transport; nil uses http.DefaultClient
}

// NewGoogle builds a verifier for the given OAuth client.
func NewGoogle(clientID, clientSecret string) *GoogleVerifier {
	return &GoogleVerifier{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		userInfoURL: googleUserInfoURL,
	}
}

// WithUserInfoURL points the verifier at another userinfo endpoint and
// transport. Tests use it with httptest servers.
func (g *GoogleVerifier) WithUserInfoURL(url string, client *http.Client) *GoogleVerifier {
	g.userInfoURL = url
	g.httpClient = client
	return g
}

func (g *GoogleVerifier) Name() string { return ProviderGoogle }

type googleUserInfo struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
}

// Verify fetches the token owner's profile. Only verified emails pass.
func (g *GoogleVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	if g.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
	}
	client := g.config.Client(ctx, &oauth2.Token{AccessToken: token, TokenType: "Bearer"})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return Identity{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return Identity{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Identity{}, fmt.Errorf("userinfo returned %d", resp.StatusCode)
	}

	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return Identity{}, fmt.Errorf("decode userinfo: %w", err)
	}
	if info.ID == "" || info.Email == "" {
		return Identity{}, errors.New("userinfo missing id or email")
	}
	if !info.VerifiedEmail {
		return Identity{}, errors.New("google email not verified")
	}

	return Identity{
		Provider: ProviderGoogle,
		Subject:  info.ID,
		Email:    info.Email,
		Name:     info.Name,
	}, nil
}
