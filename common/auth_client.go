package common

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// Refresher defines the ability to exchange the current credential for a new one.
// The wire format of the refresh endpoint is up to the implementation.
type Refresher interface {
	// Refresh returns a new *oauth2.Token on success, or an error if refresh fails.
	Refresh(ctx context.Context, current *oauth2.Token) (*oauth2.Token, error)
}

// RefreshFunc adapts a plain function to Refresher.
type RefreshFunc func(ctx context.Context, current *oauth2.Token) (*oauth2.Token, error)

func (f RefreshFunc) Refresh(ctx context.Context, current *oauth2.Token) (*oauth2.Token, error) {
	return f(ctx, current)
}

// SessionNotifier is invoked to force a full sign-out when the credential cannot be
// recovered. Implementations must be idempotent.
type SessionNotifier interface {
	ForceSignOut(ctx context.Context)
}

// SessionNotifierFunc adapts a plain function to SessionNotifier.
type SessionNotifierFunc func(ctx context.Context)

func (f SessionNotifierFunc) ForceSignOut(ctx context.Context) {
	f(ctx)
}

// OAuth2Refresher refreshes through the OAuth2 refresh_token grant of Config.Endpoint.
type OAuth2Refresher struct {
	Config *oauth2.Config
	// Client, when set, is used for the token request instead of http.DefaultClient.
	Client *http.Client
}

// NewOAuth2Refresher returns a Refresher for the given token endpoint.
func NewOAuth2Refresher(tokenURL, clientID, clientSecret string, client *http.Client) *OAuth2Refresher {
	return &OAuth2Refresher{
		Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		Client: client,
	}
}

func (r *OAuth2Refresher) Refresh(ctx context.Context, current *oauth2.Token) (*oauth2.Token, error) {
	if current == nil || current.RefreshToken == "" {
		return nil, fmt.Errorf("credential has no refresh token: %w", ErrNoCredential)
	}
	if r.Client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.Client)
	}

	// An empty access token forces the token source to hit the endpoint.
	src := r.Config.TokenSource(ctx, &oauth2.Token{RefreshToken: current.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			return nil, &ServerError{
				StatusCode: retrieveErr.Response.StatusCode,
				Message:    refreshErrorMessage(retrieveErr),
			}
		}
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = current.RefreshToken
	}
	return tok, nil
}

func refreshErrorMessage(e *oauth2.RetrieveError) string {
	if e.ErrorDescription != "" {
		return e.ErrorDescription
	}
	if e.ErrorCode != "" {
		return e.ErrorCode
	}
	return fmt.Sprintf("refresh rejected with status %d", e.Response.StatusCode)
}
