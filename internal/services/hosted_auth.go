package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/supabase-community/gotrue-go"
	"github.com/supabase-community/gotrue-go/types"
)

var ErrAuthRejected = errors.New("auth service rejected the request")

// AuthSession is the token response of the hosted auth service.
type AuthSession struct {
	AccessToken  string          `json:"access_token"`
	TokenType    string          `json:"token_type,omitempty"`
	ExpiresIn    int             `json:"expires_in,omitempty"`
	RefreshToken string          `json:"refresh_token,omitempty"`
	User         json.RawMessage `json:"user,omitempty"`
}

// AuthRejection carries the status and message returned by the auth service.
type AuthRejection struct {
	StatusCode int
	Message    string
}

func (e *AuthRejection) Error() string {
	return fmt.Sprintf("auth service returned %d: %s", e.StatusCode, e.Message)
}

func (e *AuthRejection) Unwrap() error {
	return ErrAuthRejected
}

type AuthProvider interface {
	SignUp(ctx context.Context, email, password string) (*AuthSession, error)
	SignIn(ctx context.Context, email, password string) (*AuthSession, error)
	SignOut(ctx context.Context, accessToken string) error
}

// HostedAuthClient talks to the GoTrue API mounted under {baseURL}/auth/v1.
type HostedAuthClient struct {
	client gotrue.Client
}

func NewHostedAuthClient(baseURL, anonKey string) *HostedAuthClient {
	client := gotrue.New("", anonKey).
		WithCustomGoTrueURL(strings.TrimRight(baseURL, "/") + "/auth/v1").
		WithClient(http.Client{Timeout: 15 * time.Second})
	return &HostedAuthClient{client: client}
}

// SignUp registers a user. The gotrue client takes no context, so calls are
// bounded by the http client timeout.
func (c *HostedAuthClient) SignUp(_ context.Context, email, password string) (*AuthSession, error) {
	resp, err := c.client.Signup(types.SignupRequest{Email: email, Password: password})
	if err != nil {
		return nil, authError(err)
	}
	// Without auto-confirm the service answers with the bare user and no session.
	user := resp.User
	if resp.AccessToken != "" {
		user = resp.Session.User
	}
	return newAuthSession(resp.Session, user)
}

func (c *HostedAuthClient) SignIn(_ context.Context, email, password string) (*AuthSession, error) {
	resp, err := c.client.SignInWithEmailPassword(email, password)
	if err != nil {
		return nil, authError(err)
	}
	return newAuthSession(resp.Session, resp.Session.User)
}

func (c *HostedAuthClient) SignOut(_ context.Context, accessToken string) error {
	if err := c.client.WithToken(accessToken).Logout(); err != nil {
		return authError(err)
	}
	return nil
}

func newAuthSession(session types.Session, user types.User) (*AuthSession, error) {
	rawUser, err := json.Marshal(user)
	if err != nil {
		return nil, fmt.Errorf("failed to encode auth user: %w", err)
	}
	return &AuthSession{
		AccessToken:  session.AccessToken,
		TokenType:    session.TokenType,
		ExpiresIn:    session.ExpiresIn,
		RefreshToken: session.RefreshToken,
		User:         rawUser,
	}, nil
}

// authError turns the client's "response status code N: body" errors into an
// AuthRejection. Anything else is a transport failure.
func authError(err error) error {
	var status int
	if _, scanErr := fmt.Sscanf(err.Error(), "response status code %d", &status); scanErr != nil {
		return fmt.Errorf("auth request failed: %w", err)
	}
	body := ""
	if _, rest, found := strings.Cut(err.Error(), ": "); found {
		body = rest
	}
	return &AuthRejection{StatusCode: status, Message: rejectionMessage(body)}
}

func rejectionMessage(body string) string {
	var payload struct {
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		ErrorDescription string `json:"error_description"`
		Error            string `json:"error"`
	}
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return body
	}
	for _, m := range []string{payload.Msg, payload.Message, payload.ErrorDescription, payload.Error} {
		if m != "" {
			return m
		}
	}
	return body
}
