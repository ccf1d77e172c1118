package issuehub

import (
	"context"
	"fmt"

	"github.com/iammorganparry/issuehub/internal/client"
	"github.com/iammorganparry/issuehub/internal/session"
)

// Account ties the auth endpoints to the session: signing in stores the
// token and profile, signing out forgets them.
type Account struct {
	hub     *Client
	session *session.Session
}

func NewAccount(hub *Client, sess *session.Session) *Account {
	return &Account{hub: hub, session: sess}
}

// SignIn logs in, stores the token, then fetches and caches the profile.
// If the profile cannot be fetched or cached, the stored token is removed
// again so a failed sign-in never leaves a session behind.
func (a *Account) SignIn(ctx context.Context, email, password string) (*User, error) {
	token, err := a.hub.Login(ctx, LoginRequest{Email: email, Password: password})
	if err != nil {
		return nil, err
	}
	if err := a.session.SetToken(ctx, token.AccessToken); err != nil {
		return nil, err
	}

	user, err := a.hub.Me(ctx)
	if err != nil {
		a.abandon(ctx)
		return nil, fmt.Errorf("fetch profile after login: %w", err)
	}
	if err := a.session.SetUser(ctx, user); err != nil {
		a.abandon(ctx)
		return nil, err
	}
	return user, nil
}

// abandon drops a half-written session. It runs even when ctx is done.
func (a *Account) abandon(ctx context.Context) {
	_ = a.session.Clear(context.WithoutCancel(ctx))
}

// SignUp registers and then signs in with the same credentials.
func (a *Account) SignUp(ctx context.Context, name, email, password string) (*User, error) {
	if _, err := a.hub.Signup(ctx, SignupRequest{Name: name, Email: email, Password: password}); err != nil {
		return nil, err
	}
	return a.SignIn(ctx, email, password)
}

// SignOut forgets the token and profile. The server keeps no session state,
// so there is nothing to call.
func (a *Account) SignOut(ctx context.Context) error {
	return a.session.Clear(ctx)
}

// Restore is run at startup. Without a token it returns (nil, nil).
// Otherwise it refreshes the cached profile from the server. If the server
// cannot be reached, the cached profile is returned together with the error.
func (a *Account) Restore(ctx context.Context) (*User, error) {
	token, err := a.session.Token(ctx)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, nil
	}

	user, err := a.hub.Me(ctx)
	if err != nil {
		if client.IsNetwork(err) {
			cached, _ := a.CurrentUser(ctx)
			return cached, err
		}
		return nil, err
	}
	if err := a.session.SetUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// CurrentUser returns the cached profile without a request, or nil.
func (a *Account) CurrentUser(ctx context.Context) (*User, error) {
	var user User
	ok, err := a.session.User(ctx, &user)
	if err != nil || !ok {
		return nil, err
	}
	return &user, nil
}

// SignedIn reports whether a token is stored.
func (a *Account) SignedIn(ctx context.Context) bool {
	token, err := a.session.Token(ctx)
	return err == nil && token != ""
}
