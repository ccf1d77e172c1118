package client

import "context"

// Navigator is the part of a UI shell the client needs to send a user back
// to the login screen.
type Navigator interface {
	// Location returns the path currently shown, e.g. "/projects/3".
	Location() string
	// Navigate switches to path.
	Navigate(path string)
}

// RedirectToLogin returns an OnUnauthenticated callback that moves nav to
// loginPath. It does nothing when nav is already there. The check is a plain
// path comparison, so two 401s racing each other may both navigate.
func RedirectToLogin(nav Navigator, loginPath string) func(context.Context) {
	return func(context.Context) {
		if nav.Location() == loginPath {
			return
		}
		nav.Navigate(loginPath)
	}
}
