package authenticator

import "net/http"

// Authenticator guards routes that require a signed-in user.
type Authenticator interface {
	AuthenticateUser(h http.Handler) http.Handler
}
