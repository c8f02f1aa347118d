package auth

// Authenticator decides who may use the owner endpoints.
// This abstraction lets the HTTP and RPC layers stay independent of how the
// credential is checked.
type Authenticator interface {
	// Required reports whether owner endpoints need a credential at all.
	Required() bool

	// Authenticate verifies the credential. It returns ErrInvalidCredentials
	// when the credential does not match.
	Authenticate(credential string) error
}
