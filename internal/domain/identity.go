package domain

// Identity is the verified caller of one request. It is derived fresh from
// the token (or the fallback caller id) on every request and never cached.
type Identity struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName,omitempty"`
	Email       string `json:"email,omitempty"`

	// Entitled is the server-verified paid-tier claim. Client hints never
	// set this.
	Entitled bool `json:"entitled"`

	// Verified is true when the identity came from a validated token rather
	// than a caller-supplied identifier.
	Verified bool `json:"verified"`
}
