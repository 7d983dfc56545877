// Package auth verifies inbound identity tokens against the external issuer.
package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/idtoken"
	"google.golang.org/api/option"

	"github.com/pennywise/pennywise/internal/domain"
	"github.com/pennywise/pennywise/internal/logging"
)

// Errors surfaced to the gateway. All token verification failures collapse
// into ErrInvalidAuth; internals go into the Detail of a *VerifyError.
var (
	ErrMissingAuth = errors.New("no caller identifier provided")
	ErrInvalidAuth = errors.New("invalid authentication")
)

// Entitlement claims. Both must match: a tier claim alone is not sufficient.
const (
	claimTier    = "tier"
	claimStatus  = "status"
	tierPaid     = "paid"
	statusActive = "active"
)

// VerifyError carries an operator-facing detail alongside ErrInvalidAuth.
// Detail never contains the raw token or signing material.
type VerifyError struct {
	Detail string
	err    error
}

func (e *VerifyError) Error() string { return e.err.Error() + ": " + e.Detail }
func (e *VerifyError) Unwrap() error { return e.err }

// tokenValidator abstracts idtoken.Validator so tests can substitute fakes.
type tokenValidator interface {
	Validate(ctx context.Context, token, audience string) (*idtoken.Payload, error)
}

// Config configures the verifier.
type Config struct {
	// ProjectID is the expected token audience. Required for token
	// verification; requests without tokens still resolve fallback ids.
	ProjectID string

	// CredentialsFile optionally points at an explicit service credential.
	// It is used only when its project matches ProjectID.
	CredentialsFile string
}

// Verifier resolves a request's identity from an optional bearer token and
// a caller-supplied fallback identifier. The underlying validator client is
// built lazily, at most once per Verifier, and the Verifier itself is a
// process-wide shared dependency injected into the gateway.
type Verifier struct {
	cfg Config
	log *logging.Logger

	once      sync.Once
	validator tokenValidator
	initErr   error

	// newValidator is swapped by tests.
	newValidator func(ctx context.Context) (tokenValidator, error)
}

// NewVerifier creates a verifier. The validator client is not built until
// the first token arrives.
func NewVerifier(cfg Config, log *logging.Logger) *Verifier {
	v := &Verifier{cfg: cfg, log: log.Sub("auth")}
	v.newValidator = v.buildValidator
	return v
}

// Verify resolves an identity from the raw token, falling back to the
// caller-supplied identifier when no token is present.
//
// With no token the identity is taken verbatim from fallbackUserID at the
// lower trust tier: unverified, no entitlement. With a token, the verified
// subject overrides fallbackUserID so headers cannot spoof another user.
func (v *Verifier) Verify(ctx context.Context, rawToken, fallbackUserID string) (domain.Identity, error) {
	if rawToken == "" {
		if fallbackUserID == "" {
			return domain.Identity{}, ErrMissingAuth
		}
		return domain.Identity{UserID: fallbackUserID}, nil
	}

	v.once.Do(func() {
		v.validator, v.initErr = v.newValidator(ctx)
	})
	if v.initErr != nil {
		return domain.Identity{}, &VerifyError{
			Detail: fmt.Sprintf("verifier init failed (project configured: %t)", v.cfg.ProjectID != ""),
			err:    ErrInvalidAuth,
		}
	}

	payload, err := v.validator.Validate(ctx, rawToken, v.cfg.ProjectID)
	if err != nil {
		return domain.Identity{}, &VerifyError{
			Detail: fmt.Sprintf("token rejected by issuer (audience %q)", v.cfg.ProjectID),
			err:    ErrInvalidAuth,
		}
	}

	ident := domain.Identity{
		UserID:   payload.Subject,
		Verified: true,
		Entitled: entitled(payload.Claims),
	}
	if s, ok := payload.Claims["name"].(string); ok {
		ident.DisplayName = s
	}
	if s, ok := payload.Claims["email"].(string); ok {
		ident.Email = s
	}
	return ident, nil
}

// entitled is true iff the tier claim equals the paid tier AND the status
// claim equals active.
func entitled(claims map[string]any) bool {
	tier, _ := claims[claimTier].(string)
	status, _ := claims[claimStatus].(string)
	return tier == tierPaid && status == statusActive
}

// buildValidator constructs the idtoken validator. Preference order: an
// explicit credential matching the configured project, else a
// project-id-only validator that can still verify signatures against the
// issuer's public key set. A credential for the wrong project is ignored
// with a warning, never used.
func (v *Verifier) buildValidator(ctx context.Context) (tokenValidator, error) {
	if v.cfg.ProjectID == "" {
		return nil, errors.New("auth project id not configured")
	}

	if creds := v.loadCredentials(ctx); creds != nil {
		if creds.ProjectID == v.cfg.ProjectID && len(creds.JSON) > 0 {
			val, err := idtoken.NewValidator(ctx, option.WithCredentialsJSON(creds.JSON))
			if err == nil {
				v.log.Info().Str("project", v.cfg.ProjectID).Msg("verifier using explicit credential")
				return val, nil
			}
			v.log.Warn().Err(err).Msg("credentialed verifier init failed, falling back")
		} else if creds.ProjectID != "" && creds.ProjectID != v.cfg.ProjectID {
			v.log.Warn().
				Str("credentialProject", creds.ProjectID).
				Str("configuredProject", v.cfg.ProjectID).
				Msg("ignoring credential for mismatched project")
		}
	}

	// Signature verification only needs the issuer's public certs.
	val, err := idtoken.NewValidator(ctx, option.WithoutAuthentication())
	if err != nil {
		return nil, fmt.Errorf("building token validator: %w", err)
	}
	v.log.Info().Str("project", v.cfg.ProjectID).Msg("verifier using project-id-only configuration")
	return val, nil
}

// loadCredentials resolves a credential from the configured file, else from
// the ambient default chain. Returns nil when neither is available.
func (v *Verifier) loadCredentials(ctx context.Context) *google.Credentials {
	if v.cfg.CredentialsFile != "" {
		data, err := os.ReadFile(v.cfg.CredentialsFile)
		if err != nil {
			v.log.Warn().Err(err).Str("path", v.cfg.CredentialsFile).Msg("cannot read credentials file")
			return nil
		}
		creds, err := google.CredentialsFromJSON(ctx, data)
		if err != nil {
			v.log.Warn().Err(err).Msg("cannot parse credentials file")
			return nil
		}
		return creds
	}
	creds, err := google.FindDefaultCredentials(ctx)
	if err != nil {
		return nil
	}
	return creds
}
