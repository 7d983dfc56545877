package gateway

import (
	"errors"
	"net/http"
	"strings"

	"github.com/pennywise/pennywise/internal/auth"
	"github.com/pennywise/pennywise/internal/domain"
)

// Identity headers. X-User-Id is the opaque caller identifier; the bearer
// token, when present, is authoritative and overrides it. The entitlement
// hint is advisory only and never grants premium access by itself.
const (
	headerUserID       = "X-User-Id"
	headerUserName     = "X-User-Name"
	headerUserEmail    = "X-User-Email"
	headerEntitledHint = "X-User-Entitled"
)

// identify resolves the request's identity, or returns the 401 detail.
func (s *Server) identify(r *http.Request) (domain.Identity, error) {
	token := bearerToken(r)
	ident, err := s.verifier.Verify(r.Context(), token, r.Header.Get(headerUserID))
	if err != nil {
		return domain.Identity{}, err
	}

	// Display fields from headers fill gaps but never override verified claims.
	if ident.DisplayName == "" {
		ident.DisplayName = r.Header.Get(headerUserName)
	}
	if ident.Email == "" {
		ident.Email = r.Header.Get(headerUserEmail)
	}

	if hint := r.Header.Get(headerEntitledHint); hint == "true" && !ident.Entitled {
		s.log.Debug().Str("userId", ident.UserID).Msg("entitlement hint present but not backed by verified claims")
	}
	return ident, nil
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// writeAuthError maps verification failures to a 401 JSON body.
func writeAuthError(w http.ResponseWriter, err error) {
	detail := "authentication required"
	var ve *auth.VerifyError
	switch {
	case errors.As(err, &ve):
		detail = ve.Detail
	case errors.Is(err, auth.ErrMissingAuth):
		detail = "no caller identifier provided"
	}
	writeError(w, http.StatusUnauthorized, "unauthorized", detail)
}
