package registry

import (
	"fmt"

	"github.com/go-notify-hub/internal/domain"
)

// Authorize reports whether connectionID is bound to claimedUserID. The bound
// identity is authoritative; an unbound connection is never authorized.
func (r *Registry) Authorize(connectionID, claimedUserID string) bool {
	if claimedUserID == "" {
		return false
	}
	userID, ok := r.UserFor(connectionID)
	return ok && userID == claimedUserID
}

// Require is Authorize expressed as an error wrapping domain.ErrUnauthorized.
func (r *Registry) Require(connectionID, claimedUserID string) error {
	if !r.Authorize(connectionID, claimedUserID) {
		return fmt.Errorf("connection %s may not act for user %q: %w", connectionID, claimedUserID, domain.ErrUnauthorized)
	}
	return nil
}
