// Package store persists the portal session credentials between
// invocations. Credentials are written as a single versioned JSON
// document under a data directory; older clients kept a flat
// key/value file, which is migrated to the canonical schema the first
// time it is seen.
package store

import (
	"strings"
)

// User is the profile cached alongside the tokens at login time. Role
// drives route guarding and permission checks in the session manager
// and is always stored lower-cased.
type User struct {
	UserID    string `json:"userId"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
}

// Credentials is the persisted session triple. The session manager
// maintains the invariant that User is non-nil exactly when
// AccessToken is non-empty.
type Credentials struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	User         *User  `json:"user,omitempty"`
}

// Empty reports whether no credential material is present.
func (c *Credentials) Empty() bool {
	return c == nil || (c.AccessToken == "" && c.RefreshToken == "" && c.User == nil)
}

func (c *Credentials) normalise() {
	if c.User != nil {
		c.User.Role = strings.ToLower(c.User.Role)
	}
}

// Store is the persistence boundary for session credentials. Load must
// tolerate a corrupted user blob (returning a nil User rather than an
// error), Save is atomic from the caller's perspective, and Clear is
// idempotent. Implementations never perform network I/O.
type Store interface {
	Load() (*Credentials, error)
	Save(creds *Credentials) error
	Clear() error
}
