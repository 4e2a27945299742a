// Package user defines the account model: identity, credential hash and the
// set of places the account created.
package user

import "github.com/thoas/go-funk"

// User represents an account holder.
type User struct {
	// ID is the canonical lowercase UUID string of the user.
	ID string `json:"id"`

	Name  string `json:"name"`
	Email string `json:"email"`

	// Password holds the bcrypt hash and is never serialized to clients.
	Password string `json:"-"`

	Image string `json:"image"`

	// Places is the set of identifiers of places created by the user.
	Places []string `json:"places"`
}

// HasPlace reports whether placeID belongs to the user's place set.
func (u *User) HasPlace(placeID string) bool {
	return funk.ContainsString(u.Places, placeID)
}

// Clone returns a deep copy so that stored records cannot be mutated through
// returned values.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Places = append([]string{}, u.Places...)
	return &c
}
