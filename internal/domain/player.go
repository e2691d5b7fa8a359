// Package domain holds the darkscore records and the pure transitions applied to them.
package domain

import (
	"slices"
	"strings"

	"golang.org/x/text/cases"
)

var emailFolder = cases.Fold()

// NormalizeEmail folds an e-mail address for comparison.
func NormalizeEmail(email string) string {
	return emailFolder.String(strings.TrimSpace(email))
}

// Identity is what the identity provider knows about a signed-in user.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	PhotoURL    string `json:"photoURL"`
}

// Profile is the stored user record at players/{id}.
// ID is the record key; it is also written when a profile is embedded in an invitation.
type Profile struct {
	ID          string   `json:"id,omitempty"`
	DisplayName string   `json:"displayName"`
	Email       string   `json:"email"`
	PhotoURL    string   `json:"photoURL"`
	Friends     []string `json:"friends,omitempty"`
}

// Friend is a profile without its own friend list.
type Friend struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	PhotoURL    string `json:"photoURL"`
}

// ProfileFromIdentity builds the fallback profile used until the stored record exists.
func ProfileFromIdentity(ident Identity) Profile {
	return Profile{
		ID:          ident.ID,
		DisplayName: ident.DisplayName,
		Email:       ident.Email,
		PhotoURL:    ident.PhotoURL,
	}
}

// InitialRecord is the first record written for a new user. It has no friends field.
func (ident Identity) InitialRecord() map[string]any {
	return map[string]any{
		"displayName": ident.DisplayName,
		"email":       ident.Email,
		"photoURL":    ident.PhotoURL,
	}
}

// HasFriend reports whether id is in the friend list.
func (p Profile) HasFriend(id string) bool {
	return slices.Contains(p.Friends, id)
}

// WithFriend returns the profile with id appended to its friends.
// The second result is false when id was already a friend and nothing changed.
func (p Profile) WithFriend(id string) (Profile, bool) {
	if id == "" || id == p.ID || p.HasFriend(id) {
		return p, false
	}
	p.Friends = append(slices.Clone(p.Friends), id)
	return p, true
}

// WithoutFriend returns the profile with every occurrence of id removed.
func (p Profile) WithoutFriend(id string) Profile {
	p.Friends = slices.DeleteFunc(slices.Clone(p.Friends), func(f string) bool { return f == id })
	return p
}

// AsFriend drops the friend list.
func (p Profile) AsFriend() Friend {
	return Friend{ID: p.ID, DisplayName: p.DisplayName, Email: p.Email, PhotoURL: p.PhotoURL}
}

// Snapshot is the copy of the profile embedded in invitations.
func (p Profile) Snapshot() Profile {
	p.Friends = nil
	return p
}

// MatchesEmail reports whether the profile's e-mail equals email after folding.
func (p Profile) MatchesEmail(email string) bool {
	return p.Email != "" && NormalizeEmail(p.Email) == NormalizeEmail(email)
}

// AsPlayer creates the zero-score entry for the profile in a match.
func (p Profile) AsPlayer() Player {
	name := p.DisplayName
	if name == "" {
		name = "Unknown"
	}
	return Player{ID: p.ID, Name: name, PhotoURL: p.PhotoURL}
}
