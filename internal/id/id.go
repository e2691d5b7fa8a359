// Package id generates identifiers for matches, sessions and invitations.
package id

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes for generated identifiers.
const (
	PrefixMatch   = "match"
	PrefixSession = "sess"
)

// identityNamespace scopes name-based identity ids so they never collide with other v5 uuids.
var identityNamespace = uuid.MustParse("6f1c1d0e-4a4e-4a52-9f0e-6461726b7363")

// Generate creates a prefixed unique ID using NanoID.
// Format: prefix-nanoid (e.g., "match-V1StGXR8_Z5jdHi6B-myT").
//
// Returns an error if the system has insufficient entropy for secure random generation.
func Generate(prefix string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}

// MustGenerate is like Generate but panics if ID generation fails.
func MustGenerate(prefix string) string {
	id, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return id
}

// NewInvitation returns a random invitation id.
func NewInvitation() string {
	return uuid.NewString()
}

// FromName derives a stable user id from a name such as an e-mail address.
// The same name always yields the same id.
func FromName(name string) string {
	sum := uuid.NewSHA1(identityNamespace, []byte(strings.ToLower(strings.TrimSpace(name))))
	return strings.ReplaceAll(sum.String(), "-", "")
}
