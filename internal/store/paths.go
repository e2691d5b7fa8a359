package store

import (
	"strings"
)

// Root collections.
const (
	PlayersPath     = "players"
	MatchesPath     = "matches"
	InvitationsRoot = "invitations_sent"
)

// PlayerPath is the profile record of a user.
func PlayerPath(userID string) string {
	return Join(PlayersPath, userID)
}

// MatchPath is a match record.
func MatchPath(matchID string) string {
	return Join(MatchesPath, matchID)
}

// InvitationsPath holds every pending invitation addressed to userID.
func InvitationsPath(userID string) string {
	return Join(InvitationsRoot, userID, "invitations")
}

// InvitationPath is one invitation addressed to userID.
func InvitationPath(userID, invitationID string) string {
	return Join(InvitationsPath(userID), invitationID)
}

// Join builds a path from segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

// Clean validates a path and strips leading and trailing slashes.
func Clean(path string) (string, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return "", ErrInvalidPath
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", ErrInvalidPath
		}
	}
	return path, nil
}

// Segments splits a clean path.
func Segments(path string) []string {
	return strings.Split(path, "/")
}

// Related reports whether a change at one path can affect a subscription at the other:
// the paths are equal or one lies beneath the other.
func Related(a, b string) bool {
	return a == b || IsBeneath(a, b) || IsBeneath(b, a)
}

// IsBeneath reports whether child lies strictly under parent.
func IsBeneath(child, parent string) bool {
	return len(child) > len(parent) && strings.HasPrefix(child, parent) && child[len(parent)] == '/'
}

// Key returns the last segment of a path.
func Key(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}
