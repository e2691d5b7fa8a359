// Package search indexes player profiles with Bleve for e-mail lookup and
// name search.
package search

import (
	"github.com/darkscore/darkscore-server/internal/domain"
)

// PlayerDocument is the indexed form of a profile.
type PlayerDocument struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ToMap converts the document to the field names used by the mapping.
func (d PlayerDocument) ToMap() map[string]any {
	m := map[string]any{
		"id":   d.ID,
		"name": d.Name,
	}
	if d.Email != "" {
		m["email"] = d.Email
	}
	return m
}

// ProfileToDocument converts a profile. E-mails are normalized so exact lookups are case-insensitive.
func ProfileToDocument(p domain.Profile) PlayerDocument {
	return PlayerDocument{
		ID:    p.ID,
		Name:  p.DisplayName,
		Email: domain.NormalizeEmail(p.Email),
	}
}
