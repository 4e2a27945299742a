// Package place defines the point-of-interest record shared by users.
package place

import "github.com/patric-chuzhbe/placeshare/internal/models"

// Place is a shareable point of interest with exactly one creator.
type Place struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Image       string          `json:"image"`
	Address     string          `json:"address"`
	Location    models.Location `json:"location"`

	// Creator is the ID of the user that created the place.
	Creator string `json:"creator"`
}

// IsCreatedBy compares the creator with userID by value over the canonical
// identifier form.
func (p *Place) IsCreatedBy(userID string) bool {
	return userID != "" && p.Creator == userID
}

// Clone returns a copy of the place.
func (p *Place) Clone() *Place {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
