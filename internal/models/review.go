package models

import (
	"strings"
	"time"
)

// Review is a customer review synced from an external review provider.
// The pipeline never creates or deletes reviews; the only field it owns is
// IsConceptualized, flipped from false to true exactly once by batch intake.
type Review struct {
	ID               string    `json:"id"`
	LocationID       string    `json:"location_id"`
	CompanyID        string    `json:"company_id"`
	Comment          string    `json:"comment"`
	Rating           int       `json:"rating"`
	IsTest           bool      `json:"is_test"`
	IsConceptualized bool      `json:"is_conceptualized"`
	CreatedAt        time.Time `json:"created_at"`
}

// HasComment reports whether the review carries any extractable text.
func (r Review) HasComment() bool {
	return strings.TrimSpace(r.Comment) != ""
}

// BusinessContext is the business metadata passed alongside review text so
// the extractor can ground concepts in the right domain.
type BusinessContext struct {
	Name     string `json:"name"`
	Category string `json:"category"`
}
