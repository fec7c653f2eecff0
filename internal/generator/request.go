package generator

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/smorand/google-slides-deckbuilder/internal/catalog"
)

// Request is the form submission consumed by Generate.
type Request struct {
	CustomerName string
	AEName       string
	UserName     string
	// LogoURL is empty when no logo was found.
	LogoURL string
	// Chosen is in the order the user picked; agenda numbering follows it.
	Chosen  []catalog.Section
	Deleted []catalog.Section
	// WantsCompanion requests the companion plan document.
	WantsCompanion bool
}

// Validate checks the required fields.
func (r Request) Validate() error {
	if strings.TrimSpace(r.CustomerName) == "" {
		return fmt.Errorf("%w: customer name is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.UserName) == "" {
		return fmt.Errorf("%w: your name is required", ErrInvalidRequest)
	}
	if len(r.Chosen) == 0 {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, catalog.ErrNoSectionsChosen)
	}
	return nil
}

// AgendaText numbers chosen sections from 1 in the order given.
func AgendaText(chosen []catalog.Section) string {
	var b strings.Builder
	for i, s := range chosen {
		fmt.Fprintf(&b, "%d. %s\n", i+1, s.AgendaTitle)
	}
	return b.String()
}

// FileName builds a Drive file name from the customer name and a suffix.
// The customer name is NFC normalized and trimmed.
func FileName(customerName, suffix string) string {
	return norm.NFC.String(strings.TrimSpace(customerName)) + suffix
}

// DeletionSet returns the slide ids covered by the deleted sections in the
// pre-deletion graph, without duplicates.
func DeletionSet(slideIDs []string, deleted []catalog.Section) ([]string, error) {
	seen := make(map[string]bool)
	ids := make([]string, 0)
	for _, s := range deleted {
		if s.Offset < 0 || s.Offset+s.SlideCount > len(slideIDs) {
			return nil, fmt.Errorf("%w: section %d covers slides [%d, %d) but the deck has %d",
				ErrCatalogMismatch, s.Order, s.Offset, s.Offset+s.SlideCount, len(slideIDs))
		}
		for _, id := range slideIDs[s.Offset : s.Offset+s.SlideCount] {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}
