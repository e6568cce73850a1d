package geo

import (
	"strings"
	"unicode"

	"github.com/kozaktomas/punch-clock/internal/database"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveDiacritics removes diacritical marks from a string (e.g., "São Paulo" -> "Sao Paulo").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// NormalizeName normalizes a location name for comparison (lowercase, no diacritics, spaces for dashes).
func NormalizeName(name string) string {
	name = RemoveDiacritics(name)
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "-", " ")
	return strings.Join(strings.Fields(name), " ")
}

// FindByName returns the first location whose normalized name equals name, or nil.
func FindByName(name string, locations []database.WorkLocation) *database.WorkLocation {
	want := NormalizeName(name)
	for i := range locations {
		if NormalizeName(locations[i].Name) == want {
			return &locations[i]
		}
	}
	return nil
}
