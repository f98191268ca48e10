package gtfs

import (
	"regexp"
	"strings"
)

// Acronyms that stay fully uppercase in display names. Everything else gets
// title-cased word by word.
var knownAcronyms = map[string]struct{}{
	"USM":   {}, // University of Southern Maine
	"MMC":   {}, // Maine Medical Center
	"JC":    {}, // JC Penney
	"CBHS":  {}, // Casco Bay High School
	"IDEXX": {}, // IDEXX Laboratories
	"HS":    {}, // High School, ex. "Deering HS"
	"IB":    {}, // Inbound
	"OB":    {}, // Outbound
	"SMCC":  {}, // Southern Maine Community College
}

// A word is a run of letters plus apostrophes, so "SHAW'S" title-cases to
// "Shaw's" instead of "Shaw'S". Everything between words (spaces, slashes,
// digits, punctuation) passes through untouched.
var wordPattern = regexp.MustCompile(`[A-Za-z']+`)

// FixCapitalization rewrites an all-caps feed name into display casing,
// preserving known acronyms.
func FixCapitalization(input string) string {
	return wordPattern.ReplaceAllStringFunc(input, func(word string) string {
		upper := strings.ToUpper(word)
		if _, ok := knownAcronyms[upper]; ok {
			return upper
		}
		lower := strings.ToLower(upper)
		for i, r := range lower {
			if r >= 'a' && r <= 'z' {
				return lower[:i] + strings.ToUpper(string(r)) + lower[i+len(string(r)):]
			}
		}
		return lower
	})
}
