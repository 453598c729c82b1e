// Package ticker extracts crypto ticker mentions from scraped text.
//
// Extraction is pure: no network, no store access, deterministic for a
// given input. Two matchers run over each text: a `$`-prefixed symbol
// pattern ($BTC, $doge) and a dictionary match against the known-symbol
// set (bare "BTC" in a caption). Matching is case-insensitive and
// repeated mentions within the same text are counted.
package ticker

import (
	"regexp"
	"strings"
)

// symbolPattern matches $-prefixed ticker candidates: a letter followed
// by up to nine alphanumerics. Longer runs are ignored as noise.
var symbolPattern = regexp.MustCompile(`\$([A-Za-z][A-Za-z0-9]{0,9})\b`)

// wordPattern tokenizes remaining text for dictionary matching.
var wordPattern = regexp.MustCompile(`[A-Za-z][A-Za-z0-9]{0,9}`)

// Extractor recognizes ticker mentions in free text.
type Extractor struct {
	known map[string]bool // uppercase symbol set for bare-word matches
}

// New creates an Extractor with the given known-symbol dictionary.
// Symbols are folded to uppercase. A nil or empty dictionary disables
// bare-word matching; $-prefixed extraction always applies.
func New(symbols []string) *Extractor {
	known := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			known[s] = true
		}
	}
	return &Extractor{known: known}
}

// Extract returns ticker → occurrence count for the given text.
// Empty or malformed input yields an empty map, never an error.
func (e *Extractor) Extract(text string) map[string]int {
	counts := make(map[string]int)
	if text == "" {
		return counts
	}

	// $-prefixed mentions first. Matched spans are blanked so the
	// dictionary pass does not count the same token twice.
	remainder := symbolPattern.ReplaceAllStringFunc(text, func(m string) string {
		sym := strings.ToUpper(m[1:])
		counts[sym]++
		return strings.Repeat(" ", len(m))
	})

	// Bare-word dictionary mentions.
	if len(e.known) > 0 {
		for _, w := range wordPattern.FindAllString(remainder, -1) {
			sym := strings.ToUpper(w)
			if e.known[sym] {
				counts[sym]++
			}
		}
	}

	return counts
}

// Known reports whether a symbol is in the dictionary.
func (e *Extractor) Known(symbol string) bool {
	return e.known[strings.ToUpper(symbol)]
}
