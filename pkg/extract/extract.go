package extract

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/pocketchat/pocketchat-go/pkg/domain"
)

// Backends without a structured frame channel append suggestion payloads
// to the assistant's visible text as JSON islands, either inside a
// ```json fence or bare. This package recovers them: fenced blocks are
// tried first, then a regex-bounded bare object match. The bare match is
// deliberately lenient and can mis-fire on coincidental JSON-shaped chat
// text; that tradeoff is part of the protocol and must not be tightened
// without a backend change.

const (
	fenceOpen = "```json"
	fenceEnd  = "```"
)

// island is the payload shape of an embedded suggestion object. Pointer
// slices distinguish a present-but-empty array from an absent field.
type island struct {
	Type               string                      `json:"type"`
	SuggestedResponses *[]string                   `json:"suggested_responses"`
	Products           *[]domain.ProductSuggestion `json:"products"`
}

// Bare-object candidates per tag: a greedy bound first, then a lazy one.
// A parse failure on one candidate moves scanning to the next.
var barePatterns = map[string][]*regexp.Regexp{
	domain.TagSuggestedResponses: {
		regexp.MustCompile(`(?s)\{.*"type"\s*:\s*"suggested_responses".*\}`),
		regexp.MustCompile(`(?s)\{.*?"type"\s*:\s*"suggested_responses".*?\}`),
	},
	domain.TagProductSuggestions: {
		regexp.MustCompile(`(?s)\{.*"type"\s*:\s*"product_suggestions".*\}`),
		regexp.MustCompile(`(?s)\{.*?"type"\s*:\s*"product_suggestions".*?\}`),
	},
}

// SuggestedReplies extracts an embedded suggested-replies island,
// returning the cleaned text and the replies. When nothing matches the
// text comes back unchanged.
func SuggestedReplies(text string) (string, []string, bool) {
	clean, isl, ok := extract(text, domain.TagSuggestedResponses)
	if !ok {
		return text, nil, false
	}
	return clean, *isl.SuggestedResponses, true
}

// ProductSuggestions extracts an embedded product-suggestions island,
// returning the cleaned text and the product references. When nothing
// matches the text comes back unchanged.
func ProductSuggestions(text string) (string, []domain.ProductSuggestion, bool) {
	clean, isl, ok := extract(text, domain.TagProductSuggestions)
	if !ok {
		return text, nil, false
	}
	return clean, *isl.Products, true
}

// extract finds at most one island for a tag: every ```json fence in
// order, then the bare-object candidates. First successful parse wins;
// the matched substring is removed and surrounding whitespace trimmed.
func extract(text, tag string) (string, *island, bool) {
	if clean, isl, ok := extractFenced(text, tag); ok {
		return clean, isl, true
	}
	return extractBare(text, tag)
}

func extractFenced(text, tag string) (string, *island, bool) {
	search := 0
	for {
		start := strings.Index(text[search:], fenceOpen)
		if start == -1 {
			return text, nil, false
		}
		start += search

		bodyStart := start + len(fenceOpen)
		end := strings.Index(text[bodyStart:], fenceEnd)
		if end == -1 {
			return text, nil, false
		}
		bodyEnd := bodyStart + end

		if isl := parseIsland(text[bodyStart:bodyEnd], tag); isl != nil {
			clean := strings.TrimSpace(text[:start] + text[bodyEnd+len(fenceEnd):])
			return clean, isl, true
		}
		search = bodyEnd + len(fenceEnd)
	}
}

func extractBare(text, tag string) (string, *island, bool) {
	for _, pattern := range barePatterns[tag] {
		loc := pattern.FindStringIndex(text)
		if loc == nil {
			continue
		}
		isl := parseIsland(text[loc[0]:loc[1]], tag)
		if isl == nil {
			continue
		}
		clean := strings.TrimSpace(text[:loc[0]] + text[loc[1]:])
		return clean, isl, true
	}
	return text, nil, false
}

// parseIsland accepts a candidate only when it parses, carries the
// target tag and has the tag's array field present
func parseIsland(raw, tag string) *island {
	var isl island
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &isl); err != nil {
		return nil
	}
	if isl.Type != tag {
		return nil
	}

	switch tag {
	case domain.TagSuggestedResponses:
		if isl.SuggestedResponses == nil {
			return nil
		}
	case domain.TagProductSuggestions:
		if isl.Products == nil {
			return nil
		}
	default:
		return nil
	}

	return &isl
}
