package search

import (
	"encoding/json"
	"os"
	"regexp"
	"strings"
)

// wordRE matches letter runs with optional trailing digits ("bench", "v2").
var wordRE = regexp.MustCompile(`\p{L}+\p{N}*`)

// tokenize lowercases s and returns its unique tokens, minus stopwords.
func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	s = strings.ToLower(s)
	words := wordRE.FindAllString(s, -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if w == "" {
			continue
		}
		if stop != nil {
			if _, skip := stop[w]; skip {
				continue
			}
		}
		out[w] = struct{}{}
	}
	return out
}

// overlap counts tokens present in both sets, iterating the smaller one.
func overlap(a, b map[string]struct{}) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(a) > len(b) {
		a, b = b, a
	}
	n := 0
	for t := range a {
		if _, ok := b[t]; ok {
			n++
		}
	}
	return n
}

var wsRE = regexp.MustCompile(`\s+`)

// normalizeWhitespace collapses runs of whitespace to single spaces.
func normalizeWhitespace(s string) string {
	return strings.TrimSpace(wsRE.ReplaceAllString(s, " "))
}

// LoadSeed reads a JSON array of exercises from path. Used to warm the index
// at startup when a seed file is configured.
func LoadSeed(path string) ([]Exercise, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records []Exercise
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, err
	}
	return records, nil
}
