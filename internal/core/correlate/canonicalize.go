// Package correlate implements C5, the Correlation Engine: deterministic
// entity canonicalization, timeline reconstruction, temporal sequences, and
// timeline gap detection. Everything here is a pure function of its inputs.
package correlate

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// CanonicalVariants is the three-variant output of canonicalize(name):
// base, short, and initials. Two original names correlate iff any variant
// collides across occurrences.
type CanonicalVariants struct {
	Base     string
	Short    string
	Initials string
}

var commaPattern = regexp.MustCompile(`^([^,]+),\s*([^,]+)$`)
var wordPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// Canonicalize runs the six-step algorithm from §4.5:
//  1. Unicode NFKC normalize.
//  2. Collapse whitespace; case-fold.
//  3. Normalize role tokens via roleTokenMap.
//  4. Detect "Last, First" pattern (single comma): swap to "First Last".
//  5. Extract alphanumeric word tokens in order.
//  6. Emit base/short/initials.
func Canonicalize(raw string) CanonicalVariants {
	s := norm.NFKC.String(raw)
	s = strings.Join(strings.Fields(s), " ")
	s = strings.ToLower(s)

	// Longest phrase first (ties alphabetical), so "senior vice president"
	// is replaced before "vice president" regardless of map order.
	phrases := make([]string, 0, len(roleTokenMap))
	for phrase := range roleTokenMap {
		phrases = append(phrases, phrase)
	}
	sort.Slice(phrases, func(i, j int) bool {
		if len(phrases[i]) != len(phrases[j]) {
			return len(phrases[i]) > len(phrases[j])
		}
		return phrases[i] < phrases[j]
	})
	for _, phrase := range phrases {
		s = strings.ReplaceAll(s, phrase, roleTokenMap[phrase])
	}

	if m := commaPattern.FindStringSubmatch(s); m != nil {
		last := strings.TrimSpace(m[1])
		first := strings.TrimSpace(m[2])
		if !strings.Contains(last, ",") && !strings.Contains(first, ",") {
			s = first + " " + last
		}
	}

	tokens := wordPattern.FindAllString(s, -1)
	if len(tokens) == 0 {
		return CanonicalVariants{}
	}

	base := strings.Join(tokens, " ")

	var short string
	if len(tokens) == 1 {
		short = tokens[0]
	} else {
		short = tokens[0] + " " + tokens[len(tokens)-1]
	}

	initialsParts := make([]string, 0, len(tokens))
	for _, t := range tokens {
		r := []rune(t)
		if len(r) > 0 && unicode.IsLetter(r[0]) {
			initialsParts = append(initialsParts, strings.ToLower(string(r[0])))
		}
	}
	initials := strings.Join(initialsParts, " ")

	return CanonicalVariants{Base: base, Short: short, Initials: initials}
}

// Keys returns the set of non-empty variant strings used to index an
// occurrence into the multi-variant bucket map.
func (v CanonicalVariants) Keys() []string {
	var keys []string
	seen := make(map[string]bool)
	for _, k := range []string{v.Base, v.Short, v.Initials} {
		if k != "" && !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	return keys
}
