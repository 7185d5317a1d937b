// Package merchant canonicalizes free-text merchant names and compares them.
//
// Normalization runs a fixed pipeline:
//  1. uppercase and trim
//  2. strip payment-processor prefixes (SQ *, TST*, PAYPAL *, ...)
//  3. strip store numbers and trailing digit runs
//  4. apply the alias table (token-boundary or regex match)
//  5. strip corporate suffixes (INC, LLC, CORP, ...)
//  6. collapse whitespace
//  7. title-case words longer than two characters
//
// Example usage:
//
//	n, _ := merchant.NewNormalizer(merchant.DefaultRules())
//	n.Normalize("AMZN MKTP US*2K3")         // "Amazon"
//	n.Compare("Uber Eats", "UBER EATS CA") // 1.0
package merchant

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// MaxTokenBonus caps the shared-token bonus added to the edit-distance score.
const MaxTokenBonus = 0.2

var (
	storeNumberPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s*#\s*\d+`),
		regexp.MustCompile(`\s+(?:STORE|STR|NO\.?|UNIT)\s*\d+`),
		regexp.MustCompile(`(?:[\s*#]+\d[\d\-]{2,})+$`),
	}
	whitespace = regexp.MustCompile(`\s+`)
)

type compiledAlias struct {
	Alias
	re *regexp.Regexp
}

// Normalizer is safe for concurrent use. Aliases can be added at runtime.
type Normalizer struct {
	mu       sync.RWMutex
	prefixes []string
	suffixRe *regexp.Regexp
	aliases  []compiledAlias
}

// NewNormalizer compiles the given rules.
func NewNormalizer(rules Rules) (*Normalizer, error) {
	n := &Normalizer{}

	n.prefixes = make([]string, 0, len(rules.Prefixes))
	for _, p := range rules.Prefixes {
		if p = strings.ToUpper(strings.TrimLeft(p, " ")); p != "" {
			n.prefixes = append(n.prefixes, p)
		}
	}
	// Longer prefixes first so "SP * " wins over "SP *".
	sort.SliceStable(n.prefixes, func(i, j int) bool {
		return len(n.prefixes[i]) > len(n.prefixes[j])
	})

	if len(rules.Suffixes) > 0 {
		quoted := make([]string, 0, len(rules.Suffixes))
		for _, s := range rules.Suffixes {
			quoted = append(quoted, regexp.QuoteMeta(strings.ToUpper(s)))
		}
		n.suffixRe = regexp.MustCompile(`(?:[\s,]+(?:` + strings.Join(quoted, "|") + `)\.?)+$`)
	}

	for _, a := range rules.Aliases {
		if err := n.addAliasLocked(a); err != nil {
			return nil, err
		}
	}
	n.sortAliasesLocked()

	return n, nil
}

// AddAlias registers an alias without a restart.
func (n *Normalizer) AddAlias(a Alias) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.addAliasLocked(a); err != nil {
		return err
	}
	n.sortAliasesLocked()
	return nil
}

// Aliases returns a copy of the active alias table in match order.
func (n *Normalizer) Aliases() []Alias {
	n.mu.RLock()
	defer n.mu.RUnlock()

	out := make([]Alias, 0, len(n.aliases))
	for _, a := range n.aliases {
		out = append(out, a.Alias)
	}
	return out
}

func (n *Normalizer) addAliasLocked(a Alias) error {
	pattern := strings.TrimSpace(a.Pattern)
	canonical := strings.ToUpper(strings.TrimSpace(a.Canonical))
	if pattern == "" || canonical == "" {
		return fmt.Errorf("alias requires pattern and canonical name")
	}

	var re *regexp.Regexp
	var err error
	if a.Regex {
		re, err = regexp.Compile("(?i)" + pattern)
	} else {
		pattern = strings.ToUpper(pattern)
		re, err = regexp.Compile(`(?:^|[^A-Z0-9])` + regexp.QuoteMeta(pattern) + `(?:$|[^A-Z0-9])`)
	}
	if err != nil {
		return fmt.Errorf("invalid alias pattern %q: %w", a.Pattern, err)
	}

	// Re-adding a pattern replaces the earlier entry.
	for i, existing := range n.aliases {
		if existing.Regex == a.Regex && existing.Pattern == pattern {
			n.aliases[i] = compiledAlias{Alias: Alias{Pattern: pattern, Canonical: canonical, Regex: a.Regex}, re: re}
			return nil
		}
	}

	n.aliases = append(n.aliases, compiledAlias{
		Alias: Alias{Pattern: pattern, Canonical: canonical, Regex: a.Regex},
		re:    re,
	})
	return nil
}

// sortAliasesLocked puts regex aliases first, then plain aliases longest first.
func (n *Normalizer) sortAliasesLocked() {
	sort.SliceStable(n.aliases, func(i, j int) bool {
		a, b := n.aliases[i], n.aliases[j]
		if a.Regex != b.Regex {
			return a.Regex
		}
		if a.Regex {
			return false
		}
		return len(a.Pattern) > len(b.Pattern)
	})
}

// Normalize returns the canonical form of a merchant or charge description.
func (n *Normalizer) Normalize(name string) string {
	s := strings.ToUpper(strings.TrimSpace(name))
	if s == "" {
		return ""
	}

	n.mu.RLock()
	defer n.mu.RUnlock()

	s = n.stripPrefixes(s)

	for _, re := range storeNumberPatterns {
		s = strings.TrimSpace(re.ReplaceAllString(s, ""))
	}

	for _, a := range n.aliases {
		if a.re.MatchString(s) {
			s = a.Canonical
			break
		}
	}

	if n.suffixRe != nil {
		s = n.suffixRe.ReplaceAllString(s, "")
	}

	s = strings.TrimSpace(whitespace.ReplaceAllString(s, " "))

	return titleCase(s)
}

func (n *Normalizer) stripPrefixes(s string) string {
	for changed := true; changed; {
		changed = false
		for _, p := range n.prefixes {
			if strings.HasPrefix(s, p) && len(s) > len(p) {
				s = strings.TrimSpace(s[len(p):])
				changed = true
				break
			}
		}
	}
	return s
}

// Similarity scores two normalized names in [0, 1]. Identical names score
// exactly 1.0 without fuzzy comparison. An empty side carries no merchant
// evidence and scores 0, even against another empty name.
func (n *Normalizer) Similarity(a, b string) float64 {
	a = strings.ToUpper(strings.TrimSpace(a))
	b = strings.ToUpper(strings.TrimSpace(b))
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1.0
	}

	tokensA := strings.Fields(a)
	tokensB := strings.Fields(b)

	sortedA := sortedJoin(tokensA)
	sortedB := sortedJoin(tokensB)

	maxLen := utf8.RuneCountInString(sortedA)
	if l := utf8.RuneCountInString(sortedB); l > maxLen {
		maxLen = l
	}

	score := 1 - float64(levenshtein.ComputeDistance(sortedA, sortedB))/float64(maxLen)
	if score < 0 {
		score = 0
	}

	score += MaxTokenBonus * sharedTokenFraction(tokensA, tokensB)
	if score > 1 {
		score = 1
	}
	return score
}

// Compare normalizes both raw names and scores them.
func (n *Normalizer) Compare(rawA, rawB string) float64 {
	return n.Similarity(n.Normalize(rawA), n.Normalize(rawB))
}

func sortedJoin(tokens []string) string {
	cp := append([]string(nil), tokens...)
	sort.Strings(cp)
	return strings.Join(cp, " ")
}

// sharedTokenFraction is the share of significant tokens (longer than two
// characters) common to both names, relative to the larger set.
func sharedTokenFraction(a, b []string) float64 {
	setA := significant(a)
	setB := significant(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	shared := 0
	for t := range setA {
		if setB[t] {
			shared++
		}
	}

	denom := len(setA)
	if len(setB) > denom {
		denom = len(setB)
	}
	return float64(shared) / float64(denom)
}

func significant(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		if utf8.RuneCountInString(t) > 2 {
			set[t] = true
		}
	}
	return set
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		runes := []rune(w)
		if len(runes) <= 2 {
			continue
		}
		words[i] = strings.ToUpper(string(runes[:1])) + strings.ToLower(string(runes[1:]))
	}
	return strings.Join(words, " ")
}
