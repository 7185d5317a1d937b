package merchant

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Alias maps a known abbreviation or brand variant to a canonical brand name.
// Plain aliases match on token boundaries; regex aliases are compiled once.
type Alias struct {
	Pattern   string `yaml:"pattern" json:"pattern"`
	Canonical string `yaml:"canonical" json:"canonical"`
	Regex     bool   `yaml:"regex" json:"regex"`
}

// Rules is the configuration data driving normalization.
type Rules struct {
	Prefixes []string `yaml:"prefixes"`
	Suffixes []string `yaml:"suffixes"`
	Aliases  []Alias  `yaml:"aliases"`
}

// DefaultRules returns the built-in processor prefixes, corporate suffixes and
// brand aliases.
func DefaultRules() Rules {
	return Rules{
		Prefixes: []string{
			"SQ *", "SQ*",
			"TST* ", "TST*",
			"PAYPAL *", "PAYPAL*",
			"PP*",
			"SP * ", "SP *",
			"DD *", "DD*",
			"GOOGLE *",
			"APL*",
			"IC* ",
			"PY *",
		},
		Suffixes: []string{
			"INC", "LLC", "L.L.C", "CORP", "CORPORATION", "CO", "LTD",
			"LIMITED", "COMPANY", "PLC", "LP",
		},
		Aliases: []Alias{
			{Pattern: "AMZN MKTP", Canonical: "AMAZON"},
			{Pattern: "AMAZON.COM", Canonical: "AMAZON"},
			{Pattern: "AMZN", Canonical: "AMAZON"},
			{Pattern: "AMAZON WEB SERVICES", Canonical: "AMAZON WEB SERVICES"},
			{Pattern: "AWS", Canonical: "AMAZON WEB SERVICES"},
			{Pattern: "AMAZON", Canonical: "AMAZON"},
			{Pattern: `^UBER\s*\*?\s*EATS`, Canonical: "UBER EATS", Regex: true},
			{Pattern: `^UBER\s*\*?\s*TRIP`, Canonical: "UBER", Regex: true},
			{Pattern: "UBER EATS", Canonical: "UBER EATS"},
			{Pattern: "WM SUPERCENTER", Canonical: "WALMART"},
			{Pattern: "WAL-MART", Canonical: "WALMART"},
			{Pattern: "WALMART.COM", Canonical: "WALMART"},
			{Pattern: "WALMART", Canonical: "WALMART"},
			{Pattern: "SBUX", Canonical: "STARBUCKS"},
			{Pattern: "STARBUCKS", Canonical: "STARBUCKS"},
			{Pattern: "MCDONALD'S", Canonical: "MCDONALDS"},
			{Pattern: "MCDONALDS", Canonical: "MCDONALDS"},
			{Pattern: "COSTCO WHSE", Canonical: "COSTCO"},
			{Pattern: "COSTCO", Canonical: "COSTCO"},
			{Pattern: "DOORDASH", Canonical: "DOORDASH"},
			{Pattern: "LYFT", Canonical: "LYFT"},
			{Pattern: "DELTA AIR", Canonical: "DELTA AIR LINES"},
			{Pattern: "SOUTHWES", Canonical: "SOUTHWEST AIRLINES"},
			{Pattern: "UNITED AIRLINES", Canonical: "UNITED AIRLINES"},
		},
	}
}

// Merge returns r extended by other. Non-empty prefix and suffix lists in
// other replace those in r; aliases are appended.
func (r Rules) Merge(other Rules) Rules {
	merged := Rules{
		Prefixes: r.Prefixes,
		Suffixes: r.Suffixes,
		Aliases:  append(append([]Alias{}, r.Aliases...), other.Aliases...),
	}
	if len(other.Prefixes) > 0 {
		merged.Prefixes = other.Prefixes
	}
	if len(other.Suffixes) > 0 {
		merged.Suffixes = other.Suffixes
	}
	return merged
}

// LoadRules reads normalization rules from a YAML file.
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, err
	}

	var rules Rules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return Rules{}, fmt.Errorf("failed to parse merchant rules %s: %w", path, err)
	}

	for i := range rules.Prefixes {
		rules.Prefixes[i] = strings.ToUpper(rules.Prefixes[i])
	}
	for i := range rules.Suffixes {
		rules.Suffixes[i] = strings.ToUpper(rules.Suffixes[i])
	}

	return rules, nil
}
