package gate

import (
	"fmt"
	"regexp"
)

// Category tags a sensitive-operation rule.
type Category string

const (
	CategoryDestructive    Category = "destructive"
	CategorySensitiveFile  Category = "sensitive-file"
	CategoryInfrastructure Category = "infrastructure"
)

// SensitiveRule matches staged file paths or command text that require a
// human decision before the operation may proceed.
type SensitiveRule struct {
	Pattern     string   `json:"pattern" yaml:"pattern"`
	Category    Category `json:"category" yaml:"category"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`

	re *regexp.Regexp
}

func (r *SensitiveRule) compile() error {
	re, err := regexp.Compile(r.Pattern)
	if err != nil {
		return fmt.Errorf("sensitive rule %q: %w", r.Pattern, err)
	}
	r.re = re
	return nil
}

// Match is one sensitive-operation detection: a rule plus the subject that
// matched it. Every detection resolves to exactly one audit event.
type Match struct {
	Rule    SensitiveRule
	Subject string
}

// scan returns every detection in the change set. Paths and command text
// are both checked; a rule may match several subjects, each its own
// detection.
func scan(rules []SensitiveRule, cs ChangeSet) []Match {
	var matches []Match
	for _, rule := range rules {
		if rule.re == nil {
			continue
		}
		for _, path := range cs.Files {
			if rule.re.MatchString(path) {
				matches = append(matches, Match{Rule: rule, Subject: path})
			}
		}
		if cs.CommandText != "" && rule.re.MatchString(cs.CommandText) {
			matches = append(matches, Match{Rule: rule, Subject: cs.CommandText})
		}
	}
	return matches
}
