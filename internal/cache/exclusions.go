package cache

import (
	"regexp"

	"github.com/freegin/freegin-ai/pkg/apperr"
)

// ExclusionList keeps generation responses for certain models out of the
// cache. Operators list models whose output should never be replayed, for
// example models serving creative workloads or preview releases that change
// under the same name.
//
// Rules come in two forms: exact model names and regular expressions matched
// against the model name. A nil list excludes nothing.
type ExclusionList struct {
	names map[string]struct{}
	regex []*regexp.Regexp
}

// NewExclusionList builds the rule set. Blank entries are dropped; a pattern
// that does not compile fails the whole list so bad config surfaces at boot.
func NewExclusionList(exact, patterns []string) (*ExclusionList, error) {
	el := &ExclusionList{names: make(map[string]struct{}, len(exact))}

	for _, name := range exact {
		if name == "" {
			continue
		}
		el.names[name] = struct{}{}
	}
	for _, pat := range patterns {
		if pat == "" {
			continue
		}
		re, err := regexp.Compile(pat)
		if err != nil {
			return nil, apperr.Config("invalid cache exclusion pattern %q: %v", pat, err)
		}
		el.regex = append(el.regex, re)
	}
	return el, nil
}

// Matches reports whether model is excluded. Name rules are consulted before
// patterns.
func (el *ExclusionList) Matches(model string) bool {
	if el == nil {
		return false
	}
	if _, ok := el.names[model]; ok {
		return true
	}
	for _, re := range el.regex {
		if re.MatchString(model) {
			return true
		}
	}
	return false
}

// Len counts the configured rules.
func (el *ExclusionList) Len() int {
	if el == nil {
		return 0
	}
	return len(el.names) + len(el.regex)
}
