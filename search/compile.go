// Package search turns free-text location queries into the term lists used by
// the location text index.
package search

import (
	"regexp"
	"strings"
)

var nonWord = regexp.MustCompile(`\W+`)

type Query struct {
	Included []string
	Excluded []string
}

// Compile splits raw on whitespace. Tokens starting with '-' become exclusions;
// every token is stripped of non-word characters and dropped when nothing is left.
func Compile(raw string) Query {
	var q Query
	seen := make(map[string]bool)

	for _, token := range strings.Fields(raw) {
		excluded := strings.HasPrefix(token, "-")
		if excluded {
			token = token[1:]
		}
		term := nonWord.ReplaceAllString(token, "")
		if term == "" {
			continue
		}

		key := term
		if excluded {
			key = "-" + term
		}
		if seen[key] {
			continue
		}
		seen[key] = true

		if excluded {
			q.Excluded = append(q.Excluded, term)
		} else {
			q.Included = append(q.Included, term)
		}
	}
	return q
}

// Empty reports whether the query can match anything. A query made only of
// exclusions matches nothing in a text index.
func (q Query) Empty() bool { return len(q.Included) == 0 }

// Text renders the query in MongoDB $text syntax: negated terms first, then
// the terms to match.
func (q Query) Text() string {
	parts := make([]string, 0, len(q.Excluded)+len(q.Included))
	for _, term := range q.Excluded {
		parts = append(parts, "-"+term)
	}
	parts = append(parts, q.Included...)
	return strings.Join(parts, " ")
}
