// Package pathmatch decides whether a request path is covered by a set of
// gating patterns.
//
// A pattern is one of:
//
//	"*"              every path
//	"/exact/path"    string equality
//	"/api/*/items"   glob; "*" also crosses "/" and "?" matches one character
//	"regex:^/v\d+/"  regular expression anchored to the whole path
package pathmatch

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gobwas/glob"
)

const regexPrefix = "regex:"

type matcher interface {
	Match(path string) bool
}

type matchAll struct{}

func (matchAll) Match(string) bool { return true }

type exact string

func (e exact) Match(path string) bool { return string(e) == path }

type anchored struct{ re *regexp.Regexp }

func (a anchored) Match(path string) bool { return a.re.MatchString(path) }

// Matcher is a compiled, immutable pattern set. It is safe for concurrent use.
type Matcher struct {
	matchers []matcher
}

// Compile compiles every pattern. An empty pattern set matches nothing.
func Compile(patterns ...string) (*Matcher, error) {
	m := &Matcher{matchers: make([]matcher, 0, len(patterns))}
	for _, p := range patterns {
		c, err := compile(p)
		if err != nil {
			return nil, err
		}
		m.matchers = append(m.matchers, c)
	}
	return m, nil
}

func compile(pattern string) (matcher, error) {
	switch {
	case pattern == "*":
		return matchAll{}, nil

	case strings.HasPrefix(pattern, regexPrefix):
		expr := strings.TrimPrefix(pattern, regexPrefix)
		re, err := regexp.Compile(`^(?:` + expr + `)$`)
		if err != nil {
			return nil, fmt.Errorf("invalid path pattern %q: %w", pattern, err)
		}
		return anchored{re: re}, nil

	case strings.ContainsAny(pattern, "*?["):
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid path pattern %q: %w", pattern, err)
		}
		return g, nil

	default:
		return exact(pattern), nil
	}
}

// Match reports whether any pattern matches path.
func (m *Matcher) Match(path string) bool {
	if m == nil {
		return false
	}
	for _, c := range m.matchers {
		if c.Match(path) {
			return true
		}
	}
	return false
}

// Match compiles patterns and matches path once. Invalid patterns never
// match.
func Match(patterns []string, path string) bool {
	m, err := Compile(patterns...)
	if err != nil {
		return false
	}
	return m.Match(path)
}
