// Package invalidation implements the InvalidationBus (§4.6) plus a
// supplemental pattern-matching convenience layered on top of it.
package invalidation

import (
	"errors"
	"regexp"
	"strings"
	"sync"
)

// Matcher matches cache keys against prefix/suffix/contains/regex patterns,
// caching compiled regexes so repeated InvalidateMatching calls with the
// same pattern don't pay recompilation cost.
//
// Supported patterns:
//   - exact:    "user:123"   matches only "user:123"
//   - prefix:   "user:*"     matches "user:123", "user:456"
//   - suffix:   "*:profile"  matches "user:profile", "order:profile"
//   - contains: "*:123:*"    matches any key containing ":123:"
//   - regex:    "user:[0-9]+" matches "user:123" (use sparingly)
type Matcher struct {
	regexCache sync.Map // map[string]*regexp.Regexp
}

// NewMatcher builds an empty Matcher.
func NewMatcher() *Matcher { return &Matcher{} }

// Match returns the subset of keys matching pattern.
func (m *Matcher) Match(pattern string, keys []string) []string {
	if pattern == "" {
		return nil
	}
	if !isWildcard(pattern) && !isRegexLike(pattern) {
		for _, k := range keys {
			if k == pattern {
				return []string{k}
			}
		}
		return nil
	}
	if isWildcard(pattern) {
		return m.matchWildcard(pattern, keys)
	}
	return m.matchRegex(pattern, keys)
}

func isWildcard(pattern string) bool { return strings.Contains(pattern, "*") }

func isRegexLike(pattern string) bool {
	return strings.ContainsAny(pattern, "[]()^$+?{}|")
}

func (m *Matcher) matchWildcard(pattern string, keys []string) []string {
	if pattern == "*" {
		return keys
	}
	var matches []string
	switch {
	case strings.HasPrefix(pattern, "*") && strings.HasSuffix(pattern, "*"):
		needle := strings.Trim(pattern, "*")
		for _, k := range keys {
			if strings.Contains(k, needle) {
				matches = append(matches, k)
			}
		}
	case strings.HasPrefix(pattern, "*"):
		suffix := strings.TrimPrefix(pattern, "*")
		for _, k := range keys {
			if strings.HasSuffix(k, suffix) {
				matches = append(matches, k)
			}
		}
	case strings.HasSuffix(pattern, "*"):
		prefix := strings.TrimSuffix(pattern, "*")
		for _, k := range keys {
			if strings.HasPrefix(k, prefix) {
				matches = append(matches, k)
			}
		}
	default:
		return m.matchRegex(wildcardToRegex(pattern), keys)
	}
	return matches
}

func (m *Matcher) matchRegex(pattern string, keys []string) []string {
	re, err := m.compile(pattern)
	if err != nil {
		return nil
	}
	var matches []string
	for _, k := range keys {
		if re.MatchString(k) {
			matches = append(matches, k)
		}
	}
	return matches
}

func (m *Matcher) compile(pattern string) (*regexp.Regexp, error) {
	if cached, ok := m.regexCache.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	m.regexCache.Store(pattern, re)
	return re, nil
}

func wildcardToRegex(pattern string) string {
	escaped := regexp.QuoteMeta(pattern)
	escaped = strings.ReplaceAll(escaped, "\\*", ".*")
	return "^" + escaped + "$"
}

// Validate rejects patterns that are too long or fail to compile as regex.
func (m *Matcher) Validate(pattern string) error {
	if pattern == "" {
		return nil
	}
	if len(pattern) > 1000 {
		return errors.New("invalidation: pattern too long")
	}
	if isRegexLike(pattern) {
		_, err := regexp.Compile(pattern)
		return err
	}
	return nil
}
