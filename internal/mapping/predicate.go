package mapping

import (
	"fmt"
	"regexp"
	"strings"
)

// Predicate matches a single cell value. The rule language is closed:
// every predicate is built through ParsePattern.
type Predicate interface {
	Match(value string) bool
	String() string
}

// Exact matches a value verbatim.
type Exact struct{ Value string }

func (p Exact) Match(v string) bool { return v == p.Value }
func (p Exact) String() string      { return p.Value }

// Multi matches any of a fixed set of values.
type Multi struct{ Values []string }

func (p Multi) Match(v string) bool {
	for _, val := range p.Values {
		if v == val {
			return true
		}
	}
	return false
}

func (p Multi) String() string { return strings.Join(p.Values, ",") }

// Wildcard matches values starting with a prefix ("EXP*" matches "EXPELDZ").
type Wildcard struct{ Prefix string }

func (p Wildcard) Match(v string) bool { return strings.HasPrefix(v, p.Prefix) }
func (p Wildcard) String() string      { return p.Prefix + "*" }

// Regex matches against a compiled regular expression.
type Regex struct{ Pattern *regexp.Regexp }

func (p Regex) Match(v string) bool { return p.Pattern.MatchString(v) }
func (p Regex) String() string      { return p.Pattern.String() }

// Negated inverts another predicate ("!ELC" matches everything but ELC).
type Negated struct{ Inner Predicate }

func (p Negated) Match(v string) bool { return !p.Inner.Match(v) }
func (p Negated) String() string      { return "!" + p.Inner.String() }

// AnyOf matches when any member predicate matches. Produced for
// comma-separated lists that mix plain values and wildcards.
type AnyOf struct{ Members []Predicate }

func (p AnyOf) Match(v string) bool {
	for _, m := range p.Members {
		if m.Match(v) {
			return true
		}
	}
	return false
}

func (p AnyOf) String() string {
	parts := make([]string, len(p.Members))
	for i, m := range p.Members {
		parts[i] = m.String()
	}
	return strings.Join(parts, ",")
}

// ParsePattern compiles a mapping filter cell into a predicate.
//
// Cell syntax:
//
//	value        exact match
//	v1,v2        multi-value match
//	prefix*      wildcard match
//	^regex       regular expression match
//	!pattern     negation of any of the above
func ParsePattern(pattern string) (Predicate, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return nil, fmt.Errorf("empty filter pattern")
	}

	if rest, ok := strings.CutPrefix(pattern, "!"); ok {
		inner, err := ParsePattern(rest)
		if err != nil {
			return nil, err
		}
		return Negated{Inner: inner}, nil
	}

	if strings.HasPrefix(pattern, "^") {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid regex %q: %w", pattern, err)
		}
		return Regex{Pattern: re}, nil
	}

	if strings.Contains(pattern, ",") {
		parts := strings.Split(pattern, ",")
		values := make([]string, 0, len(parts))
		members := make([]Predicate, 0, len(parts))
		plain := true
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if strings.HasSuffix(part, "*") {
				plain = false
				members = append(members, Wildcard{Prefix: strings.TrimSuffix(part, "*")})
				continue
			}
			values = append(values, part)
			members = append(members, Exact{Value: part})
		}
		if len(members) == 0 {
			return nil, fmt.Errorf("empty filter pattern %q", pattern)
		}
		if plain {
			return Multi{Values: values}, nil
		}
		return AnyOf{Members: members}, nil
	}

	if strings.HasSuffix(pattern, "*") {
		return Wildcard{Prefix: strings.TrimSuffix(pattern, "*")}, nil
	}

	return Exact{Value: pattern}, nil
}
