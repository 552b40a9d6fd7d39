package matcher

import (
	"fmt"
	"net/netip"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/casbin/govaluate"
)

// ExactMatch reports whether the two values are identical. It exists as a
// named builtin so models can spell out exact comparison where an operator
// would be ambiguous.
func ExactMatch(key1, key2 string) bool {
	return key1 == key2
}

// KeyMatch matches URL-path style patterns where "*" swallows the rest of
// the path: "/api/*" matches "/api/users" but not "/web/users".
func KeyMatch(key1, key2 string) bool {
	i := strings.Index(key2, "*")
	if i == -1 {
		return key1 == key2
	}
	if len(key1) > i {
		return key1[:i] == key2[:i]
	}
	return key1 == key2[:i]
}

// GlobMatch matches key1 against a glob pattern, including "**" spans. The
// role manager uses the same primitive for pattern-based domains so the two
// components never disagree on what a glob means.
func GlobMatch(key1, pattern string) (bool, error) {
	ok, err := doublestar.Match(pattern, key1)
	if err != nil {
		return false, fmt.Errorf("malformed glob pattern %q: %w", pattern, err)
	}
	return ok, nil
}

// RegexMatch matches key1 against a regular expression.
func RegexMatch(key1, pattern string) (bool, error) {
	ok, err := regexp.MatchString(pattern, key1)
	if err != nil {
		return false, fmt.Errorf("malformed regex %q: %w", pattern, err)
	}
	return ok, nil
}

// IPMatch reports whether ip1 falls inside ip2, where ip2 is either a CIDR
// range ("192.168.2.0/24") or a single address. Malformed literals are
// evaluation errors, not silent mismatches.
func IPMatch(ip1, ip2 string) (bool, error) {
	addr, err := netip.ParseAddr(ip1)
	if err != nil {
		return false, fmt.Errorf("malformed IP address %q: %w", ip1, err)
	}
	if strings.Contains(ip2, "/") {
		prefix, err := netip.ParsePrefix(ip2)
		if err != nil {
			return false, fmt.Errorf("malformed CIDR range %q: %w", ip2, err)
		}
		return prefix.Contains(addr), nil
	}
	addr2, err := netip.ParseAddr(ip2)
	if err != nil {
		return false, fmt.Errorf("malformed IP address %q: %w", ip2, err)
	}
	return addr == addr2, nil
}

// wrap2 adapts a two-string predicate into an expression function with
// strict arity and type checks, so misuse surfaces as a typed evaluation
// error instead of a wrong answer.
func wrap2(name string, fn func(string, string) (bool, error)) govaluate.ExpressionFunction {
	return func(args ...interface{}) (interface{}, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("%s: expected 2 arguments, got %d", name, len(args))
		}
		s1, ok1 := args[0].(string)
		s2, ok2 := args[1].(string)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("%s: both arguments must be strings", name)
		}
		return fn(s1, s2)
	}
}

// Builtins returns a fresh copy of the builtin predicate registry. Callers
// may extend the returned map with their own named predicates before
// compiling; the builtin names themselves are fixed.
func Builtins() map[string]govaluate.ExpressionFunction {
	return map[string]govaluate.ExpressionFunction{
		"exactMatch": wrap2("exactMatch", func(a, b string) (bool, error) { return ExactMatch(a, b), nil }),
		"keyMatch":   wrap2("keyMatch", func(a, b string) (bool, error) { return KeyMatch(a, b), nil }),
		"globMatch":  wrap2("globMatch", GlobMatch),
		"regexMatch": wrap2("regexMatch", RegexMatch),
		"ipMatch":    wrap2("ipMatch", IPMatch),
	}
}
