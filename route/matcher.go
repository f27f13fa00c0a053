// Package route compiles path templates with named and regex-constrained
// variables into matchers that extract captured parameters from concrete
// paths. It is a direct port of the original daemon's DynamicResource
// (reccd/route/dynamic_resource.py), which in turn follows aiohttp's
// dynamic resource grammar.
package route

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/reccd/reccd/internal/rerrors"
)

// routeToken splits a template on {...} groups, same shape as the Python
// ROUTE_RE: a curly-brace group may itself contain nested braces (for a
// regex alternative like {n:\d{3}}), so splitting can't be a plain regexp
// split on "{" and "}" alone.
var routeToken = regexp.MustCompile(`(\{[_a-zA-Z][^{}]*(?:\{[^{}]*\}[^{}]*)*\})`)

// dynPlain matches a bare {name} capture.
var dynPlain = regexp.MustCompile(`^\{(?P<var>[_a-zA-Z][_a-zA-Z0-9]*)\}$`)

// dynWithPattern matches a {name:regex} capture.
var dynWithPattern = regexp.MustCompile(`^\{(?P<var>[_a-zA-Z][_a-zA-Z0-9]*):(?P<re>.+)\}$`)

// goodSegment is the default capture class for a bare {name}: anything but
// a path separator or brace.
const goodSegment = `[^{}/]+`

// Matcher is a compiled path template. Matcher is safe for concurrent use
// once Compile returns it — it never mutates after construction.
type Matcher struct {
	template  string
	pattern   *regexp.Regexp
	formatter string
}

// Template returns the original template string the Matcher was compiled from.
func (m *Matcher) Template() string { return m.template }

// Compile compiles a path template of the form
// "/segment/{name}/{name:regex}/..." into a Matcher.
//
// Literal characters are percent-encoded at compile time so they match
// already-encoded request paths; {name} captures a greedy run excluding
// '/', '{', '}'; {name:regex} captures using the supplied regex. A bare
// '{' or '}' outside those two forms is a template error. The compiled
// pattern always anchors the full string — partial matches never succeed.
func Compile(template string) (*Matcher, error) {
	const op = rerrors.Op("route.Compile")

	if !strings.HasPrefix(template, "/") {
		return nil, rerrors.Callback(op, rerrors.KindTemplate, "", "",
			fmt.Errorf("template %q must begin with '/'", template))
	}

	var pattern strings.Builder
	var formatter strings.Builder

	for _, part := range splitRouteTokens(template) {
		if m := dynPlain.FindStringSubmatch(part); m != nil {
			name := m[1]
			fmt.Fprintf(&pattern, "(?P<%s>%s)", name, goodSegment)
			fmt.Fprintf(&formatter, "{%s}", name)
			continue
		}

		if m := dynWithPattern.FindStringSubmatch(part); m != nil {
			name, re := m[1], m[2]
			fmt.Fprintf(&pattern, "(?P<%s>%s)", name, re)
			fmt.Fprintf(&formatter, "{%s}", name)
			continue
		}

		if strings.ContainsAny(part, "{}") {
			return nil, rerrors.Callback(op, rerrors.KindTemplate, "", "",
				fmt.Errorf("invalid path %q[%q]", template, part))
		}

		literal := requotePath(part)
		formatter.WriteString(literal)
		pattern.WriteString(regexp.QuoteMeta(literal))
	}

	compiled, err := regexp.Compile("^" + pattern.String() + "$")
	if err != nil {
		return nil, rerrors.Callback(op, rerrors.KindTemplate, "", "",
			fmt.Errorf("bad pattern %q: %w", pattern.String(), err))
	}

	return &Matcher{
		template:  template,
		pattern:   compiled,
		formatter: formatter.String(),
	}, nil
}

// Match matches path against the compiled template. It returns the mapping
// of capture names to percent-decoded values if the full path matches
// end-to-end, or ok=false on a miss (including any partial match).
func (m *Matcher) Match(path string) (captured map[string]string, ok bool) {
	match := m.pattern.FindStringSubmatch(path)
	if match == nil {
		return nil, false
	}

	names := m.pattern.SubexpNames()
	captured = make(map[string]string, len(names))
	for i, name := range names {
		if i == 0 || name == "" {
			continue
		}
		decoded, err := url.PathUnescape(match[i])
		if err != nil {
			decoded = match[i]
		}
		captured[name] = decoded
	}
	return captured, true
}

// splitRouteTokens splits template into alternating literal/dynamic parts,
// mirroring Python's re.split(ROUTE_RE, path) which keeps the matched
// groups in the result.
func splitRouteTokens(template string) []string {
	locs := routeToken.FindAllStringIndex(template, -1)
	if locs == nil {
		return []string{template}
	}

	var parts []string
	prev := 0
	for _, loc := range locs {
		if loc[0] > prev {
			parts = append(parts, template[prev:loc[0]])
		}
		parts = append(parts, template[loc[0]:loc[1]])
		prev = loc[1]
	}
	if prev < len(template) {
		parts = append(parts, template[prev:])
	}
	return parts
}

// requotePath percent-encodes a literal path segment so it matches an
// already percent-encoded request path, preserving any '%' sequences the
// literal already contains (mirrors requote_path in dynamic_resource.py).
func requotePath(literal string) string {
	u := &url.URL{Path: literal}
	encoded := u.EscapedPath()
	if strings.Contains(literal, "%") {
		encoded = strings.ReplaceAll(encoded, "%25", "%")
	}
	return encoded
}
