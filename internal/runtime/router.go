package runtime

import (
	"fmt"
	"regexp"
	"strings"

	errspkg "github.com/drblury/reqflow/internal/runtime/errors"
)

// Route describes one registered method+pattern pair.
type Route struct {
	Method      string
	Pattern     string
	HandlerName string
	Parametric  bool

	matcher *regexp.Regexp
	params  []string
}

// Router resolves a method and path to a handler name. Registration happens
// during setup only; afterwards the tables are read-only, so Match needs no
// locking.
type Router struct {
	exact      map[string]Route
	parametric []Route
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{exact: make(map[string]Route)}
}

var paramSegment = regexp.MustCompile(`^:([A-Za-z_][A-Za-z0-9_]*)$`)

// Register adds a route. Patterns may contain ":name" segments matching one
// path component each. Exact patterns resolve O(1); parametric patterns are
// compiled once here and matched in registration order.
func (r *Router) Register(method, pattern, handlerName string) error {
	if method == "" {
		return errspkg.ErrMethodRequired
	}
	if pattern == "" || !strings.HasPrefix(pattern, "/") {
		return errspkg.ErrPatternRequired
	}
	if handlerName == "" {
		return errspkg.ErrHandlerNameRequired
	}

	method = strings.ToUpper(method)
	route := Route{Method: method, Pattern: pattern, HandlerName: handlerName}

	if !strings.Contains(pattern, ":") {
		r.exact[exactKey(method, pattern)] = route
		return nil
	}

	matcher, params, err := compilePattern(pattern)
	if err != nil {
		return err
	}
	route.Parametric = true
	route.matcher = matcher
	route.params = params
	r.parametric = append(r.parametric, route)
	return nil
}

// Match resolves a request. Exact routes win unconditionally over parametric
// ones; among parametric routes the first registered match wins.
func (r *Router) Match(method, path string) (RouteMatch, bool) {
	method = strings.ToUpper(method)

	if route, ok := r.exact[exactKey(method, path)]; ok {
		return RouteMatch{HandlerName: route.HandlerName}, true
	}

	for _, route := range r.parametric {
		if route.Method != method {
			continue
		}
		m := route.matcher.FindStringSubmatch(path)
		if m == nil {
			continue
		}
		params := make(map[string]string, len(route.params))
		for i, name := range route.params {
			params[name] = m[i+1]
		}
		return RouteMatch{HandlerName: route.HandlerName, Params: params}, true
	}

	return RouteMatch{}, false
}

// Routes returns every registered route, exact first. For diagnostics.
func (r *Router) Routes() []Route {
	out := make([]Route, 0, len(r.exact)+len(r.parametric))
	for _, route := range r.exact {
		out = append(out, route)
	}
	out = append(out, r.parametric...)
	return out
}

func exactKey(method, path string) string {
	return method + ":" + path
}

// compilePattern turns "/badge/:name/:style" into an anchored regexp with one
// capture group per ":name" segment.
func compilePattern(pattern string) (*regexp.Regexp, []string, error) {
	segments := strings.Split(pattern, "/")
	var (
		parts  = make([]string, 0, len(segments))
		params []string
	)
	for _, seg := range segments {
		if m := paramSegment.FindStringSubmatch(seg); m != nil {
			params = append(params, m[1])
			parts = append(parts, "([^/]+)")
			continue
		}
		if strings.Contains(seg, ":") {
			return nil, nil, fmt.Errorf("reqflow: malformed parameter segment %q in pattern %q", seg, pattern)
		}
		parts = append(parts, regexp.QuoteMeta(seg))
	}
	matcher, err := regexp.Compile("^" + strings.Join(parts, "/") + "$")
	if err != nil {
		return nil, nil, fmt.Errorf("reqflow: compiling pattern %q: %w", pattern, err)
	}
	return matcher, params, nil
}
