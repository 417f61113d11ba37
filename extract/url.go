package extract

import (
	"net/url"
	"strings"
)

// redirectPrefix is the path the search page wraps outbound links in.
const redirectPrefix = "/url?q="

// NormalizeBuyURL turns a raw listing href into an absolute merchant URL.
//
// Redirect-wrapped links ("/url?q=<target>&sa=..."), either relative or on
// the search origin, are unwrapped: the prefix is stripped, the remainder is
// cut at the first '&' and percent-decoded. Other relative links are resolved
// against origin. Absolute links are returned unchanged.
func NormalizeBuyURL(raw string, origin *url.URL) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	if target, ok := unwrapRedirect(raw, origin); ok {
		raw = target
	}

	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.IsAbs() || origin == nil {
		return raw
	}
	return origin.ResolveReference(u).String()
}

func unwrapRedirect(raw string, origin *url.URL) (string, bool) {
	rest, ok := strings.CutPrefix(raw, redirectPrefix)
	if !ok && origin != nil {
		rest, ok = strings.CutPrefix(raw, origin.Scheme+"://"+origin.Host+redirectPrefix)
	}
	if !ok {
		return "", false
	}

	if i := strings.IndexByte(rest, '&'); i >= 0 {
		rest = rest[:i]
	}
	// PathUnescape leaves '+' alone; the target's own query may use it.
	decoded, err := url.PathUnescape(rest)
	if err != nil {
		return rest, true
	}
	return decoded, true
}
