package utils

import (
	"fmt"
	"net/url"
	"strings"
)

func ShortenString(s string, l int) string {
	if len(s) > l && l != 0 {
		return fmt.Sprintf("%s...", s[:l])
	}
	return s
}

// URLPath returns the path component of rawURL without host and query.
// An empty path is reported as "/". Unparsable input is returned with
// everything from the first '?' or '#' stripped.
func URLPath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		p := rawURL
		if i := strings.IndexAny(p, "?#"); i >= 0 {
			p = p[:i]
		}
		if p == "" {
			return "/"
		}
		return p
	}
	if u.Path == "" {
		return "/"
	}
	return u.Path
}

// JoinURL resolves p against base. If p is already absolute it is returned as is.
func JoinURL(base, p string) (string, error) {
	ref, err := url.Parse(p)
	if err != nil {
		return "", err
	}
	if ref.IsAbs() {
		return p, nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(ref).String(), nil
}
