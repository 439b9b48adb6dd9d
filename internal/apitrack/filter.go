package apitrack

import (
	"net/url"
	"strings"
)

// DefaultDenylist holds analytics and telemetry domains whose traffic is
// never tracked. Subdomains match as well.
var DefaultDenylist = []string{
	"google-analytics.com",
	"googletagmanager.com",
	"doubleclick.net",
	"googleadservices.com",
	"facebook.net",
	"segment.io",
	"segment.com",
	"mixpanel.com",
	"amplitude.com",
	"hotjar.com",
	"hotjar.io",
	"fullstory.com",
	"clarity.ms",
	"sentry.io",
	"newrelic.com",
	"nr-data.net",
	"datadoghq.com",
	"browser-intake-datadoghq.com",
	"intercom.io",
	"heapanalytics.com",
	"plausible.io",
}

var staticResourceTypes = map[string]bool{
	"image":      true,
	"font":       true,
	"stylesheet": true,
	"script":     true,
	"media":      true,
	"manifest":   true,
	"texttrack":  true,
}

// Filter decides which requests are tracked at all.
type Filter struct {
	domains []string
}

func NewFilter(denylist []string) *Filter {
	f := &Filter{}
	for _, d := range denylist {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			f.domains = append(f.domains, strings.TrimPrefix(d, "."))
		}
	}
	return f
}

// Skip returns true and a reason if a request should not be tracked.
func (f *Filter) Skip(rawURL, resourceType string) (bool, string) {
	if staticResourceTypes[strings.ToLower(resourceType)] {
		return true, "static resource " + resourceType
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return true, "malformed url"
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return true, "scheme " + u.Scheme
	}
	host := strings.ToLower(u.Hostname())
	for _, d := range f.domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true, "denylisted domain " + d
		}
	}
	return false, ""
}
