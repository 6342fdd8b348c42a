package catalog

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// preferredFormats lists content types from most to least desirable.
var preferredFormats = []string{
	"text/plain; charset=utf-8",
	"text/plain",
	"text/plain; charset=us-ascii",
	"text/html",
}

// SelectFormat picks the best download URL from a content-type → URL mapping.
// It returns false when the mapping offers nothing usable.
func SelectFormat(formats map[string]string) (string, bool) {
	if len(formats) == 0 {
		return "", false
	}
	normalized := make(map[string]string, len(formats))
	keys := make([]string, 0, len(formats))
	for k, v := range formats {
		if v == "" {
			continue
		}
		nk := normalizeContentType(k)
		if _, dup := normalized[nk]; !dup {
			normalized[nk] = v
		}
		keys = append(keys, k)
	}
	for _, want := range preferredFormats {
		if u, ok := normalized[want]; ok {
			return u, true
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(k)), "text/") {
			return formats[k], true
		}
	}
	if len(keys) > 0 {
		return formats[keys[0]], true
	}
	return "", false
}

// normalizeContentType lowercases a content type and rewrites its parameters
// to the canonical "type; charset=x" form. "text/plain;utf-8" is treated as
// "text/plain; charset=utf-8".
func normalizeContentType(raw string) string {
	parts := strings.Split(strings.ToLower(raw), ";")
	base := strings.TrimSpace(parts[0])
	if len(parts) == 1 {
		return base
	}
	param := strings.TrimSpace(parts[1])
	if param == "" {
		return base
	}
	if !strings.Contains(param, "=") {
		param = "charset=" + param
	}
	return base + "; " + param
}

// NormalizeURL resolves protocol-relative URLs to https and, when
// forceHTTPS is set, upgrades plain http URLs as well.
func NormalizeURL(raw string, forceHTTPS bool) (string, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(raw, "//"):
		raw = "https:" + raw
	case forceHTTPS && strings.HasPrefix(raw, "http:"):
		raw = "https:" + strings.TrimPrefix(raw, "http:")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q is not absolute", raw)
	}
	return u.String(), nil
}
