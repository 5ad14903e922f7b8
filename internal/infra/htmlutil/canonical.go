// Package htmlutil holds pure functions over parsed DOM and URL strings,
// shared by C3's extractor and C6's source adapters.
package htmlutil

import (
	"net/url"
	"sort"
	"strings"
)

// Canonicalize lowercases the host, strips the fragment, and sorts
// query keys. The result is used only as a hashing/dedup key, never
// dereferenced as a fetchable URL.
func Canonicalize(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	if u.RawQuery != "" {
		q := u.Query()
		keys := make([]string, 0, len(q))
		for k := range q {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		for i, k := range keys {
			if i > 0 {
				b.WriteByte('&')
			}
			for j, v := range q[k] {
				if j > 0 {
					b.WriteByte('&')
				}
				b.WriteString(url.QueryEscape(k))
				b.WriteByte('=')
				b.WriteString(url.QueryEscape(v))
			}
		}
		u.RawQuery = b.String()
	}

	return u.String(), nil
}

// ResolveAbsolute resolves href against base, returning href unchanged
// if it is already absolute or base fails to parse.
func ResolveAbsolute(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return href
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return href
	}
	refURL, err := url.Parse(href)
	if err != nil {
		return href
	}
	return baseURL.ResolveReference(refURL).String()
}
