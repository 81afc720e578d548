// Package normalize resolves raw link references against a base URL the
// way the Extractor and worker loop need: relative-to-absolute resolution
// plus fragment stripping, nothing else.
package normalize

import "net/url"

// URL resolves raw as a reference against base, clears the fragment, and
// returns the resulting absolute URL string.
//
// Scheme filtering is deliberately not performed here: non-http(s)
// schemes (mailto:, javascript:, ftp:, ...) are allowed to propagate to
// the frontier. The only failure mode is a raw string net/url cannot
// parse at all.
func URL(raw string, base *url.URL) (string, error) {
	ref, err := url.Parse(raw)
	if err != nil {
		return "", err
	}

	resolved := base.ResolveReference(ref)
	resolved.Fragment = ""

	return resolved.String(), nil
}
