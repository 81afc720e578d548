package extract

import "strings"

// collectLinkBearingValues returns, for an element carrying one or more
// of the registered link-bearing attributes, the raw (un-normalized)
// value of each attribute present, in registry order.
func collectLinkBearingValues(attr func(name string) (string, bool)) []string {
	out := make([]string, 0, 1)
	for _, name := range linkBearingAttrs {
		if v, ok := attr(name); ok {
			out = append(out, v)
		}
	}
	return out
}

// splitSrcset extracts raw URL candidates from a srcset attribute value.
//
// Per spec.md §4.1 this preserves a known source bug: for each
// comma-separated item, the token taken is the *second* whitespace-
// separated field (the size/density descriptor, e.g. "2x"), not the
// first (the actual URL). An item with no descriptor therefore
// contributes nothing.
func splitSrcset(srcset string) []string {
	items := strings.Split(srcset, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		fields := strings.Fields(strings.TrimSpace(item))
		if len(fields) < 2 {
			continue
		}
		out = append(out, fields[1])
	}
	return out
}

// splitArchive extracts URL candidates from an archive attribute value,
// which is whitespace- and comma-delimited.
func splitArchive(archive string) []string {
	fields := strings.FieldsFunc(archive, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// metaRefreshURL extracts the redirect target from a
// `<meta http-equiv="refresh" content="N; URL=...">` content value.
// It returns ("", false) if the content has no second ;-segment.
func metaRefreshURL(content string) (string, bool) {
	parts := strings.SplitN(content, ";", 2)
	if len(parts) < 2 {
		return "", false
	}

	target := strings.TrimSpace(parts[1])
	if stripped, ok := stripURLPrefix(target); ok {
		target = stripped
	}
	if target == "" {
		return "", false
	}
	return target, true
}

func stripURLPrefix(s string) (string, bool) {
	if len(s) >= 4 && strings.EqualFold(s[:4], "url=") {
		return strings.TrimSpace(s[4:]), true
	}
	return s, false
}
