package extract

import "strings"

// Classify maps a (possibly empty) Content-Type header to a Kind,
// first-match-wins per spec.md §4.1.
func Classify(contentType string) Kind {
	ct := strings.ToLower(strings.TrimSpace(contentType))

	switch {
	case ct == "" || strings.Contains(ct, "html"):
		return KindHTML
	case strings.HasPrefix(ct, "image/"):
		return KindImage
	case strings.HasPrefix(ct, "video/"):
		return KindVideo
	case strings.HasPrefix(ct, "audio/"):
		return KindAudio
	case strings.HasPrefix(ct, "application/manifest+json"):
		return KindManifest
	default:
		return KindOpaque
	}
}
