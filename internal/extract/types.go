package extract

import "context"

// Kind classifies a fetched response by its content type, per the
// first-match-wins rule in spec.md §4.1.
type Kind string

const (
	KindHTML     Kind = "html"
	KindImage    Kind = "image"
	KindVideo    Kind = "video"
	KindAudio    Kind = "audio"
	KindManifest Kind = "manifest"
	KindOpaque   Kind = "opaque"
)

// Size is pixel dimensions, populated opportunistically (failure to fetch
// or decode leaves it nil without failing the overall extraction).
type Size struct {
	Width  int
	Height int
}

// Duration mirrors the wire shape {s, ns} for media length.
type Duration struct {
	Seconds     int64
	Nanoseconds int32
}

// ImageRef is one entry of an HTMLBody's Images list.
type ImageRef struct {
	ImageURL string
	AltText  *string
	Size     *Size
}

// ManifestBody is the decoded contents of a web app manifest.
type ManifestBody struct {
	Name        *string
	ShortName   *string
	Description *string
	Categories  []string
}

// HTMLBody is the structured output of the HTML branch.
type HTMLBody struct {
	Title       *string
	Description *string
	IconURL     *string
	TextFields  []string
	Sections    []string
	Keywords    []string
	Manifest    *ManifestBody
	Images      []ImageRef
}

// ImageBody is the metadata-only output of the Image branch.
type ImageBody struct {
	Size *Size
}

// VideoBody is the metadata-only output of the Video branch.
type VideoBody struct {
	Size   *Size
	Length *Duration
}

// AudioBody is the metadata-only output of the Audio branch.
type AudioBody struct {
	Length *Duration
}

// Result is the typed CrawlResult the worker returns to the coordinator.
type Result struct {
	Kind       Kind
	StatusCode int
	MimeType   string
	LinkedURLs []string

	HTML     *HTMLBody
	Image    *ImageBody
	Video    *VideoBody
	Audio    *AudioBody
	Manifest *ManifestBody
}

// Fetcher performs the blocking sub-fetches the HTML branch needs for
// manifest and per-image metadata. Both are suspension points per
// spec.md §5 — implementations must honor ctx cancellation.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (body []byte, contentType string, statusCode int, err error)
}
