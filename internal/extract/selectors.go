package extract

// Selectors is the process-wide CSS-selector configuration the Extractor
// queries documents with. It is built once at process startup via
// NewDefaultSelectors and threaded by reference into the worker loop,
// rather than left as scattered string literals or package-level globals
// recreated per call.
type Selectors struct {
	Title           string
	MetaDescription string
	IconLink        string
	ManifestLink    string
	Paragraphs      string
	Headings        string
	MetaKeywords    string
	Images          string
	MetaRefresh     string
	LinkBearing     string
}

// linkBearingAttrs is the attribute set the Extractor collects outbound
// URLs from, in the order spec'd: each yields exactly the attribute's
// value for every element carrying it.
var linkBearingAttrs = []string{
	"href", "codebase", "cite", "background", "action", "longdesc",
	"src", "profile", "usemap", "classid", "data", "formaction",
	"icon", "manifest", "poster",
}

// NewDefaultSelectors builds the selector set used by a production
// Extractor. It never fails; it exists as a constructor (rather than a
// package-level var) so callers have an explicit init point to hang
// future configurability off of.
func NewDefaultSelectors() *Selectors {
	attrSel := make([]string, 0, len(linkBearingAttrs)+2)
	for _, a := range linkBearingAttrs {
		attrSel = append(attrSel, "["+a+"]")
	}
	// srcset and archive get bespoke splitting (see links.go) rather than
	// whole-value collection, but elements that carry only one of them
	// still need to be visited by collectLinkedURLs.
	attrSel = append(attrSel, "[srcset]", "[archive]")

	return &Selectors{
		Title:           "title",
		MetaDescription: `meta[name="description"]`,
		IconLink:        `link[rel="icon"]`,
		ManifestLink:    `link[rel="manifest"]`,
		Paragraphs:      "p",
		Headings:        "h1, h2, h3, h4, h5, h6",
		MetaKeywords:    `meta[name="keywords"]`,
		Images:          "img[src]",
		MetaRefresh:     `meta[http-equiv="refresh"], meta[http-equiv="Refresh"]`,
		LinkBearing:     joinSelectors(attrSel),
	}
}

func joinSelectors(sels []string) string {
	out := ""
	for i, s := range sels {
		if i > 0 {
			out += ", "
		}
		out += s
	}
	return out
}
