// Package extract implements the Extractor component of spec.md §4.1: it
// turns fetched bytes plus their Content-Type into a typed Result (an
// HTML document, raw media metadata, or an opaque marker) and the set of
// outbound URLs discovered along the way.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/siftcrawl/siftcrawl/internal/normalize"
)

// Extractor holds the process-wide selector configuration and the
// Fetcher used for manifest and per-image sub-fetches.
type Extractor struct {
	selectors *Selectors
	fetcher   Fetcher
}

// New builds an Extractor. selectors may be nil to use
// NewDefaultSelectors(); fetcher may be nil, in which case manifest and
// image-size fetches are skipped (those fields stay nil, same as a
// failed fetch).
func New(selectors *Selectors, fetcher Fetcher) *Extractor {
	if selectors == nil {
		selectors = NewDefaultSelectors()
	}
	return &Extractor{selectors: selectors, fetcher: fetcher}
}

// Extract classifies and parses a fetched response. base is the resolved
// request URL, used to make relative references absolute.
//
// HTML parse failures are fatal (non-nil error, nil Result). Per-image
// and manifest fetch/decode failures are not: they simply leave the
// corresponding field nil.
func (e *Extractor) Extract(ctx context.Context, body []byte, contentType string, statusCode int, base *url.URL) (*Result, error) {
	kind := Classify(contentType)

	res := &Result{
		Kind:       kind,
		StatusCode: statusCode,
		MimeType:   contentType,
	}

	switch kind {
	case KindHTML:
		htmlBody, linked, err := e.extractHTML(ctx, body, base)
		if err != nil {
			return nil, fmt.Errorf("extract html: %w", err)
		}
		res.HTML = htmlBody
		res.LinkedURLs = linked
	case KindImage:
		size, _ := decodeImageSize(body)
		res.Image = &ImageBody{Size: size}
	case KindVideo:
		res.Video = &VideoBody{}
	case KindAudio:
		res.Audio = &AudioBody{}
	case KindManifest:
		m, err := decodeManifest(body)
		if err != nil {
			return nil, fmt.Errorf("extract manifest: %w", err)
		}
		res.Manifest = m
	case KindOpaque:
		// no body, no links
	}

	return res, nil
}

func (e *Extractor) extractHTML(ctx context.Context, body []byte, base *url.URL) (*HTMLBody, []string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}

	out := &HTMLBody{}

	if title := strings.TrimSpace(doc.Find(e.selectors.Title).First().Text()); title != "" {
		out.Title = &title
	}

	if desc, ok := firstAttr(doc, e.selectors.MetaDescription, "content"); ok {
		desc = strings.TrimSpace(desc)
		if desc != "" {
			out.Description = &desc
		}
	}

	if href, ok := firstAttr(doc, e.selectors.IconLink, "href"); ok {
		if normalized, err := normalize.URL(href, base); err == nil {
			out.IconURL = &normalized
		}
	}

	doc.Find(e.selectors.Paragraphs).Each(func(_ int, sel *goquery.Selection) {
		out.TextFields = append(out.TextFields, strings.TrimSpace(sel.Text()))
	})

	doc.Find(e.selectors.Headings).Each(func(_ int, sel *goquery.Selection) {
		out.Sections = append(out.Sections, strings.TrimSpace(sel.Text()))
	})

	if kw, ok := firstAttr(doc, e.selectors.MetaKeywords, "content"); ok {
		for _, tok := range strings.Split(kw, ",") {
			tok = strings.TrimSpace(tok)
			if tok != "" {
				out.Keywords = append(out.Keywords, tok)
			}
		}
	}

	if manifestHref, ok := firstAttr(doc, e.selectors.ManifestLink, "href"); ok {
		if normalized, err := normalize.URL(manifestHref, base); err == nil {
			out.Manifest = e.fetchManifest(ctx, normalized)
		}
	}

	doc.Find(e.selectors.Images).Each(func(_ int, sel *goquery.Selection) {
		src, ok := sel.Attr("src")
		if !ok {
			return
		}
		normalized, err := normalize.URL(src, base)
		if err != nil {
			return
		}

		ref := ImageRef{ImageURL: normalized}
		if alt, ok := sel.Attr("alt"); ok {
			alt := alt
			ref.AltText = &alt
		}
		ref.Size = e.fetchImageSize(ctx, normalized)

		out.Images = append(out.Images, ref)
	})

	linked := e.collectLinkedURLs(doc, base)

	return out, linked, nil
}

func (e *Extractor) collectLinkedURLs(doc *goquery.Document, base *url.URL) []string {
	seen := make(map[string]struct{})
	var linked []string

	add := func(raw string) {
		normalized, err := normalize.URL(raw, base)
		if err != nil {
			return
		}
		if _, ok := seen[normalized]; ok {
			return
		}
		seen[normalized] = struct{}{}
		linked = append(linked, normalized)
	}

	doc.Find(e.selectors.LinkBearing).Each(func(_ int, sel *goquery.Selection) {
		for _, raw := range collectLinkBearingValues(sel.Attr) {
			add(raw)
		}
		if srcset, ok := sel.Attr("srcset"); ok {
			for _, raw := range splitSrcset(srcset) {
				add(raw)
			}
		}
		if archive, ok := sel.Attr("archive"); ok {
			for _, raw := range splitArchive(archive) {
				add(raw)
			}
		}
	})

	doc.Find(e.selectors.MetaRefresh).Each(func(_ int, sel *goquery.Selection) {
		content, ok := sel.Attr("content")
		if !ok {
			return
		}
		if target, ok := metaRefreshURL(content); ok {
			add(target)
		}
	})

	return linked
}

func (e *Extractor) fetchManifest(ctx context.Context, url string) *ManifestBody {
	if e.fetcher == nil {
		return nil
	}
	body, _, status, err := e.fetcher.Fetch(ctx, url)
	if err != nil || status < 200 || status >= 300 {
		return nil
	}
	m, err := decodeManifest(body)
	if err != nil {
		return nil
	}
	return m
}

func (e *Extractor) fetchImageSize(ctx context.Context, url string) *Size {
	if e.fetcher == nil {
		return nil
	}
	body, _, status, err := e.fetcher.Fetch(ctx, url)
	if err != nil || status < 200 || status >= 300 {
		return nil
	}
	size, err := decodeImageSize(body)
	if err != nil {
		return nil
	}
	return size
}

func decodeManifest(body []byte) (*ManifestBody, error) {
	var raw struct {
		Name        *string  `json:"name"`
		ShortName   *string  `json:"short_name"`
		Description *string  `json:"description"`
		Categories  []string `json:"categories"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	return &ManifestBody{
		Name:        raw.Name,
		ShortName:   raw.ShortName,
		Description: raw.Description,
		Categories:  raw.Categories,
	}, nil
}

func firstAttr(doc *goquery.Document, selector, attr string) (string, bool) {
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return "", false
	}
	return sel.Attr(attr)
}
