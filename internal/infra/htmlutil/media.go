package htmlutil

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"pulsefeed/internal/domain/entity"
)

// trackingPixelMaxDim is the largest width/height (in either dimension)
// still treated as a tracking pixel rather than real media.
const trackingPixelMaxDim = 2

// knownAdDomains is a small denylist of ad-network hosts commonly
// embedded as img/iframe src inside article bodies.
var knownAdDomains = []string{
	"doubleclick.net",
	"googlesyndication.com",
	"googleadservices.com",
	"adservice.google.com",
	"amazon-adsystem.com",
	"facebook.com/tr",
	"scorecardresearch.com",
}

// HarvestMedia walks sel for img/video/source/document-link elements,
// resolves URLs against base, dedups by URL, and drops tracking pixels
// and known ad-network domains. Order of first appearance is preserved.
func HarvestMedia(sel *goquery.Selection, base string) []entity.MediaFile {
	seen := make(map[string]bool)
	var out []entity.MediaFile

	add := func(rawURL string, mt entity.MediaType, thumbnail string) {
		if rawURL == "" {
			return
		}
		abs := ResolveAbsolute(base, rawURL)
		if seen[abs] {
			return
		}
		if isAdDomain(abs) {
			return
		}
		seen[abs] = true
		out = append(out, entity.MediaFile{URL: abs, Type: mt, Thumbnail: thumbnail})
	}

	sel.Find("img").Each(func(_ int, img *goquery.Selection) {
		if isTrackingPixel(img) {
			return
		}
		src, _ := img.Attr("src")
		if src == "" {
			src, _ = img.Attr("data-src")
		}
		add(src, entity.MediaTypeImage, "")
	})

	sel.Find("video").Each(func(_ int, v *goquery.Selection) {
		src, _ := v.Attr("src")
		poster, _ := v.Attr("poster")
		if src == "" {
			v.Find("source").EachWithBreak(func(_ int, s *goquery.Selection) bool {
				if href, ok := s.Attr("src"); ok {
					src = href
					return false
				}
				return true
			})
		}
		add(src, entity.MediaTypeVideo, poster)
	})

	sel.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if isDocumentLink(href) {
			add(href, entity.MediaTypeDocument, "")
		}
	})

	return out
}

func isTrackingPixel(img *goquery.Selection) bool {
	w, wok := dimAttr(img, "width")
	h, hok := dimAttr(img, "height")
	if wok && hok && w <= trackingPixelMaxDim && h <= trackingPixelMaxDim {
		return true
	}
	return false
}

func dimAttr(sel *goquery.Selection, attr string) (int, bool) {
	v, ok := sel.Attr(attr)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSuffix(v, "px"))
	if err != nil {
		return 0, false
	}
	return n, true
}

func isAdDomain(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, domain := range knownAdDomains {
		if strings.Contains(lower, domain) {
			return true
		}
	}
	return false
}

var documentExtensions = []string{".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx"}

func isDocumentLink(href string) bool {
	lower := strings.ToLower(href)
	for _, ext := range documentExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
