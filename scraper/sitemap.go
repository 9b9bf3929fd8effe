package scraper

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/giygas/prescription-analyzer/logging"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrNoLink means the sitemap has no page for the medicine
var ErrNoLink = errors.New("no link found for medicine")

// Slug turns a medicine name into the form used in generics page URLs:
// lower case, accents removed, spaces replaced by dashes.
func Slug(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, name)
	if err != nil {
		stripped = name
	}
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(stripped)), " ", "-")
}

func linkPattern(name string) *regexp.Regexp {
	return regexp.MustCompile("/generics/" + regexp.QuoteMeta(Slug(name)) + `-\d+$`)
}

// FindLink fetches the sitemap and returns the first URL of the
// medicine's generics page.
func (s *Scraper) FindLink(ctx context.Context, name, sitemapURL string) (string, error) {
	resp, err := s.sitemap.R().SetContext(ctx).Get(sitemapURL)
	if err != nil {
		return "", fmt.Errorf("failed to fetch sitemap: %w", err)
	}
	if resp.IsError() {
		logging.Warn("Sitemap request failed", "url", sitemapURL, "status", resp.StatusCode())
		return "", ErrNoLink
	}

	link, err := matchLink(resp.Body(), linkPattern(name))
	if err != nil {
		return "", fmt.Errorf("failed to parse sitemap: %w", err)
	}
	if link == "" {
		return "", ErrNoLink
	}
	return link, nil
}

// matchLink scans every text node of the sitemap document
func matchLink(body []byte, pattern *regexp.Regexp) (string, error) {
	var r io.Reader = bytes.NewReader(body)
	if !utf8.Valid(body) && !bytes.Contains(body[:min(len(body), 100)], []byte("encoding=")) {
		// Undeclared legacy encoding
		r = charmap.Windows1252.NewDecoder().Reader(r)
	}

	dec := xml.NewDecoder(r)
	dec.CharsetReader = func(label string, input io.Reader) (io.Reader, error) {
		enc, err := ianaindex.IANA.Encoding(label)
		if err != nil {
			return nil, err
		}
		if enc == nil {
			return nil, fmt.Errorf("unsupported charset %q", label)
		}
		return enc.NewDecoder().Reader(input), nil
	}

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return "", nil
		}
		if err != nil {
			return "", err
		}
		if text, ok := tok.(xml.CharData); ok {
			candidate := strings.TrimSpace(string(text))
			if candidate != "" && pattern.MatchString(candidate) {
				return candidate, nil
			}
		}
	}
}
