package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/giygas/prescription-analyzer/cache"
	"github.com/giygas/prescription-analyzer/entities"
	"github.com/giygas/prescription-analyzer/interfaces"
	"github.com/giygas/prescription-analyzer/llm"
	"github.com/giygas/prescription-analyzer/logging"
)

type pharmacy struct {
	name      string
	searchURL func(medicine string) string
}

var defaultPharmacies = []pharmacy{
	{
		name: "1mg",
		searchURL: func(medicine string) string {
			return "https://www.1mg.com/search/all?name=" + url.QueryEscape(medicine) + "&filter=true&sort=popularity"
		},
	},
	{
		name: "pharmeasy",
		searchURL: func(medicine string) string {
			return "https://pharmeasy.in/search/all?name=" + url.QueryEscape(medicine) + "&filter=true&categoryId=1"
		},
	},
}

// Content limits for what is sent to the model
const (
	minMarkdownLength = 500
	minMatchedLines   = 5
	maxFilteredLines  = 100
	maxFilteredChars  = 2000
)

var (
	medicineLineRe = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:Tablet|Capsule|Syrup|Injection|Strip)`),
		regexp.MustCompile(`(?i)\d+\s*(?:mg|ml|g)`),
	}
	priceLineRe = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:₹|Rs\.?|MRP|Price).{0,50}\d+\.?\d*`),
		regexp.MustCompile(`\d+\.?\d*\s*/-`),
	}
	productWords = []string{"product", "medicine", "drug", "tablet", "capsule", "strip"}
)

const priceSystemPrompt = "Extract medicine data as JSON array. No explanations."

const pricePrompt = `Extract exactly 3 medicines from this pharmacy website content:

1. medicine_name: Full name with brand
2. price: Numerical value only
3. dosage: Strength (e.g., 500mg)
4. quantity: Package amount (e.g., 10 tablets)

FORMAT: JSON array of objects:
[
  {"medicine_name": "Name", "price": 33.70, "dosage": "650mg", "quantity": "15 tablets"}
]

Return [] if no medicines found.

CONTENT:
%s`

// ComparePrices searches each pharmacy in turn. A failing pharmacy gets an
// error entry; it never hides the others. Complete comparisons are
// memoized for the configured TTL.
func (s *Scraper) ComparePrices(ctx context.Context, name string) entities.PriceComparison {
	key := cache.Normalize(name)
	if cached, ok := s.prices.Get(key); ok {
		logging.Debug("Price comparison served from memo", "medicine", name)
		return cached.(entities.PriceComparison)
	}

	results := make(entities.PriceComparison, len(s.pharmacies))
	failed := false
	for _, p := range s.pharmacies {
		result, err := s.searchPharmacy(ctx, p, name)
		if err != nil {
			logging.Error("Failed to get prices", "pharmacy", p.name, "medicine", name, "error", err)
			results[p.name] = entities.PharmacyResult{Error: fmt.Sprintf("Failed to retrieve data: %v", err)}
			failed = true
			continue
		}
		results[p.name] = result
	}

	if !failed {
		s.prices.SetDefault(key, results)
	}
	return results
}

func (s *Scraper) searchPharmacy(ctx context.Context, p pharmacy, name string) (entities.PharmacyResult, error) {
	source := p.searchURL(name)
	page, err := s.pages.Scrape(ctx, source)
	if err != nil {
		return entities.PharmacyResult{}, err
	}

	content := page.HTML
	if len(page.Markdown) > minMarkdownLength {
		content = page.Markdown
	}

	result := entities.PharmacyResult{SourceURL: source, Medicines: []entities.PharmacyListing{}}
	reply, err := s.client.Complete(ctx, interfaces.ChatRequest{
		Model:       s.priceModel,
		System:      priceSystemPrompt,
		Prompt:      fmt.Sprintf(pricePrompt, FilterContent(content)),
		Temperature: 0.1,
		MaxTokens:   512,
	})
	if err != nil {
		logging.Error("Price extraction failed", "pharmacy", p.name, "error", err)
		return result, nil
	}

	listings, ok := ParseListings(reply)
	if !ok {
		logging.Warn("Malformed price listing reply", "pharmacy", p.name)
		result.RawResponse = reply
		return result, nil
	}
	result.Medicines = listings
	return result, nil
}

// FilterContent keeps the lines of a search page that look like product
// or price information.
func FilterContent(content string) string {
	lines := strings.Split(content, "\n")

	var kept []string
	seen := make(map[int]bool)
	for i, line := range lines {
		if matchesAny(line, medicineLineRe) || matchesAny(line, priceLineRe) {
			kept = append(kept, line)
			seen[i] = true
		}
	}

	if len(kept) < minMatchedLines {
		for i, line := range lines {
			if seen[i] {
				continue
			}
			lower := strings.ToLower(line)
			for _, w := range productWords {
				if strings.Contains(lower, w) {
					kept = append(kept, line)
					break
				}
			}
		}
	}

	if len(kept) > maxFilteredLines {
		kept = kept[:maxFilteredLines]
	}
	result := strings.Join(kept, "\n")
	if len(result) > maxFilteredChars {
		logging.Debug("Trimming pharmacy content", "from", len(result), "to", maxFilteredChars)
		result = truncateUTF8(result, maxFilteredChars)
	}
	return result
}

func matchesAny(line string, patterns []*regexp.Regexp) bool {
	for _, re := range patterns {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// ParseListings reads the model's listing array, repairing the usual
// malformations. ok is false when the reply could not be made into JSON.
func ParseListings(reply string) ([]entities.PharmacyListing, bool) {
	var doc any
	if err := json.Unmarshal([]byte(llm.StripCodeFences(reply)), &doc); err != nil {
		repaired, found := llm.RepairJSONArray(reply)
		if !found {
			return nil, false
		}
		if err := json.Unmarshal([]byte(repaired), &doc); err != nil {
			return nil, false
		}
	}
	return listingsFrom(doc), true
}

func listingsFrom(doc any) []entities.PharmacyListing {
	listings := []entities.PharmacyListing{}
	switch v := doc.(type) {
	case []any:
		for _, item := range v {
			if obj, ok := item.(map[string]any); ok {
				listings = append(listings, listingFrom(obj))
			}
		}
	case map[string]any:
		if nested, ok := v["medicines"]; ok {
			return listingsFrom(nested)
		}
		_, hasName := v["medicine_name"]
		_, hasPrice := v["price"]
		if hasName || hasPrice {
			listings = append(listings, listingFrom(v))
		}
	}
	return listings
}

func listingFrom(obj map[string]any) entities.PharmacyListing {
	return entities.PharmacyListing{
		MedicineName: scalarString(obj["medicine_name"]),
		Price:        scalarString(obj["price"]),
		Dosage:       scalarString(obj["dosage"]),
		Quantity:     scalarString(obj["quantity"]),
	}
}

// scalarString renders JSON scalars as text; prices arrive as numbers
func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
