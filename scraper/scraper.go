// Package scraper reads medicine information and prices from Indian
// pharmacy websites through Firecrawl, structuring the pages with an LLM.
package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/giygas/prescription-analyzer/entities"
	"github.com/giygas/prescription-analyzer/interfaces"
	"github.com/giygas/prescription-analyzer/llm"
	"github.com/giygas/prescription-analyzer/logging"
	"github.com/go-resty/resty/v2"
	gocache "github.com/patrickmn/go-cache"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// PageFetcher renders a URL. *Firecrawl is the production implementation.
type PageFetcher interface {
	Scrape(ctx context.Context, url string) (*Page, error)
}

// Config wires a Scraper
type Config struct {
	Pages      PageFetcher
	Client     interfaces.ChatClient
	InfoModel  string // Structures generics pages
	PriceModel string // Reads search result listings
	SitemapURL string // Default sitemap for MedicineInfo
	PriceTTL   time.Duration
	Timeout    time.Duration // Sitemap download
}

// Scraper implements interfaces.MedicineScraper
type Scraper struct {
	pages      PageFetcher
	client     interfaces.ChatClient
	sitemap    *resty.Client
	infoModel  string
	priceModel string
	sitemapURL string
	prices     *gocache.Cache
	pharmacies []pharmacy
}

var _ interfaces.MedicineScraper = (*Scraper)(nil)

// New builds a Scraper
func New(cfg Config) *Scraper {
	if cfg.PriceTTL == 0 {
		cfg.PriceTTL = time.Hour
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Scraper{
		pages:      cfg.Pages,
		client:     cfg.Client,
		sitemap:    resty.New().SetTimeout(cfg.Timeout),
		infoModel:  cfg.InfoModel,
		priceModel: cfg.PriceModel,
		sitemapURL: cfg.SitemapURL,
		prices:     gocache.New(cfg.PriceTTL, 2*cfg.PriceTTL),
		pharmacies: defaultPharmacies,
	}
}

const infoPrompt = `Extract structured information about %s from the following content.
Focus on:
1. Uses
2. How it works
3. Common side effects
4. Content details (with each author and their image link, ("name": "image_link"))
5. Expert advice
6. FAQs

You MUST return ONLY valid JSON with NO additional text, with these exact keys:
- medicine_name
- uses (list of strings)
- how_it_works (string)
- common_side_effects (list of strings)
- content_details (object with string keys and string values)
- expert_advice (list of strings)
- faqs (list of objects with 'question' and 'answer' keys)

Make sure your response is parseable as JSON. Do not include any markdown formatting, explanations, or code blocks.

Content:
%s`

var infoSchema = jsonschema.MustCompileString("medicine_info.json", `{
	"type": "object",
	"required": ["medicine_name", "uses", "how_it_works", "common_side_effects", "content_details", "expert_advice", "faqs"],
	"properties": {
		"medicine_name": {"type": "string"},
		"uses": {"type": "array", "items": {"type": "string"}},
		"how_it_works": {"type": "string"},
		"common_side_effects": {"type": "array", "items": {"type": "string"}},
		"content_details": {"type": "object", "additionalProperties": {"type": "string"}},
		"expert_advice": {"type": "array", "items": {"type": "string"}},
		"faqs": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["question", "answer"],
				"properties": {
					"question": {"type": "string"},
					"answer": {"type": "string"}
				}
			}
		}
	}
}`)

const unavailable = "Information unavailable"

// DefaultInfo is returned when the model's answer cannot be used at all
func DefaultInfo(name string) *entities.MedicineInfo {
	return &entities.MedicineInfo{
		MedicineName:      name,
		Uses:              []string{unavailable},
		HowItWorks:        "Information about how this medicine works could not be retrieved.",
		CommonSideEffects: []string{unavailable},
		ContentDetails:    map[string]string{"note": "Content details could not be retrieved"},
		ExpertAdvice:      []string{unavailable},
		FAQs: []entities.FAQ{{
			Question: "Why is information missing?",
			Answer:   "There was an error processing the medicine information.",
		}},
	}
}

// MedicineInfo finds the medicine's generics page in the sitemap, scrapes
// it and structures it. An empty sitemapURL uses the configured default.
func (s *Scraper) MedicineInfo(ctx context.Context, name, sitemapURL string) (*entities.MedicineInfo, error) {
	if sitemapURL == "" {
		sitemapURL = s.sitemapURL
	}

	link, err := s.FindLink(ctx, name, sitemapURL)
	if err != nil {
		return nil, err
	}
	logging.Info("Found medicine page", "medicine", name, "url", link)

	page, err := s.pages.Scrape(ctx, link)
	if err != nil {
		return nil, err
	}

	reply, err := s.client.Complete(ctx, interfaces.ChatRequest{
		Model:       s.infoModel,
		Prompt:      fmt.Sprintf(infoPrompt, name, page.Markdown),
		Temperature: 0.1,
	})
	if err != nil {
		logging.Error("Medicine info extraction failed", "medicine", name, "error", err)
		return DefaultInfo(name), nil
	}
	return ParseInfo(reply, name), nil
}

// ParseInfo converts a model reply into MedicineInfo. Unparseable replies
// give DefaultInfo; replies with missing or mistyped keys keep what is
// usable and leave the rest empty.
func ParseInfo(reply, name string) *entities.MedicineInfo {
	cleaned := llm.StripCodeFences(reply)

	var doc any
	if err := json.Unmarshal([]byte(cleaned), &doc); err != nil {
		logging.Warn("Medicine info reply is not JSON", "medicine", name, "error", err)
		return DefaultInfo(name)
	}

	if err := infoSchema.Validate(doc); err == nil {
		var info entities.MedicineInfo
		if err := json.Unmarshal([]byte(cleaned), &info); err == nil {
			return &info
		}
	} else {
		logging.Warn("Medicine info reply incomplete", "medicine", name, "error", err)
	}

	obj, ok := doc.(map[string]any)
	if !ok {
		return DefaultInfo(name)
	}
	return partialInfo(obj, name)
}

func partialInfo(obj map[string]any, name string) *entities.MedicineInfo {
	info := &entities.MedicineInfo{
		MedicineName:      name,
		Uses:              stringList(obj["uses"]),
		CommonSideEffects: stringList(obj["common_side_effects"]),
		ContentDetails:    map[string]string{},
		ExpertAdvice:      stringList(obj["expert_advice"]),
		FAQs:              []entities.FAQ{},
	}
	if v, ok := obj["medicine_name"].(string); ok && v != "" {
		info.MedicineName = v
	}
	if v, ok := obj["how_it_works"].(string); ok {
		info.HowItWorks = v
	}
	if details, ok := obj["content_details"].(map[string]any); ok {
		for k, v := range details {
			info.ContentDetails[k] = scalarString(v)
		}
	}
	if faqs, ok := obj["faqs"].([]any); ok {
		for _, f := range faqs {
			m, ok := f.(map[string]any)
			if !ok {
				continue
			}
			info.FAQs = append(info.FAQs, entities.FAQ{
				Question: scalarString(m["question"]),
				Answer:   scalarString(m["answer"]),
			})
		}
	}
	return info
}

func stringList(v any) []string {
	out := []string{}
	items, ok := v.([]any)
	if !ok {
		return out
	}
	for _, item := range items {
		if s := scalarString(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}
