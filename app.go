package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/giygas/prescription-analyzer/analyzer"
	"github.com/giygas/prescription-analyzer/cache"
	"github.com/giygas/prescription-analyzer/config"
	"github.com/giygas/prescription-analyzer/extraction"
	"github.com/giygas/prescription-analyzer/generics"
	"github.com/giygas/prescription-analyzer/interfaces"
	"github.com/giygas/prescription-analyzer/llm"
	"github.com/giygas/prescription-analyzer/logging"
	"github.com/giygas/prescription-analyzer/ocr"
	"github.com/giygas/prescription-analyzer/ocr/tesseract"
	"github.com/giygas/prescription-analyzer/preprocessing"
	"github.com/giygas/prescription-analyzer/rxnorm"
	"github.com/giygas/prescription-analyzer/scraper"
)

// app holds the wired pipeline shared by the serve and analyze commands
type app struct {
	cfg       *config.Config
	providers []interfaces.OCRProvider
	analyzer  *analyzer.Analyzer
	cache     *cache.Cache
	resolver  *generics.Resolver
	scraper   *scraper.Scraper

	tesseract *tesseract.Engine
}

func newApp(cfg *config.Config) *app {
	for _, key := range cfg.MissingProviderKeys() {
		logging.Warn("Provider credential not set, calls to it will fail", "env", key)
	}

	newClient := func(name, key, baseURL string) *llm.Client {
		return llm.New(llm.Config{
			Name:      name,
			APIKey:    key,
			BaseURL:   baseURL,
			RateLimit: cfg.LLMRateLimit,
			Timeout:   cfg.RequestTimeout,
		})
	}
	groq := newClient("groq", cfg.GroqAPIKey, cfg.GroqBaseURL)
	together := newClient("together", cfg.TogetherAPIKey, cfg.TogetherBaseURL)
	openai := newClient("openai", cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)

	a := &app{cfg: cfg}

	a.providers = []interfaces.OCRProvider{
		ocr.NewLlamaProvider(together, cfg.LlamaModel),
		ocr.NewGPT4Provider(openai, cfg.VisionModel),
	}
	engine, err := tesseract.New(cfg.TesseractLanguage)
	if err != nil {
		logging.Warn("Tesseract unavailable, local OCR disabled", "error", err)
	} else {
		a.tesseract = engine
		a.providers = append(a.providers, engine)
	}

	dispatcher := ocr.NewDispatcher(cfg.OCRMethod, cfg.FallbackEnabled, ocr.NewMemo(cfg.OCRMemoTTL), a.providers...)
	a.analyzer = analyzer.New(
		preprocessing.New(preprocessing.DefaultFilters()...),
		dispatcher,
		extraction.New(groq, cfg.ExtractionModel),
	)

	a.cache = cache.Load(cfg.CacheFile)
	a.resolver = generics.NewResolver(
		a.cache,
		rxnorm.New(rxnorm.Config{BaseURL: cfg.RxNormBaseURL, Timeout: cfg.RequestTimeout}),
		groq,
		cfg.AlternativesModel,
	)

	a.scraper = scraper.New(scraper.Config{
		Pages:      scraper.NewFirecrawl(cfg.FirecrawlBaseURL, cfg.FirecrawlAPIKey, cfg.RequestTimeout),
		Client:     groq,
		InfoModel:  cfg.ScraperModel,
		PriceModel: cfg.ExtractionModel,
		SitemapURL: cfg.SitemapURL,
		PriceTTL:   cfg.PriceCacheTTL,
		Timeout:    cfg.RequestTimeout,
	})

	return a
}

// Close persists pending cache entries and releases the Tesseract handle
func (a *app) Close() error {
	var errs []error
	if a.cache.Dirty() {
		if err := a.cache.Flush(); err != nil {
			errs = append(errs, fmt.Errorf("failed to flush generics cache: %w", err))
		}
	}
	if a.tesseract != nil {
		if err := a.tesseract.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close tesseract: %w", err))
		}
	}
	return errors.Join(errs...)
}

// initLogging installs the global logger. The analyze command passes
// stderr so stdout only carries the JSON result.
func initLogging(cfg *config.Config, console io.Writer) func() {
	closer := logging.InitLogger(logging.Options{
		Dir:            cfg.LogDir,
		Level:          cfg.LogLevel,
		RetentionWeeks: cfg.LogRetentionWeeks,
		MaxFileSize:    cfg.MaxLogFileSize,
		Console:        console,
	})
	return func() { _ = closer.Close() }
}
