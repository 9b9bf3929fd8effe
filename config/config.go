// Package config has the configuration file for the app
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// Supported environments
const (
	EnvDevelopment = "dev"
	EnvStaging     = "staging"
	EnvProduction  = "prod"
	EnvTest        = "test"
)

// Supported OCR methods
const (
	OCRMethodLlama     = "llama"
	OCRMethodGPT4      = "gpt4"
	OCRMethodTesseract = "tesseract"
)

// Default external endpoints
const (
	DefaultGroqBaseURL      = "https://api.groq.com/openai/v1/"
	DefaultTogetherBaseURL  = "https://api.together.xyz/v1/"
	DefaultRxNormBaseURL    = "https://rxnav.nlm.nih.gov/REST"
	DefaultFirecrawlBaseURL = "https://api.firecrawl.dev"
	DefaultSitemapURL       = "https://www.1mg.com/sitemap_generics_1.xml"
)

// Config holds all application configuration
type Config struct {
	Port              string
	Address           string
	Env               string
	LogLevel          string
	LogDir            string
	LogRetentionWeeks int   // Number of weeks to keep log files
	MaxLogFileSize    int64 // Maximum log file size in bytes
	MaxRequestBody    int64 // Maximum request body size in bytes
	MaxHeaderSize     int64 // Maximum header size in bytes

	// OCR
	OCRMethod         string
	FallbackEnabled   bool
	LlamaModel        string
	VisionModel       string
	TesseractLanguage string
	OCRMemoTTL        time.Duration

	// LLM text models
	ExtractionModel   string
	AlternativesModel string
	ScraperModel      string
	LLMRateLimit      float64 // Outbound requests per second, shared by all text calls

	// Provider credentials, empty means the provider is not configured
	GroqAPIKey      string
	TogetherAPIKey  string
	OpenAIAPIKey    string
	FirecrawlAPIKey string

	GroqBaseURL      string
	TogetherBaseURL  string
	OpenAIBaseURL    string
	RxNormBaseURL    string
	FirecrawlBaseURL string
	SitemapURL       string

	CacheFile      string
	PriceCacheTTL  time.Duration
	RequestTimeout time.Duration // Per external call
}

// Load loads and validates configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:              getEnvWithDefault("PORT", "8000"),
		Address:           getEnvWithDefault("ADDRESS", "127.0.0.1"),
		Env:               strings.ToLower(getEnvWithDefault("ENV", EnvDevelopment)),
		LogLevel:          strings.ToLower(getEnvWithDefault("LOG_LEVEL", "info")),
		LogDir:            getEnvWithDefault("LOG_DIR", "logs"),
		LogRetentionWeeks: getIntEnvWithDefault("LOG_RETENTION_WEEKS", 4),         // 4 weeks default
		MaxLogFileSize:    getInt64EnvWithDefault("MAX_LOG_FILE_SIZE", 104857600), // 100MB default
		MaxRequestBody:    getInt64EnvWithDefault("MAX_REQUEST_BODY", 10485760),   // 10MB default, prescriptions are photos
		MaxHeaderSize:     getInt64EnvWithDefault("MAX_HEADER_SIZE", 1048576),     // 1MB default

		OCRMethod:         normalizeOCRMethod(getEnvWithDefault("OCR_METHOD", OCRMethodLlama)),
		FallbackEnabled:   getBoolEnvWithDefault("FALLBACK_ENABLED", true),
		LlamaModel:        getEnvWithDefault("LLAMA_MODEL", "meta-llama/Llama-3.2-11B-Vision-Instruct-Turbo"),
		VisionModel:       getEnvWithDefault("VISION_MODEL", "gpt-4o"),
		TesseractLanguage: getEnvWithDefault("TESSERACT_LANGUAGE", "eng"),
		OCRMemoTTL:        getDurationEnvWithDefault("OCR_MEMO_TTL", 30*time.Minute),

		ExtractionModel:   getEnvWithDefault("EXTRACTION_MODEL", "llama3-8b-8192"),
		AlternativesModel: getEnvWithDefault("ALTERNATIVES_MODEL", "llama3-70b-8192"),
		ScraperModel:      getEnvWithDefault("SCRAPER_MODEL", "llama3-70b-8192"),
		LLMRateLimit:      getFloatEnvWithDefault("LLM_RATE_LIMIT", 2),

		GroqAPIKey:      os.Getenv("GROQ_API_KEY"),
		TogetherAPIKey:  os.Getenv("TOGETHER_API_KEY"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		FirecrawlAPIKey: os.Getenv("FIRECRAWL_API_KEY"),

		GroqBaseURL:      getEnvWithDefault("GROQ_BASE_URL", DefaultGroqBaseURL),
		TogetherBaseURL:  getEnvWithDefault("TOGETHER_BASE_URL", DefaultTogetherBaseURL),
		OpenAIBaseURL:    os.Getenv("OPENAI_BASE_URL"),
		RxNormBaseURL:    getEnvWithDefault("RXNORM_BASE_URL", DefaultRxNormBaseURL),
		FirecrawlBaseURL: getEnvWithDefault("FIRECRAWL_BASE_URL", DefaultFirecrawlBaseURL),
		SitemapURL:       getEnvWithDefault("SITEMAP_URL", DefaultSitemapURL),

		CacheFile:      getEnvWithDefault("CACHE_FILE", "generics_cache.json"),
		PriceCacheTTL:  getDurationEnvWithDefault("PRICE_CACHE_TTL", time.Hour),
		RequestTimeout: getDurationEnvWithDefault("REQUEST_TIMEOUT", 30*time.Second),
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// validateConfig validates all configuration values
func validateConfig(cfg *Config) error {
	if err := validatePort(cfg.Port); err != nil {
		return fmt.Errorf("invalid PORT: %w", err)
	}

	if err := validateAddress(cfg.Address); err != nil {
		return fmt.Errorf("invalid ADDRESS: %w", err)
	}

	if err := validateOneOf(cfg.Env, []string{EnvDevelopment, EnvStaging, EnvProduction, EnvTest}, "ENV"); err != nil {
		return fmt.Errorf("invalid ENV: %w", err)
	}

	if err := validateOneOf(cfg.LogLevel, []string{"debug", "info", "warn", "error"}, "LOG_LEVEL"); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	if err := validateOneOf(cfg.OCRMethod, []string{OCRMethodLlama, OCRMethodGPT4, OCRMethodTesseract}, "OCR_METHOD"); err != nil {
		return fmt.Errorf("invalid OCR_METHOD: %w", err)
	}

	if err := validateSizeLimit(cfg.MaxRequestBody, "MAX_REQUEST_BODY"); err != nil {
		return fmt.Errorf("invalid MAX_REQUEST_BODY: %w", err)
	}

	if err := validateSizeLimit(cfg.MaxHeaderSize, "MAX_HEADER_SIZE"); err != nil {
		return fmt.Errorf("invalid MAX_HEADER_SIZE: %w", err)
	}

	if cfg.LogRetentionWeeks <= 0 || cfg.LogRetentionWeeks > 52 {
		return fmt.Errorf("invalid LOG_RETENTION_WEEKS: must be between 1 and 52, got: %d", cfg.LogRetentionWeeks)
	}

	if cfg.MaxLogFileSize < 1024*1024 || cfg.MaxLogFileSize > 1024*1024*1024 {
		return fmt.Errorf("invalid MAX_LOG_FILE_SIZE: must be between 1MB and 1GB, got: %d bytes", cfg.MaxLogFileSize)
	}

	if cfg.LLMRateLimit <= 0 {
		return fmt.Errorf("invalid LLM_RATE_LIMIT: must be positive, got: %v", cfg.LLMRateLimit)
	}

	if strings.TrimSpace(cfg.CacheFile) == "" {
		return fmt.Errorf("invalid CACHE_FILE: cannot be empty")
	}

	return nil
}

// validatePort validates the PORT environment variable
func validatePort(port string) error {
	if port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}

	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("PORT must be a valid number: %w", err)
	}

	if portNum < 1 || portNum > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}

	if portNum < 1024 {
		return fmt.Errorf("PORT %d is privileged (less than 1024), use ports 1024-65535", portNum)
	}

	return nil
}

// validateAddress validates the ADDRESS environment variable
func validateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("ADDRESS cannot be empty")
	}

	if address == "127.0.0.1" || address == "::1" || address == "localhost" || address == "0.0.0.0" {
		return nil
	}

	if ip := net.ParseIP(address); ip == nil {
		return fmt.Errorf("ADDRESS must be a valid IP address or 'localhost', got: %s", address)
	}

	return nil
}

func validateOneOf(value string, allowed []string, name string) error {
	if value == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}

	for _, candidate := range allowed {
		if value == candidate {
			return nil
		}
	}

	return fmt.Errorf("%s must be one of: %v, got: %s", name, allowed, value)
}

// validateSizeLimit validates size limit configuration values
func validateSizeLimit(size int64, configName string) error {
	if size <= 0 {
		return fmt.Errorf("%s must be positive, got: %d", configName, size)
	}

	if size > 100*1024*1024 { // 100MB
		return fmt.Errorf("%s is too large (max 100MB), got: %d bytes", configName, size)
	}

	return nil
}

// normalizeOCRMethod maps legacy names onto the supported providers.
// "easyocr" was the local engine before tesseract replaced it.
func normalizeOCRMethod(method string) string {
	method = strings.ToLower(strings.TrimSpace(method))
	if method == "easyocr" {
		return OCRMethodTesseract
	}
	return method
}

// getEnvWithDefault gets an environment variable with a default value
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnvWithDefault gets an environment variable as int with a default value
func getIntEnvWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getInt64EnvWithDefault gets an environment variable as int64 with a default value
func getInt64EnvWithDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnvWithDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnvWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnvWithDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// GetEnvVars returns a list of all expected environment variables
func GetEnvVars() []string {
	return []string{
		"PORT", "ADDRESS", "ENV", "LOG_LEVEL", "LOG_DIR", "LOG_RETENTION_WEEKS", "MAX_LOG_FILE_SIZE",
		"MAX_REQUEST_BODY", "MAX_HEADER_SIZE",
		"OCR_METHOD", "FALLBACK_ENABLED", "LLAMA_MODEL", "VISION_MODEL", "TESSERACT_LANGUAGE", "OCR_MEMO_TTL",
		"EXTRACTION_MODEL", "ALTERNATIVES_MODEL", "SCRAPER_MODEL", "LLM_RATE_LIMIT",
		"GROQ_API_KEY", "TOGETHER_API_KEY", "OPENAI_API_KEY", "FIRECRAWL_API_KEY",
		"GROQ_BASE_URL", "TOGETHER_BASE_URL", "OPENAI_BASE_URL", "RXNORM_BASE_URL", "FIRECRAWL_BASE_URL", "SITEMAP_URL",
		"CACHE_FILE", "PRICE_CACHE_TTL", "REQUEST_TIMEOUT",
	}
}

// MissingProviderKeys lists the provider credentials that are not set.
// Nothing here is fatal: each provider fails fast when called without its key.
func (c *Config) MissingProviderKeys() []string {
	var missing []string
	keys := []struct {
		name  string
		value string
	}{
		{"GROQ_API_KEY", c.GroqAPIKey},
		{"TOGETHER_API_KEY", c.TogetherAPIKey},
		{"OPENAI_API_KEY", c.OpenAIAPIKey},
		{"FIRECRAWL_API_KEY", c.FirecrawlAPIKey},
	}
	for _, k := range keys {
		if k.value == "" {
			missing = append(missing, k.name)
		}
	}
	return missing
}
