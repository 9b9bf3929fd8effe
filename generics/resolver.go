// Package generics resolves brand-name medicines to generic alternatives:
// cache first, then RxNorm, then an LLM.
package generics

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/giygas/prescription-analyzer/entities"
	"github.com/giygas/prescription-analyzer/interfaces"
	"github.com/giygas/prescription-analyzer/llm"
	"github.com/giygas/prescription-analyzer/logging"
	"github.com/giygas/prescription-analyzer/metrics"
	"github.com/giygas/prescription-analyzer/rxnorm"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	// StandardDifference describes every RxNorm generic
	StandardDifference = "Standard generic equivalent"
	unknownGeneric     = "Unknown"
)

const promptTemplate = `As a pharmacist, provide information about the generic alternatives for the brand name medication: %s%s.

For each generic alternative, please provide:
1. Generic name (chemical name)
2. Equivalent dosage to match the brand medication
3. Approximate price comparison (percentage cheaper than brand name)
4. Any notable differences in efficacy, side effects, or bioavailability

Format your response as a JSON object with an array of alternatives following this structure:
{
    "alternatives": [
        {
            "generic_name": "Generic Name",
            "equivalent_dosage": "Equivalent Dosage",
            "price_comparison": "X%% cheaper than brand name",
            "differences": "Any notable differences"
        }
    ]
}

If this is not a real medication or you don't have sufficient information, return an empty array.`

var alternativesSchema = jsonschema.MustCompileString("alternatives.json", `{
	"type": "object",
	"required": ["alternatives"],
	"properties": {
		"alternatives": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["generic_name"],
				"properties": {
					"generic_name": {"type": "string"},
					"equivalent_dosage": {"type": ["string", "null"]},
					"price_comparison": {"type": ["string", "null"]},
					"differences": {"type": ["string", "null"]}
				}
			}
		}
	}
}`)

// emptyLLMResult is cached when the model call fails
var emptyLLMResult = json.RawMessage(`{"alternatives":[]}`)

// Resolver implements the cache, RxNorm, LLM chain
type Resolver struct {
	cache  interfaces.GenericsCache
	lookup interfaces.DrugLookup
	client interfaces.ChatClient
	model  string
}

var _ interfaces.AlternativesResolver = (*Resolver)(nil)

// NewResolver wires the resolver's collaborators
func NewResolver(cache interfaces.GenericsCache, lookup interfaces.DrugLookup, client interfaces.ChatClient, model string) *Resolver {
	return &Resolver{cache: cache, lookup: lookup, client: client, model: model}
}

// Resolve handles medicines one at a time, in order
func (r *Resolver) Resolve(ctx context.Context, medicines []entities.Medicine) []entities.MedicineWithAlternatives {
	results := make([]entities.MedicineWithAlternatives, 0, len(medicines))
	for _, m := range medicines {
		results = append(results, r.ResolveOne(ctx, m))
	}
	return results
}

// ResolveOne resolves a single medicine. It never fails: the worst case is
// an empty alternatives list tagged with source llm.
func (r *Resolver) ResolveOne(ctx context.Context, m entities.Medicine) entities.MedicineWithAlternatives {
	result := entities.MedicineWithAlternatives{
		BrandName:    m.BrandName,
		BrandDetails: m,
	}

	if entry, ok := r.cache.Get(m.BrandName); ok {
		alternatives, err := formatCached(entry)
		if err == nil {
			result.GenericAlternatives = alternatives
			result.Source = entities.SourceCache
			metrics.GenericResolutionsTotal.WithLabelValues(string(entities.SourceCache)).Inc()
			logging.Debug("Generic alternatives served from cache", "medicine", m.BrandName, "cached_source", entry.Source)
			return result
		}
		logging.Warn("Unreadable cache entry, resolving again", "medicine", m.BrandName, "error", err)
	}

	concepts, err := r.lookup.LookupGenerics(ctx, m.BrandName)
	if err != nil {
		logging.Warn("RxNorm lookup failed, falling back to LLM", "medicine", m.BrandName, "transient", rxnorm.IsTransient(err), "error", err)
	}
	if len(concepts) > 0 {
		r.store(m.BrandName, concepts, entities.SourceRxNorm)
		result.GenericAlternatives = FormatConcepts(concepts)
		result.Source = entities.SourceRxNorm
		metrics.GenericResolutionsTotal.WithLabelValues(string(entities.SourceRxNorm)).Inc()
		return result
	}

	raw := r.askLLM(ctx, m)
	r.store(m.BrandName, raw, entities.SourceLLM)
	alternatives, err := formatLLM(raw)
	if err != nil {
		logging.Warn("Failed to format LLM alternatives", "medicine", m.BrandName, "error", err)
	}
	result.GenericAlternatives = alternatives
	result.Source = entities.SourceLLM
	metrics.GenericResolutionsTotal.WithLabelValues(string(entities.SourceLLM)).Inc()
	return result
}

// askLLM returns the model's {"alternatives": [...]} object, or the empty
// one when the call or its reply is unusable.
func (r *Resolver) askLLM(ctx context.Context, m entities.Medicine) json.RawMessage {
	if r.client == nil {
		return emptyLLMResult
	}

	dosage := ""
	if m.Dosage != nil && *m.Dosage != "" {
		dosage = " with dosage " + *m.Dosage
	}

	reply, err := r.client.Complete(ctx, interfaces.ChatRequest{
		Model:       r.model,
		Prompt:      fmt.Sprintf(promptTemplate, m.BrandName, dosage),
		Temperature: 0.1,
		MaxTokens:   800,
		JSONObject:  true,
	})
	if err != nil {
		logging.Error("LLM alternatives request failed", "medicine", m.BrandName, "error", err)
		return emptyLLMResult
	}

	raw, err := ValidateLLMReply(reply)
	if err != nil {
		logging.Warn("LLM alternatives reply rejected", "medicine", m.BrandName, "error", err)
		return emptyLLMResult
	}
	return raw
}

// ValidateLLMReply checks a model reply against the alternatives schema and
// returns it compacted.
func ValidateLLMReply(reply string) (json.RawMessage, error) {
	cleaned := llm.StripCodeFences(reply)

	var doc any
	if err := json.Unmarshal([]byte(cleaned), &doc); err != nil {
		return nil, fmt.Errorf("reply is not JSON: %w", err)
	}
	if err := alternativesSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("reply does not match schema: %w", err)
	}

	compact, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode reply: %w", err)
	}
	return compact, nil
}

func (r *Resolver) store(name string, data any, source entities.Source) {
	raw, ok := data.(json.RawMessage)
	if !ok {
		encoded, err := json.Marshal(data)
		if err != nil {
			logging.Error("Failed to encode cache entry", "medicine", name, "error", err)
			return
		}
		raw = encoded
	}
	if err := r.cache.Set(name, raw, source); err != nil {
		logging.Error("Failed to persist generics cache", "medicine", name, "error", err)
	}
}

// FormatConcepts turns RxNorm concepts into alternatives
func FormatConcepts(concepts []entities.DrugConcept) []entities.GenericAlternative {
	alternatives := make([]entities.GenericAlternative, 0, len(concepts))
	for _, c := range concepts {
		name := c.GenericName
		if name == "" {
			name = unknownGeneric
		}
		price := c.Details.PriceComparison
		if price == "" {
			price = rxnorm.DefaultPriceComparison
		}
		alternatives = append(alternatives, entities.GenericAlternative{
			GenericName:      name,
			EquivalentDosage: c.Details.Dosage,
			PriceComparison:  entities.StringPtr(price),
			Differences:      entities.StringPtr(StandardDifference),
		})
	}
	return alternatives
}

type llmResult struct {
	Alternatives []struct {
		GenericName      string  `json:"generic_name"`
		EquivalentDosage *string `json:"equivalent_dosage"`
		PriceComparison  *string `json:"price_comparison"`
		Differences      *string `json:"differences"`
	} `json:"alternatives"`
}

func formatLLM(raw json.RawMessage) ([]entities.GenericAlternative, error) {
	alternatives := []entities.GenericAlternative{}
	var result llmResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return alternatives, fmt.Errorf("failed to decode llm alternatives: %w", err)
	}
	for _, a := range result.Alternatives {
		name := strings.TrimSpace(a.GenericName)
		if name == "" {
			name = unknownGeneric
		}
		alternatives = append(alternatives, entities.GenericAlternative{
			GenericName:      name,
			EquivalentDosage: a.EquivalentDosage,
			PriceComparison:  a.PriceComparison,
			Differences:      a.Differences,
		})
	}
	return alternatives, nil
}

// formatCached reads an entry according to the source that produced it
func formatCached(entry entities.CacheEntry) ([]entities.GenericAlternative, error) {
	switch entry.Source {
	case entities.SourceRxNorm:
		var concepts []entities.DrugConcept
		if err := json.Unmarshal(entry.Data, &concepts); err != nil {
			return nil, fmt.Errorf("failed to decode cached rxnorm concepts: %w", err)
		}
		return FormatConcepts(concepts), nil
	case entities.SourceLLM:
		return formatLLM(entry.Data)
	default:
		return []entities.GenericAlternative{}, nil
	}
}
