// Package extraction turns OCR text into structured medicines, with an
// LLM as the primary path and text heuristics as fallbacks.
package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/giygas/prescription-analyzer/entities"
	"github.com/giygas/prescription-analyzer/interfaces"
	"github.com/giygas/prescription-analyzer/llm"
	"github.com/giygas/prescription-analyzer/logging"
)

const systemPrompt = "You are a medical assistant specialized in analyzing prescriptions."

const promptTemplate = `The following text was extracted from a doctor's prescription using OCR:

%s

Extract all medications with their dosages, frequency, and duration.
Format your response as a JSON array of objects with the following structure:
[
    {
        "brand_name": "medication name",
        "dosage": "dosage information (e.g., 10mg, 500mg)",
        "frequency": "how often to take (e.g., once daily, twice daily, BID, TID)",
        "duration": "how long to take (e.g., 7 days, 2 weeks)"
    }
]

If information is not available for certain fields, use null.
Only return the JSON array and nothing else.`

// Extractor structures prescription text
type Extractor struct {
	client interfaces.ChatClient
	model  string
}

var _ interfaces.MedicationExtractor = (*Extractor)(nil)

// New returns an extractor that asks model through client
func New(client interfaces.ChatClient, model string) *Extractor {
	return &Extractor{client: client, model: model}
}

// Extract runs the LLM path and falls back to the regex extractor when it
// yields nothing.
func (e *Extractor) Extract(ctx context.Context, text string) []entities.Medicine {
	if strings.TrimSpace(text) == "" {
		return []entities.Medicine{}
	}

	medicines := e.ExtractWithLLM(ctx, text)
	if len(medicines) > 0 {
		return medicines
	}

	medicines = ExtractWithRegex(text)
	logging.Info("LLM extraction returned nothing, used regex fallback", "medicines", len(medicines))
	return medicines
}

// ExtractWithLLM asks the model for a JSON array of medicines. A reply that
// is not valid JSON goes through the line heuristic; a failed call yields
// an empty list.
func (e *Extractor) ExtractWithLLM(ctx context.Context, text string) []entities.Medicine {
	if e.client == nil {
		return []entities.Medicine{}
	}

	reply, err := e.client.Complete(ctx, interfaces.ChatRequest{
		Model:       e.model,
		System:      systemPrompt,
		Prompt:      fmt.Sprintf(promptTemplate, text),
		Temperature: 0.1,
		MaxTokens:   1000,
	})
	if err != nil {
		logging.Error("Medication extraction failed", "error", err)
		return []entities.Medicine{}
	}

	medicines, err := ParseReply(reply)
	if err != nil {
		logging.Warn("Extraction reply is not valid JSON, parsing lines", "error", err)
		return ParseLines(reply)
	}
	return medicines
}

// ParseReply decodes a JSON array of medicine objects. Objects wrapping
// the array under "medicines" or "medications" are accepted too.
func ParseReply(reply string) ([]entities.Medicine, error) {
	cleaned := llm.StripCodeFences(reply)

	var items []map[string]any
	if err := json.Unmarshal([]byte(cleaned), &items); err != nil {
		var wrapper map[string][]map[string]any
		if werr := json.Unmarshal([]byte(cleaned), &wrapper); werr != nil {
			return nil, fmt.Errorf("failed to decode medicines: %w", err)
		}
		items = wrapper["medicines"]
		if items == nil {
			items = wrapper["medications"]
		}
		if items == nil {
			return nil, fmt.Errorf("failed to decode medicines: %w", err)
		}
	}

	medicines := make([]entities.Medicine, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		m := entities.Medicine{
			BrandName: entities.Deref(field(item, "brand_name")),
			Dosage:    field(item, "dosage"),
			Frequency: field(item, "frequency"),
			Duration:  field(item, "duration"),
		}
		if strings.TrimSpace(m.BrandName) == "" {
			m.BrandName = entities.UnknownMedication
		}
		medicines = append(medicines, m)
	}
	return medicines, nil
}

// field reads key as a string, nil when absent or null
func field(item map[string]any, key string) *string {
	switch v := item[key].(type) {
	case nil:
		return nil
	case string:
		return entities.StringPtr(strings.TrimSpace(v))
	default:
		return entities.StringPtr(fmt.Sprint(v))
	}
}

// ParseLines recovers medicines from a reply that looks like JSON but does
// not decode. A line mentioning brand_name or medication starts a record;
// dosage, frequency and duration lines fill it.
func ParseLines(reply string) []entities.Medicine {
	medicines := []entities.Medicine{}
	var current *entities.Medicine

	flush := func() {
		if current != nil && current.BrandName != "" {
			medicines = append(medicines, *current)
		}
	}

	for _, line := range strings.Split(reply, "\n") {
		lower := strings.ToLower(line)
		switch {
		case strings.Contains(lower, "brand_name") || strings.Contains(lower, "medication"):
			flush()
			current = &entities.Medicine{BrandName: lineValue(line)}
		case strings.Contains(lower, "dosage"):
			current = ensure(current)
			current.Dosage = nullable(lineValue(line))
		case strings.Contains(lower, "frequency"):
			current = ensure(current)
			current.Frequency = nullable(lineValue(line))
		case strings.Contains(lower, "duration"):
			current = ensure(current)
			current.Duration = nullable(lineValue(line))
		}
	}
	flush()
	return medicines
}

func ensure(m *entities.Medicine) *entities.Medicine {
	if m == nil {
		return &entities.Medicine{}
	}
	return m
}

// lineValue returns the text after the last colon, without surrounding
// spaces, quotes and commas.
func lineValue(line string) string {
	if i := strings.LastIndex(line, ":"); i >= 0 {
		line = line[i+1:]
	}
	return strings.Trim(strings.TrimSpace(line), `",`)
}

func nullable(v string) *string {
	if v == "" || strings.EqualFold(v, "null") {
		return nil
	}
	return &v
}
