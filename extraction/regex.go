package extraction

import (
	"regexp"
	"strings"

	"github.com/giygas/prescription-analyzer/entities"
)

const (
	dosageWindow    = 100
	frequencyWindow = 150
)

var (
	// A capitalized word sequence directly followed by a strength
	nameRe      = regexp.MustCompile(`([A-Z][a-z]+(?:[ -][A-Z][a-z]+)*)\s+\d+\s*(?i:mcg|mg|ml|g)\b`)
	dosageRe    = regexp.MustCompile(`(?i)(\d+\s*(?:mcg|mg|ml|g))\b`)
	frequencyRe = regexp.MustCompile(`(?i)(?:(?:take|given|administered|used)\s+)?(?:once|twice|three times|four times|daily|every day|BID|TID|QID|q\d+h)\b`)
)

// ExtractWithRegex finds medicines without an LLM. Dosage and frequency are
// searched in fixed windows starting at the name; duration is never set.
func ExtractWithRegex(text string) []entities.Medicine {
	medicines := []entities.Medicine{}
	for _, loc := range nameRe.FindAllStringSubmatchIndex(text, -1) {
		start := loc[0]
		m := entities.Medicine{BrandName: text[loc[2]:loc[3]]}

		if d := dosageRe.FindStringSubmatch(window(text, start, dosageWindow)); d != nil {
			m.Dosage = entities.StringPtr(d[1])
		}
		if f := frequencyRe.FindString(window(text, start, frequencyWindow)); f != "" {
			m.Frequency = entities.StringPtr(strings.TrimSpace(f))
		}
		medicines = append(medicines, m)
	}
	return medicines
}

func window(text string, start, size int) string {
	end := start + size
	if end > len(text) {
		end = len(text)
	}
	return text[start:end]
}
