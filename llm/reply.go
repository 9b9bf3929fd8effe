package llm

import (
	"regexp"
	"strings"
)

var (
	fenceRe       = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")
	bareObjectsRe = regexp.MustCompile(`\}\s*\n\s*\{`)
	embeddedArray = regexp.MustCompile(`\[[\s\S]*\]`)
)

// StripCodeFences removes a surrounding markdown code fence, with or
// without a language tag, and trims whitespace.
func StripCodeFences(reply string) string {
	reply = strings.TrimSpace(reply)
	if m := fenceRe.FindStringSubmatch(reply); m != nil {
		return strings.TrimSpace(m[1])
	}
	// Unbalanced fences, usually a truncated reply
	reply = strings.TrimPrefix(reply, "```json")
	reply = strings.TrimPrefix(reply, "```")
	reply = strings.TrimSuffix(reply, "```")
	return strings.TrimSpace(reply)
}

// RepairJSONArray turns common malformed model replies into a JSON array
// candidate: fenced output, objects listed one per line without commas or
// brackets, and arrays embedded in prose. ok is false when nothing
// array-like was found.
func RepairJSONArray(reply string) (string, bool) {
	cleaned := StripCodeFences(reply)
	if cleaned == "" {
		return "", false
	}

	if strings.HasPrefix(cleaned, "[") && strings.HasSuffix(cleaned, "]") {
		return cleaned, true
	}

	if strings.HasPrefix(cleaned, "{") && strings.HasSuffix(cleaned, "}") {
		return "[" + bareObjectsRe.ReplaceAllString(cleaned, "},{") + "]", true
	}

	if m := embeddedArray.FindString(cleaned); m != "" {
		return m, true
	}
	return "", false
}
