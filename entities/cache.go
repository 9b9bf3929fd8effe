package entities

import (
	"encoding/json"
	"time"
)

// CacheEntry is one persisted resolution. Data is kept raw because its
// shape depends on Source: a list of alternatives for rxnorm, the model's
// {"alternatives": [...]} object for llm.
type CacheEntry struct {
	Data      json.RawMessage `json:"data"`
	Source    Source          `json:"source"`
	Timestamp time.Time       `json:"timestamp"`
}
