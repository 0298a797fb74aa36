package knowledge

import "fmt"

// Intent is a named unit of knowledge: example patterns that anchor
// semantic matching, and the candidate responses returned on a match.
type Intent struct {
	ID        string         `json:"id"`
	Patterns  []string       `json:"patterns"`
	Responses []string       `json:"responses"`
	Metadata  IntentMetadata `json:"metadata"`
}

// IntentMetadata carries routing hints for an intent. ConfidenceThreshold
// is optional; when nil the service-wide default applies. Priority is
// used only as a ranking tie-break, lower means higher priority.
type IntentMetadata struct {
	Category            string   `json:"category"`
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty"`
	Priority            int      `json:"priority"`
	Tags                []string `json:"tags"`
}

// Threshold resolves the acceptance threshold for this intent, falling
// back to the service default when no per-intent value is set. This is
// the single place the optional-field rule is applied.
func (i Intent) Threshold(serviceDefault float64) float64 {
	if i.Metadata.ConfidenceThreshold != nil {
		return *i.Metadata.ConfidenceThreshold
	}
	return serviceDefault
}

// Document is the on-disk knowledge base format.
type Document struct {
	Version  string           `json:"version"`
	Metadata DocumentMetadata `json:"metadata"`
	Intents  []Intent         `json:"intents"`
}

// DocumentMetadata holds service-wide settings shipped with the
// knowledge base. FallbackResponses is data, not logic: an empty set is
// a load error, never a runtime failure.
type DocumentMetadata struct {
	Description       string       `json:"description,omitempty"`
	SearchConfig      SearchConfig `json:"search_config"`
	FallbackResponses []string     `json:"fallback_responses"`
}

// SearchConfig holds the stage-1 retrieval threshold, which doubles as
// the default stage-2 acceptance threshold for intents that define none.
type SearchConfig struct {
	DefaultConfidenceThreshold float64 `json:"default_confidence_threshold"`
}

// LoadError reports a malformed or invalid knowledge base. It is fatal
// at startup; a failed reload keeps the previous good snapshot serving.
type LoadError struct {
	Path   string
	Reason string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("knowledge base %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("knowledge base %s: %s", e.Path, e.Reason)
}

func (e *LoadError) Unwrap() error { return e.Err }
