package knowledge

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// ParseDocument decodes and validates a knowledge base document. The
// returned document has normalized intent ids (lowercase, spaces
// replaced) and trimmed patterns and responses.
func ParseDocument(path string, data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &LoadError{Path: path, Reason: "malformed JSON", Err: err}
	}

	if doc.Version == "" {
		doc.Version = "1.0.0"
	}

	if err := validateDocument(path, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ReadDocument loads and validates a knowledge base file.
func ReadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Reason: "reading file", Err: err}
	}
	return ParseDocument(path, data)
}

func validateDocument(path string, doc *Document) error {
	fail := func(reason string, args ...any) error {
		return &LoadError{Path: path, Reason: fmt.Sprintf(reason, args...)}
	}

	if len(doc.Intents) == 0 {
		return fail("no intents defined")
	}

	if t := doc.Metadata.SearchConfig.DefaultConfidenceThreshold; t < 0 || t > 1 {
		return fail("default_confidence_threshold %v outside [0,1]", t)
	}

	doc.Metadata.FallbackResponses = trimNonEmpty(doc.Metadata.FallbackResponses)
	if len(doc.Metadata.FallbackResponses) == 0 {
		return fail("fallback_responses must contain at least one entry")
	}

	seen := make(map[string]bool, len(doc.Intents))
	for idx := range doc.Intents {
		in := &doc.Intents[idx]

		in.ID = normalizeID(in.ID)
		if in.ID == "" {
			return fail("intent at position %d has an empty id", idx)
		}
		if seen[in.ID] {
			return fail("duplicate intent id %q", in.ID)
		}
		seen[in.ID] = true

		in.Patterns = trimNonEmpty(in.Patterns)
		if len(in.Patterns) == 0 {
			return fail("intent %q has no patterns", in.ID)
		}

		in.Responses = trimNonEmpty(in.Responses)
		if len(in.Responses) == 0 {
			return fail("intent %q has no responses", in.ID)
		}

		if t := in.Metadata.ConfidenceThreshold; t != nil && (*t < 0 || *t > 1) {
			return fail("intent %q confidence_threshold %v outside [0,1]", in.ID, *t)
		}
		if in.Metadata.Category == "" {
			in.Metadata.Category = "general"
		}
	}

	return nil
}

func normalizeID(id string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(id)), " ", "_")
}

func trimNonEmpty(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
