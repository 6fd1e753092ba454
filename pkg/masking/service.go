// Package masking applies credential and secret redaction to event
// payloads before they are persisted (a supplemented feature per
// spec.md §4.5 step 2's "opaque JSON" payload boundary: raw tool output
// often embeds API keys, tokens, or Kubernetes Secret manifests that must
// never reach durable storage unmasked).
//
// Adapted from the teacher's pkg/masking: same two-phase strategy (code
// maskers for structurally-aware redaction, then a regex sweep for
// everything else) but with the MCP-server-scoped pattern registry
// collapsed into one fixed built-in set, since AgentLens has no per-tool
// masking configuration.
package masking

import (
	"log/slog"
)

// Service applies data masking to ingest payloads. Created once at
// startup; thread-safe and stateless aside from compiled patterns.
type Service struct {
	patterns    []*CompiledPattern
	codeMaskers []Masker
	enabled     bool
}

// NewService creates a masking service with the built-in pattern set
// compiled eagerly. enabled gates whether Mask does anything — an
// org can disable masking entirely via its config.
func NewService(enabled bool) *Service {
	s := &Service{enabled: enabled}
	s.patterns = compileBuiltinPatterns()
	s.codeMaskers = append(s.codeMaskers, &KubernetesSecretMasker{})

	slog.Info("masking service initialized",
		"enabled", enabled, "patterns", len(s.patterns), "code_maskers", len(s.codeMaskers))
	return s
}

// Mask implements ingest.Masker: it walks every string value in payload
// (recursing into nested maps/slices) and replaces matched secrets
// in place.
func (s *Service) Mask(payload map[string]any) {
	if !s.enabled {
		return
	}
	maskValueMap(s, payload)
}

func maskValueMap(s *Service, m map[string]any) {
	for k, v := range m {
		m[k] = maskValue(s, v)
	}
}

func maskValue(s *Service, v any) any {
	switch t := v.(type) {
	case string:
		return s.maskString(t)
	case map[string]any:
		maskValueMap(s, t)
		return t
	case []any:
		for i, e := range t {
			t[i] = maskValue(s, e)
		}
		return t
	default:
		return v
	}
}

// maskString is fail-closed: a masker that errors redacts the whole
// string rather than risk leaking a partially-processed secret.
func (s *Service) maskString(data string) (result string) {
	if data == "" {
		return data
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("masking panicked, redacting value (fail-closed)", "panic", r)
			result = "[REDACTED: masking failure]"
		}
	}()

	masked := data
	for _, cm := range s.codeMaskers {
		if cm.AppliesTo(masked) {
			masked = cm.Mask(masked)
		}
	}
	for _, p := range s.patterns {
		masked = p.Regex.ReplaceAllString(masked, p.Replacement)
	}
	return masked
}
