package analyzer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/kiranshivaraju/newsanalyzer/pkg/models"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	schemasOnce sync.Once
	schemas     map[int16]*jsonschema.Schema
	schemasErr  error
)

// Validate normalizes cfg, resolves its provider and checks the per-provider options.
// The returned config is the canonical form stored on the job. Every failure wraps
// ErrInvalidConfig.
func Validate(cfg models.AnalyzerConfig) (models.AnalyzerConfig, error) {
	cfg = Normalize(cfg)
	if !cfg.Embedding.Enabled && !cfg.Sentiment.Enabled {
		return cfg, ErrNoCapability
	}

	cfg, p, err := Resolve(cfg)
	if err != nil {
		return cfg, err
	}

	schema, err := schemaFor(p.ID)
	if err != nil {
		return cfg, err
	}

	b, err := json.Marshal(cfg)
	if err != nil {
		return cfg, fmt.Errorf("marshal analyzer config: %w", err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return cfg, fmt.Errorf("unmarshal analyzer config: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return cfg, fmt.Errorf("%w: %s", ErrInvalidConfig, describe(err))
	}
	return cfg, nil
}

// Normalize trims and lower-cases every string option and zeroes the options of
// disabled capabilities, so equivalent requests compare equal.
func Normalize(cfg models.AnalyzerConfig) models.AnalyzerConfig {
	clean := func(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

	cfg.Provider = clean(cfg.Provider)
	if cfg.Embedding.Enabled {
		cfg.Embedding.Model = clean(cfg.Embedding.Model)
		cfg.Embedding.InputType = clean(cfg.Embedding.InputType)
	} else {
		cfg.Embedding = models.EmbeddingOptions{}
	}
	if cfg.Sentiment.Enabled {
		cfg.Sentiment.Model = clean(cfg.Sentiment.Model)
		cfg.Sentiment.Truncate = clean(cfg.Sentiment.Truncate)
	} else {
		cfg.Sentiment = models.SentimentOptions{}
	}
	return cfg
}

func schemaFor(id int16) (*jsonschema.Schema, error) {
	schemasOnce.Do(func() {
		schemas = make(map[int16]*jsonschema.Schema, len(providers))
		for _, p := range providers {
			s, err := compile(p)
			if err != nil {
				schemasErr = fmt.Errorf("compile %s schema: %w", p.Name, err)
				return
			}
			schemas[p.ID] = s
		}
	})
	if schemasErr != nil {
		return nil, schemasErr
	}
	s, ok := schemas[id]
	if !ok {
		return nil, fmt.Errorf("%w %d", ErrUnknownProvider, id)
	}
	return s, nil
}

func compile(p Provider) (*jsonschema.Schema, error) {
	b, err := json.Marshal(providerSchema(p))
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	url := p.Name + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	return compiler.Compile(url)
}

// providerSchema builds the JSON Schema for one provider. Options are only checked
// when their capability is enabled.
func providerSchema(p Provider) map[string]any {
	enabled := map[string]any{
		"required":   []string{"enabled"},
		"properties": map[string]any{"enabled": map[string]any{"const": true}},
	}

	embedding := map[string]any{"model": map[string]any{"enum": p.EmbeddingModels}}
	embeddingRequired := []string{"model"}
	if len(p.InputTypes) > 0 {
		embedding["input_type"] = map[string]any{"enum": p.InputTypes}
		embeddingRequired = append(embeddingRequired, "input_type")
	} else {
		embedding["input_type"] = map[string]any{"const": ""}
	}

	sentiment := map[string]any{
		"model":      map[string]any{"enum": p.SentimentModels},
		"max_tokens": map[string]any{"type": "integer", "minimum": 0, "maximum": p.MaxTokens},
	}
	if len(p.Truncate) > 0 {
		sentiment["truncate"] = map[string]any{"enum": p.Truncate}
	} else {
		sentiment["truncate"] = map[string]any{"const": ""}
	}

	return map[string]any{
		"type":     "object",
		"required": []string{"provider", "provider_id", "embedding", "sentiment"},
		"properties": map[string]any{
			"provider":    map[string]any{"const": p.Name},
			"provider_id": map[string]any{"const": p.ID},
			"embedding": map[string]any{
				"type": "object",
				"if":   enabled,
				"then": map[string]any{"required": embeddingRequired, "properties": embedding},
			},
			"sentiment": map[string]any{
				"type": "object",
				"if":   enabled,
				"then": map[string]any{"required": []string{"model"}, "properties": sentiment},
			},
		},
	}
}

// describe flattens a schema validation error into its leaf messages.
func describe(err error) string {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return err.Error()
	}
	var msgs []string
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			msgs = append(msgs, loc+": "+e.Message)
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return strings.Join(msgs, "; ")
}
