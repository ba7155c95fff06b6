// Package analyzer resolves and validates the LLM analyzer configuration attached to a job
// and derives the job's idempotency fingerprint from it.
package analyzer

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/kiranshivaraju/newsanalyzer/pkg/models"
)

var (
	ErrInvalidConfig   = errors.New("invalid analyzer configuration")
	ErrUnknownProvider = fmt.Errorf("%w: unknown provider", ErrInvalidConfig)
	ErrNoCapability    = fmt.Errorf("%w: at least one of embedding or sentiment must be enabled", ErrInvalidConfig)
)

const (
	OpenAIID int16 = 5
	CohereID int16 = 6
)

// Provider describes one LLM API the analyzer can target and the options it accepts.
type Provider struct {
	ID              int16
	Name            string
	EmbeddingModels []string
	InputTypes      []string
	SentimentModels []string
	Truncate        []string
	MaxTokens       int
}

var providers = map[int16]Provider{
	OpenAIID: {
		ID:   OpenAIID,
		Name: "openai",
		EmbeddingModels: []string{
			"text-embedding-3-small",
			"text-embedding-3-large",
			"text-embedding-ada-002",
		},
		SentimentModels: []string{"gpt-4o-mini", "gpt-4o", "gpt-3.5-turbo"},
		MaxTokens:       4096,
	},
	CohereID: {
		ID:   CohereID,
		Name: "cohere",
		EmbeddingModels: []string{
			"embed-english-v3.0",
			"embed-multilingual-v3.0",
			"embed-english-light-v3.0",
			"embed-multilingual-light-v3.0",
		},
		InputTypes:      []string{"search_document", "search_query", "classification", "clustering"},
		SentimentModels: []string{"command-r", "command-r-plus"},
		Truncate:        []string{"none", "start", "end"},
		MaxTokens:       4000,
	},
}

var byName = func() map[string]int16 {
	m := make(map[string]int16, len(providers))
	for id, p := range providers {
		m[p.Name] = id
	}
	return m
}()

// Providers returns every known provider ordered by id.
func Providers() []Provider {
	out := make([]Provider, 0, len(providers))
	for _, p := range providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Lookup resolves a provider by numeric id ("6") or by name ("cohere", case-insensitive).
func Lookup(idOrName string) (Provider, error) {
	key := strings.ToLower(strings.TrimSpace(idOrName))
	if id, err := strconv.ParseInt(key, 10, 16); err == nil {
		return LookupID(int16(id))
	}
	if id, ok := byName[key]; ok {
		return providers[id], nil
	}
	return Provider{}, fmt.Errorf("%w %q", ErrUnknownProvider, idOrName)
}

func LookupID(id int16) (Provider, error) {
	p, ok := providers[id]
	if !ok {
		return Provider{}, fmt.Errorf("%w %d", ErrUnknownProvider, id)
	}
	return p, nil
}

// Resolve fills in the provider id and name from whichever one cfg carries and checks
// that they agree.
func Resolve(cfg models.AnalyzerConfig) (models.AnalyzerConfig, Provider, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Provider))

	var p Provider
	var err error
	switch {
	case cfg.ProviderID != 0:
		p, err = LookupID(cfg.ProviderID)
		if err == nil && name != "" && name != p.Name {
			err = fmt.Errorf("%w: provider id %d is %s, not %q", ErrInvalidConfig, p.ID, p.Name, cfg.Provider)
		}
	case name != "":
		p, err = Lookup(name)
	default:
		err = fmt.Errorf("%w: provider is required", ErrInvalidConfig)
	}
	if err != nil {
		return cfg, Provider{}, err
	}

	cfg.Provider = p.Name
	cfg.ProviderID = p.ID
	return cfg, p, nil
}
