// Package pricing implements the model catalog and cost engine.
//
// DESIGN: A Catalog is an ordered list of rules mapping model identifiers to
// per-million-token prices. Resolution is deterministic: exact id first, then
// prefix patterns, first match in declaration order wins. The catalog is
// immutable after construction.
package pricing

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrUnknownModel is returned when no catalog rule matches a model id.
var ErrUnknownModel = errors.New("pricing: unknown model")

// Rule maps a model id or prefix pattern to per-million-token prices.
type Rule struct {
	Pattern       string // exact id, or prefix when it ends with '*'
	InputPerMTok  decimal.Decimal
	OutputPerMTok decimal.Decimal
}

// prefix reports whether the rule is a prefix pattern and returns the prefix.
func (r Rule) prefix() (string, bool) {
	if strings.HasSuffix(r.Pattern, "*") {
		return strings.TrimSuffix(r.Pattern, "*"), true
	}
	return "", false
}

// CostModel is the resolved pricing for one model.
type CostModel struct {
	Model         string // model id the request used
	Matched       string // catalog pattern that matched
	InputPerMTok  decimal.Decimal
	OutputPerMTok decimal.Decimal
}

// Catalog resolves model ids to cost models.
type Catalog struct {
	rules []Rule
}

// NewCatalog builds a catalog from an ordered rule list.
func NewCatalog(rules []Rule) *Catalog {
	return &Catalog{rules: append([]Rule(nil), rules...)}
}

// Default returns the built-in catalog. Prices are USD per million tokens.
func Default() *Catalog {
	return NewCatalog([]Rule{
		// Anthropic, dated ids first so they win over family prefixes
		rule("claude-opus-4", 15, 75),
		rule("claude-sonnet-4-5-20251001", 3, 15),
		rule("claude-sonnet-4", 3, 15),
		rule("claude-sonnet-3.5", 3, 15),
		rule("claude-haiku-4-5-20251001", 1, 5),
		rule("claude-haiku-4", 1, 5),
		rule("claude-opus-*", 15, 75),
		rule("claude-sonnet-*", 3, 15),
		rule("claude-haiku-*", 1, 5),

		// OpenAI
		rule("gpt-4o-mini", 0.15, 0.60),
		rule("gpt-4o", 2.5, 10),
		rule("gpt-4", 30, 60),
		rule("gpt-4*", 10, 30),

		// Self-hosted, free
		rule("ollama/*", 0, 0),

		// Local testing models used by the simulator
		rule("fast-model", 0.25, 1.25),
	})
}

func rule(pattern string, in, out float64) Rule {
	return Rule{
		Pattern:       pattern,
		InputPerMTok:  decimal.NewFromFloat(in),
		OutputPerMTok: decimal.NewFromFloat(out),
	}
}

// FromRules builds a catalog from externally loaded (config) rules.
// An empty list falls back to the built-in catalog.
func FromRules(rules []Rule) *Catalog {
	if len(rules) == 0 {
		return Default()
	}
	return NewCatalog(rules)
}

// Route resolves a model id to its cost model.
//
// Exact matches are checked across the whole catalog before any prefix
// pattern is considered, and within each pass the earliest declared rule
// wins. Ties never resolve "last wins".
func (c *Catalog) Route(model string) (CostModel, error) {
	for _, r := range c.rules {
		if _, isPrefix := r.prefix(); !isPrefix && r.Pattern == model {
			return c.resolved(model, r), nil
		}
	}
	for _, r := range c.rules {
		if p, isPrefix := r.prefix(); isPrefix && strings.HasPrefix(model, p) {
			return c.resolved(model, r), nil
		}
	}
	return CostModel{}, ErrUnknownModel
}

func (c *Catalog) resolved(model string, r Rule) CostModel {
	return CostModel{
		Model:         model,
		Matched:       r.Pattern,
		InputPerMTok:  r.InputPerMTok,
		OutputPerMTok: r.OutputPerMTok,
	}
}

// Len returns the number of declared rules.
func (c *Catalog) Len() int { return len(c.rules) }
