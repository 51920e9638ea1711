package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/shoplens/backend/internal/domain"
)

const enrichmentSystemPrompt = `You fill in missing product details from your knowledge of well-known products.

Respond with a JSON object only, keyed by the exact product name given:
{"<product name>": {"category": "", "description": "", "estimatedPrice": "", "pros": []}}

Leave a field empty when you are not sure. Never invent prices for products
you do not recognize.`

// Supplement holds secondary lookup data used to fill sparse candidates
type Supplement struct {
	Category       string   `json:"category,omitempty"`
	Description    string   `json:"description,omitempty"`
	EstimatedPrice string   `json:"estimatedPrice,omitempty"`
	Pros           []string `json:"pros,omitempty"`
}

// Enricher fills sparse candidate fields via one batched secondary lookup
type Enricher struct {
	llm    domain.TextGenerator
	logger *zap.Logger
}

// NewEnricher creates an enrichment stage
func NewEnricher(llm domain.TextGenerator, logger *zap.Logger) *Enricher {
	return &Enricher{llm: llm, logger: logger}
}

// Enrich looks up supplemental data for all refs in a single batched call,
// keyed by product name. Failures degrade silently to an empty map.
func (e *Enricher) Enrich(ctx context.Context, refs []domain.ProductRef) map[string]Supplement {
	if len(refs) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("Products:\n")
	for _, ref := range refs {
		if ref.Brand != "" {
			sb.WriteString(fmt.Sprintf("- %s (brand: %s)\n", ref.Name, ref.Brand))
		} else {
			sb.WriteString(fmt.Sprintf("- %s\n", ref.Name))
		}
	}

	resp, err := e.llm.Complete(ctx, domain.CompletionRequest{
		System:      enrichmentSystemPrompt,
		Messages:    []domain.Message{{Role: "user", Content: sb.String()}},
		Temperature: 0.2,
	})
	if err != nil {
		e.logger.Warn("enrichment lookup failed", zap.Int("products", len(refs)), zap.Error(err))
		return nil
	}

	supplements, err := parseSupplements(resp)
	if err != nil {
		e.logger.Warn("enrichment output unparseable", zap.Error(err))
		return nil
	}

	return supplements
}

// ApplyEnrichment fills only fields that are empty on the candidate; a
// populated field is never overwritten.
func ApplyEnrichment(candidates []domain.CandidateProduct, supplements map[string]Supplement) []domain.CandidateProduct {
	if len(supplements) == 0 {
		return candidates
	}

	enriched := make([]domain.CandidateProduct, len(candidates))
	for i, c := range candidates {
		if sup, ok := supplements[c.Name]; ok {
			if c.Category == "" {
				c.Category = sup.Category
			}
			if c.Description == "" {
				c.Description = sup.Description
			}
			if c.EstimatedPrice == "" {
				c.EstimatedPrice = sup.EstimatedPrice
			}
			if len(c.Pros) == 0 {
				c.Pros = sup.Pros
			}
		}
		enriched[i] = c
	}

	return enriched
}

func parseSupplements(raw string) (map[string]Supplement, error) {
	payload := extractJSONObject(raw)
	if payload == "" {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var supplements map[string]Supplement
	if err := json.Unmarshal([]byte(payload), &supplements); err != nil {
		return nil, fmt.Errorf("decode supplements: %w", err)
	}

	return supplements, nil
}

// extractJSONObject strips markdown fences and surrounding prose, returning
// the outermost JSON object in the text
func extractJSONObject(raw string) string {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start < 0 || end <= start {
		return ""
	}
	return cleaned[start : end+1]
}
