package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/shoplens/backend/internal/domain"
)

const extractionSystemPrompt = `You extract real products from shopping research text.

Hard rules:
- Only mention products the research text actually recommends. Never fabricate.
- endorsementQuotes must be verbatim fragments copied from the research text.
- confidence (0-100) scores the quality of the evidence: corroboration across
  sources, endorsement strength, specificity.
- matchScore (0-100) scores how well the product fits the user's query.

Respond with a JSON array only, no prose:
[{"name": "", "brand": "", "category": "", "description": "",
  "estimatedPrice": "", "pros": [], "cons": [],
  "endorsementStrength": "strong|moderate|weak", "endorsementQuotes": [],
  "sourceTypes": [], "sourcesCount": 0, "confidence": 0, "matchScore": 0}]

Return [] when the research supports no products.`

// ExtractorConfig tunes the extraction engine
type ExtractorConfig struct {
	ConfidenceFloor float64
	MaxCandidates   int
}

// Extractor turns raw research text into confidence-scored candidates
type Extractor struct {
	llm             domain.TextGenerator
	confidenceFloor float64
	maxCandidates   int
	logger          *zap.Logger
}

// NewExtractor creates an extraction engine with the given configuration
func NewExtractor(llm domain.TextGenerator, config ExtractorConfig, logger *zap.Logger) *Extractor {
	floor := config.ConfidenceFloor
	if floor <= 0 {
		floor = 60.0
	}

	maxCandidates := config.MaxCandidates
	if maxCandidates <= 0 {
		maxCandidates = 5
	}

	return &Extractor{
		llm:             llm,
		confidenceFloor: floor,
		maxCandidates:   maxCandidates,
		logger:          logger,
	}
}

// Extract pulls candidate products out of research text. It never fails:
// generation or parse errors degrade silently to an empty list.
func (e *Extractor) Extract(ctx context.Context, query, researchText string) []domain.CandidateProduct {
	if strings.TrimSpace(researchText) == "" {
		return nil
	}

	prompt := fmt.Sprintf("User query: %s\n\nResearch text:\n%s", query, researchText)
	resp, err := e.llm.Complete(ctx, domain.CompletionRequest{
		System:      extractionSystemPrompt,
		Messages:    []domain.Message{{Role: "user", Content: prompt}},
		Temperature: 0.2,
	})
	if err != nil {
		e.logger.Warn("extraction generation failed", zap.String("query", query), zap.Error(err))
		return nil
	}

	candidates, err := parseCandidates(resp)
	if err != nil {
		e.logger.Warn("extraction output unparseable", zap.String("query", query), zap.Error(err))
		return nil
	}

	return e.filterAndRank(candidates)
}

// filterAndRank drops candidates below the confidence floor, sorts the rest
// descending by confidence, and caps the list
func (e *Extractor) filterAndRank(candidates []domain.CandidateProduct) []domain.CandidateProduct {
	var kept []domain.CandidateProduct
	for _, c := range candidates {
		if c.Confidence >= e.confidenceFloor {
			kept = append(kept, c)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Confidence > kept[j].Confidence
	})

	if len(kept) > e.maxCandidates {
		kept = kept[:e.maxCandidates]
	}

	return kept
}

// parseCandidates validates the model's loosely-typed JSON at the boundary
// and coerces it into strict candidates. Any schema violation is an error;
// callers turn that into an empty result.
func parseCandidates(raw string) ([]domain.CandidateProduct, error) {
	payload := extractJSONArray(raw)
	if payload == "" {
		return nil, fmt.Errorf("no JSON array in response")
	}

	var parsed []domain.CandidateProduct
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return nil, fmt.Errorf("decode candidates: %w", err)
	}

	var candidates []domain.CandidateProduct
	for _, c := range parsed {
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" {
			continue
		}
		c.Confidence = clampScore(c.Confidence)
		c.MatchScore = clampScore(c.MatchScore)
		c.EndorsementStrength = normalizeStrength(c.EndorsementStrength)
		candidates = append(candidates, c)
	}

	return candidates, nil
}

// extractJSONArray strips markdown fences and surrounding prose, returning
// the outermost JSON array in the text
func extractJSONArray(raw string) string {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")

	start := strings.Index(cleaned, "[")
	end := strings.LastIndex(cleaned, "]")
	if start < 0 || end <= start {
		return ""
	}
	return cleaned[start : end+1]
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func normalizeStrength(s domain.EndorsementStrength) domain.EndorsementStrength {
	switch domain.EndorsementStrength(strings.ToLower(string(s))) {
	case domain.EndorsementStrong:
		return domain.EndorsementStrong
	case domain.EndorsementModerate:
		return domain.EndorsementModerate
	case domain.EndorsementWeak:
		return domain.EndorsementWeak
	default:
		return domain.EndorsementWeak
	}
}
