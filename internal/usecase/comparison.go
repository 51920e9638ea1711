package usecase

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/shoplens/backend/internal/domain"
)

const comparisonSummaryPrompt = `You summarize a head-to-head product comparison for a shopper.

Write 3-5 sentences grounded ONLY in the products provided. Mention no other
products. Call out the clearest trade-offs; do not declare a winner unless the
evidence is one-sided.`

// ComparisonRequest asks for a structured comparison of 2+ named products.
// PriorProducts optionally carries product data the caller already has, used
// per-product when fresh extraction comes up empty.
type ComparisonRequest struct {
	UserID        string                    `json:"userId,omitempty"`
	Products      []string                  `json:"products"`
	PriorProducts []domain.CandidateProduct `json:"priorProducts,omitempty"`
}

// ProductFeatures is one row of the comparison feature matrix
type ProductFeatures struct {
	Pros []string `json:"pros,omitempty"`
	Cons []string `json:"cons,omitempty"`
}

// ComparisonResult is the structured comparison payload. Products holds
// exactly one entry per requested name, and Summary references only those.
type ComparisonResult struct {
	Products          []domain.CandidateProduct    `json:"products"`
	SentimentBySource map[string]map[string]string `json:"sentimentBySource"`
	FeatureMatrix     map[string]ProductFeatures   `json:"featureMatrix"`
	Prices            map[string]string            `json:"prices"`
	MentionTrends     map[string]int               `json:"mentionTrends"`
	Summary           string                       `json:"summary"`
}

// ComparisonService builds structured comparisons for user-selected products
type ComparisonService struct {
	research  domain.Researcher
	extractor *Extractor
	llm       domain.TextGenerator
	logger    *zap.Logger
}

// NewComparisonService creates a comparison engine
func NewComparisonService(research domain.Researcher, extractor *Extractor, llm domain.TextGenerator, logger *zap.Logger) *ComparisonService {
	return &ComparisonService{
		research:  research,
		extractor: extractor,
		llm:       llm,
		logger:    logger,
	}
}

// Compare researches the selected products together, extracts evidence for
// each one individually, and assembles the structured payload plus a summary
// grounded strictly in the same product set.
func (s *ComparisonService) Compare(ctx context.Context, req ComparisonRequest, onProgress domain.ProgressFunc) (*ComparisonResult, error) {
	if len(req.Products) < 2 {
		return nil, fmt.Errorf("%w: comparison needs at least 2 products", domain.ErrInvalidRequest)
	}

	comparisonQuery := "compare " + strings.Join(req.Products, " vs ")
	emit(onProgress, domain.EventSearchStart, "Researching comparison", map[string]interface{}{
		"query": comparisonQuery,
	})

	research, err := s.research.Search(ctx, comparisonQuery, onProgress)
	if err != nil {
		return nil, fmt.Errorf("comparison research: %w", err)
	}

	products := make([]domain.CandidateProduct, 0, len(req.Products))
	for i, name := range req.Products {
		emit(onProgress, domain.EventComparisonProgress, "Analyzing "+name, map[string]interface{}{
			"product":  name,
			"position": i + 1,
			"total":    len(req.Products),
		})

		product := s.extractOne(ctx, name, comparisonQuery, research.Context)
		if product == nil {
			product = priorFor(name, req.PriorProducts)
		}
		if product == nil {
			// Keep the slot so the payload always mirrors the selection
			product = &domain.CandidateProduct{Name: name}
		}
		products = append(products, *product)
	}

	result := &ComparisonResult{
		Products:          products,
		SentimentBySource: sentimentBySource(products),
		FeatureMatrix:     featureMatrix(products),
		Prices:            priceList(products),
		MentionTrends:     mentionTrends(products),
	}
	result.Summary = s.summarizeComparison(ctx, products)

	return result, nil
}

// extractOne runs a targeted extraction for a single named product against
// the shared comparison research context
func (s *ComparisonService) extractOne(ctx context.Context, name, comparisonQuery, researchContext string) *domain.CandidateProduct {
	query := fmt.Sprintf("%s — focus only on %s", comparisonQuery, name)
	candidates := s.extractor.Extract(ctx, query, researchContext)

	needle := strings.ToLower(name)
	for _, c := range candidates {
		full := strings.ToLower(strings.TrimSpace(c.Brand + " " + c.Name))
		if strings.Contains(full, needle) || strings.Contains(needle, strings.ToLower(c.Name)) {
			return &c
		}
	}
	if len(candidates) > 0 {
		return &candidates[0]
	}
	return nil
}

func priorFor(name string, priors []domain.CandidateProduct) *domain.CandidateProduct {
	needle := strings.ToLower(name)
	for _, p := range priors {
		full := strings.ToLower(strings.TrimSpace(p.Brand + " " + p.Name))
		if strings.Contains(full, needle) || strings.Contains(needle, strings.ToLower(p.Name)) {
			return &p
		}
	}
	return nil
}

func sentimentBySource(products []domain.CandidateProduct) map[string]map[string]string {
	sentiment := make(map[string]map[string]string, len(products))
	for _, p := range products {
		perSource := make(map[string]string, len(p.SourceTypes))
		for _, sourceType := range p.SourceTypes {
			perSource[sourceType] = string(p.EndorsementStrength)
		}
		sentiment[p.Name] = perSource
	}
	return sentiment
}

func featureMatrix(products []domain.CandidateProduct) map[string]ProductFeatures {
	matrix := make(map[string]ProductFeatures, len(products))
	for _, p := range products {
		matrix[p.Name] = ProductFeatures{Pros: p.Pros, Cons: p.Cons}
	}
	return matrix
}

func priceList(products []domain.CandidateProduct) map[string]string {
	prices := make(map[string]string, len(products))
	for _, p := range products {
		prices[p.Name] = p.EstimatedPrice
	}
	return prices
}

func mentionTrends(products []domain.CandidateProduct) map[string]int {
	trends := make(map[string]int, len(products))
	for _, p := range products {
		trends[p.Name] = p.SourcesCount
	}
	return trends
}

// summarizeComparison writes the narrative from the exact product set shown
// to the user. Generation failure degrades to a plain listing.
func (s *ComparisonService) summarizeComparison(ctx context.Context, products []domain.CandidateProduct) string {
	var sb strings.Builder
	sb.WriteString("Products under comparison:\n")
	for _, p := range products {
		sb.WriteString(fmt.Sprintf("- %s %s", p.Brand, p.Name))
		if p.EstimatedPrice != "" {
			sb.WriteString(" (price: " + p.EstimatedPrice + ")")
		}
		if len(p.Pros) > 0 {
			sb.WriteString("; pros: " + strings.Join(p.Pros, ", "))
		}
		if len(p.Cons) > 0 {
			sb.WriteString("; cons: " + strings.Join(p.Cons, ", "))
		}
		sb.WriteString("\n")
	}

	summary, err := s.llm.Complete(ctx, domain.CompletionRequest{
		System:      comparisonSummaryPrompt,
		Messages:    []domain.Message{{Role: "user", Content: sb.String()}},
		Temperature: 0.5,
	})
	if err != nil {
		s.logger.Warn("comparison summary failed", zap.Error(err))
		names := make([]string, len(products))
		for i, p := range products {
			names[i] = strings.TrimSpace(p.Brand + " " + p.Name)
		}
		return "Comparison of " + strings.Join(names, " vs ") + "."
	}

	return strings.TrimSpace(summary)
}
