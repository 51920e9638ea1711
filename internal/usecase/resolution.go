package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shoplens/backend/internal/domain"
)

const verificationSystemPrompt = `You verify whether a fetched page is a live purchase page for a specific product.

Given the product and the page HTML, respond with a JSON object only:
{"isPurchasePage": false, "retailer": "", "price": "", "images": []}

isPurchasePage is true only when the page clearly sells this exact product.
price is the listed price as shown (may include currency symbols or a range).
images are absolute product image URLs found on the page, up to 3.`

const priceEstimationSystemPrompt = `You estimate a typical current retail price in USD for a product.

Respond with only the price as a plain number or range, e.g. "299" or "250-300".
Respond with "unknown" if you cannot estimate.`

// Per-candidate limits for the verification loop
const maxVerificationSources = 3
const maxPageTextForVerification = 20000

// ResolverConfig tunes the resolution stage
type ResolverConfig struct {
	MaxParallel int
}

// Resolver maps candidates to verified purchase pages. Candidates without a
// verifiable page are excluded: fewer, verifiable products beat unverified
// ones.
type Resolver struct {
	research    domain.Researcher
	fetcher     domain.PageFetcher
	llm         domain.TextGenerator
	maxParallel int
	logger      *zap.Logger
}

// NewResolver creates a resolution stage
func NewResolver(research domain.Researcher, fetcher domain.PageFetcher, llm domain.TextGenerator, config ResolverConfig, logger *zap.Logger) *Resolver {
	maxParallel := config.MaxParallel
	if maxParallel <= 0 {
		maxParallel = 4
	}

	return &Resolver{
		research:    research,
		fetcher:     fetcher,
		llm:         llm,
		maxParallel: maxParallel,
		logger:      logger,
	}
}

// verificationResult is the model's page-verification wire format
type verificationResult struct {
	IsPurchasePage bool     `json:"isPurchasePage"`
	Retailer       string   `json:"retailer"`
	Price          string   `json:"price"`
	Images         []string `json:"images"`
}

// Resolve finds a verified purchase page for one candidate. Returns
// ErrNoVerifiedPage when every source fails verification.
func (r *Resolver) Resolve(ctx context.Context, candidate domain.CandidateProduct) (*domain.ResolvedProduct, error) {
	query := strings.TrimSpace(fmt.Sprintf("buy %s %s price", candidate.Brand, candidate.Name))
	research, err := r.research.Search(ctx, query, nil)
	if err != nil {
		return nil, fmt.Errorf("resolution research: %w", err)
	}

	sources := research.Sources
	if len(sources) > maxVerificationSources {
		sources = sources[:maxVerificationSources]
	}

	for _, source := range sources {
		if source.URL == "" {
			continue
		}

		resolved, err := r.verifySource(ctx, candidate, source.URL)
		if err != nil {
			r.logger.Debug("source verification failed",
				zap.String("product", candidate.Name),
				zap.String("url", source.URL),
				zap.Error(err))
			continue
		}
		if resolved != nil {
			return resolved, nil
		}
	}

	return nil, domain.ErrNoVerifiedPage
}

// verifySource fetches one URL and asks the model to verify it sells the
// candidate. Returns (nil, nil) when the page is not a purchase page.
func (r *Resolver) verifySource(ctx context.Context, candidate domain.CandidateProduct, pageURL string) (*domain.ResolvedProduct, error) {
	html, err := r.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	if len(html) > maxPageTextForVerification {
		html = html[:maxPageTextForVerification]
	}

	prompt := fmt.Sprintf("Product: %s %s\nURL: %s\n\nPage HTML:\n%s",
		candidate.Brand, candidate.Name, pageURL, html)
	resp, err := r.llm.Complete(ctx, domain.CompletionRequest{
		System:      verificationSystemPrompt,
		Messages:    []domain.Message{{Role: "user", Content: prompt}},
		Temperature: 0,
	})
	if err != nil {
		return nil, err
	}

	payload := extractJSONObject(resp)
	if payload == "" {
		return nil, fmt.Errorf("no JSON object in verification response")
	}

	var verification verificationResult
	if err := json.Unmarshal([]byte(payload), &verification); err != nil {
		return nil, fmt.Errorf("decode verification: %w", err)
	}

	if !verification.IsPurchasePage {
		return nil, nil
	}

	resolved := &domain.ResolvedProduct{
		CandidateProduct: candidate,
		URL:              pageURL,
		Retailer:         verification.Retailer,
		Images:           verification.Images,
		Price:            ParsePrice(verification.Price),
	}

	// Estimation is policy above the parser: a missing or zero live price
	// triggers a grounded estimate, re-parsed the same way
	if resolved.Price == nil || *resolved.Price == 0 {
		if estimate := r.estimatePrice(ctx, candidate); estimate != nil {
			resolved.Price = estimate
			resolved.PriceEstimated = true
		}
	}

	return resolved, nil
}

// estimatePrice asks the model for a typical price grounded in the
// candidate's identity and description
func (r *Resolver) estimatePrice(ctx context.Context, candidate domain.CandidateProduct) *float64 {
	prompt := fmt.Sprintf("Product: %s %s\nCategory: %s\nDescription: %s",
		candidate.Brand, candidate.Name, candidate.Category, candidate.Description)
	resp, err := r.llm.Complete(ctx, domain.CompletionRequest{
		System:      priceEstimationSystemPrompt,
		Messages:    []domain.Message{{Role: "user", Content: prompt}},
		MaxTokens:   32,
		Temperature: 0,
	})
	if err != nil {
		r.logger.Warn("price estimation failed", zap.String("product", candidate.Name), zap.Error(err))
		return nil
	}

	return ParsePrice(resp)
}

// ResolveAll resolves every candidate in parallel. A failed resolution
// excludes that candidate only; relative order of survivors is preserved.
func (r *Resolver) ResolveAll(ctx context.Context, candidates []domain.CandidateProduct, onResolved func(domain.ResolvedProduct)) []domain.ResolvedProduct {
	results := make([]*domain.ResolvedProduct, len(candidates))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxParallel)

	for i, candidate := range candidates {
		g.Go(func() error {
			resolved, err := r.Resolve(gctx, candidate)
			if err != nil {
				r.logger.Warn("candidate excluded: resolution failed",
					zap.String("product", candidate.Name),
					zap.Error(err))
				return nil
			}

			mu.Lock()
			results[i] = resolved
			mu.Unlock()

			if onResolved != nil {
				onResolved(*resolved)
			}
			return nil
		})
	}

	g.Wait()

	var resolved []domain.ResolvedProduct
	for _, res := range results {
		if res != nil {
			resolved = append(resolved, *res)
		}
	}

	return resolved
}

// ParsePrice normalizes a free-form price string into a number. Ranges take
// the lower bound. Returns nil (not zero) when no valid number exists, so
// callers can tell "unknown price" from "free".
func ParsePrice(raw string) *float64 {
	cleaned := strings.TrimSpace(strings.ToLower(raw))
	if cleaned == "" {
		return nil
	}

	cleaned = strings.NewReplacer("$", "", "€", "", "£", "", "usd", "", ",", "", " ", "").Replace(cleaned)

	// Range like "150-200": take the lower bound
	if idx := strings.Index(cleaned, "-"); idx > 0 {
		cleaned = cleaned[:idx]
	}

	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || value < 0 {
		return nil
	}

	return &value
}
