package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shoplens/backend/internal/domain"
)

const chatSystemPrompt = `You are a friendly shopping assistant. Answer the user's question
conversationally and helpfully. Do not invent product listings, prices, or
purchase links.`

const summarySystemPrompt = `You summarize verified product findings for a shopper.

Write 2-4 sentences grounded ONLY in the products provided. Mention no other
products. Do not invent prices or details beyond what is given.`

const fallbackReply = "I wasn't able to dig up solid product research for that just now. " +
	"Could you try rephrasing, or tell me a bit more about what you're looking for?"

// backgroundTaskTimeout bounds fire-and-forget work after the response is sent
const backgroundTaskTimeout = 30 * time.Second

// DiscoveryConfig tunes the orchestrator
type DiscoveryConfig struct {
	CacheFallbackFloor float64
	CacheSearchLimit   int
	MaxResults         int
}

// DiscoveryRequest is one shopping-assistant query
type DiscoveryRequest struct {
	UserID  string   `json:"userId"`
	Query   string   `json:"query"`
	History []string `json:"history,omitempty"`
}

// DiscoveryResponse is the final payload for one query. Products only ever
// contains candidates with verified purchase URLs.
type DiscoveryResponse struct {
	Mode     domain.Mode              `json:"mode"`
	Reply    string                   `json:"reply"`
	Products []domain.ResolvedProduct `json:"products,omitempty"`
	Sources  []domain.ResearchSource  `json:"sources,omitempty"`
}

// DiscoveryService sequences classification, cache lookup, research,
// extraction, enrichment, resolution, and preference learning for one
// request, optionally emitting ordered progress events along the way.
type DiscoveryService struct {
	classifier *Classifier
	cache      *ProductCache
	extractor  *Extractor
	enricher   *Enricher
	resolver   *Resolver
	learner    *PreferenceLearner
	research   domain.Researcher
	llm        domain.TextGenerator
	logger     *zap.Logger

	cacheFallbackFloor float64
	cacheSearchLimit   int
	maxResults         int
}

// NewDiscoveryService creates the discovery orchestrator
func NewDiscoveryService(
	classifier *Classifier,
	cache *ProductCache,
	extractor *Extractor,
	enricher *Enricher,
	resolver *Resolver,
	learner *PreferenceLearner,
	research domain.Researcher,
	llm domain.TextGenerator,
	config DiscoveryConfig,
	logger *zap.Logger,
) *DiscoveryService {
	fallbackFloor := config.CacheFallbackFloor
	if fallbackFloor <= 0 {
		fallbackFloor = 70.0
	}

	searchLimit := config.CacheSearchLimit
	if searchLimit <= 0 {
		searchLimit = 8
	}

	maxResults := config.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}

	return &DiscoveryService{
		classifier:         classifier,
		cache:              cache,
		extractor:          extractor,
		enricher:           enricher,
		resolver:           resolver,
		learner:            learner,
		research:           research,
		llm:                llm,
		logger:             logger,
		cacheFallbackFloor: fallbackFloor,
		cacheSearchLimit:   searchLimit,
		maxResults:         maxResults,
	}
}

// Discover handles one query end to end. It never fails the request: any
// unexpected error inside the pipeline degrades to a conversational reply
// with zero product cards.
func (s *DiscoveryService) Discover(ctx context.Context, req DiscoveryRequest, onProgress domain.ProgressFunc) (resp *DiscoveryResponse) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("discovery pipeline panicked, degrading to chat",
				zap.String("query", req.Query),
				zap.Any("panic", r))
			resp = &DiscoveryResponse{
				Mode:  domain.ModeGeneralChat,
				Reply: s.conversationalReply(ctx, req.Query, req.History),
			}
		}
	}()

	mode := s.classifier.Classify(ctx, req.Query, req.History)

	switch mode {
	case domain.ModeSearch, domain.ModeComparison:
		return s.discoverProducts(ctx, mode, req, onProgress)
	default:
		return &DiscoveryResponse{
			Mode:  mode,
			Reply: s.conversationalReply(ctx, req.Query, req.History),
		}
	}
}

// discoverProducts runs the product pipeline: cache search and research in
// parallel, extraction with cache fallback, enrichment concurrent with the
// cache write-back, parallel resolution, and background preference learning.
func (s *DiscoveryService) discoverProducts(ctx context.Context, mode domain.Mode, req DiscoveryRequest, onProgress domain.ProgressFunc) *DiscoveryResponse {
	emit(onProgress, domain.EventSearchStart, "Researching products", map[string]interface{}{
		"query": req.Query,
	})

	// Cache search and research are independent reads; run them together
	cacheCh := make(chan []domain.CacheMatch, 1)
	go func() {
		matches, err := s.cache.Search(ctx, req.Query, s.cacheSearchLimit)
		if err != nil {
			s.logger.Warn("cache search failed", zap.String("query", req.Query), zap.Error(err))
		}
		cacheCh <- matches
	}()

	research, err := s.research.Search(ctx, req.Query, onProgress)
	cacheMatches := <-cacheCh
	if err != nil {
		s.logger.Warn("research failed, falling back to conversation",
			zap.String("query", req.Query), zap.Error(err))
		return &DiscoveryResponse{
			Mode:  mode,
			Reply: s.conversationalReply(ctx, req.Query, req.History),
		}
	}

	emit(onProgress, domain.EventExtractionStart, "Extracting product candidates", nil)
	extracted := s.extractor.Extract(ctx, req.Query, research.Context)

	candidates := s.selectCandidates(extracted, cacheMatches)
	if len(candidates) == 0 {
		return &DiscoveryResponse{
			Mode:    mode,
			Reply:   s.conversationalReply(ctx, req.Query, req.History),
			Sources: research.Sources,
		}
	}

	emit(onProgress, domain.EventProductsFound, fmt.Sprintf("Found %d candidates", len(candidates)), map[string]interface{}{
		"count": len(candidates),
	})

	// Write-back is fire-and-forget; enrichment runs concurrently with it
	// before resolution needs the filled-in candidates
	if len(extracted) > 0 {
		s.goBackground("cache write-back", func(bgCtx context.Context) {
			s.cache.UpsertAll(bgCtx, extracted)
		})
	}
	supplements := s.enricher.Enrich(ctx, refsOf(candidates))
	candidates = ApplyEnrichment(candidates, supplements)

	emit(onProgress, domain.EventResolutionStart, "Verifying purchase pages", nil)
	resolved := s.resolver.ResolveAll(ctx, candidates, func(product domain.ResolvedProduct) {
		emit(onProgress, domain.EventProductResolved, product.Name, map[string]interface{}{
			"name":     product.Name,
			"brand":    product.Brand,
			"url":      product.URL,
			"retailer": product.Retailer,
		})
	})

	if s.learner != nil && req.UserID != "" {
		resolvedCopy := resolved
		s.goBackground("preference learning", func(bgCtx context.Context) {
			if err := s.learner.LearnFromSearch(bgCtx, req.UserID, req.Query, resolvedCopy); err != nil {
				s.logger.Warn("preference learning failed",
					zap.String("userId", req.UserID), zap.Error(err))
			}
		})
	}

	return &DiscoveryResponse{
		Mode:     mode,
		Reply:    s.summarize(ctx, req.Query, resolved),
		Products: resolved,
		Sources:  research.Sources,
	}
}

// selectCandidates applies the fallback chain: fresh extraction wins; an
// empty extraction falls back to cache matches at or above the fallback
// floor; anything weaker yields nothing — an irrelevant product is worse
// than none.
func (s *DiscoveryService) selectCandidates(extracted []domain.CandidateProduct, cacheMatches []domain.CacheMatch) []domain.CandidateProduct {
	if len(extracted) > 0 {
		return extracted
	}

	var fromCache []domain.CandidateProduct
	for _, match := range cacheMatches {
		if match.MatchScore < s.cacheFallbackFloor {
			continue
		}
		fromCache = append(fromCache, matchToCandidate(match))
		if len(fromCache) >= s.maxResults {
			break
		}
	}

	return fromCache
}

// matchToCandidate lifts a cached product back into a per-request candidate,
// carrying the query-specific match score alongside the durable quality score
func matchToCandidate(match domain.CacheMatch) domain.CandidateProduct {
	p := match.Product
	return domain.CandidateProduct{
		Name:                p.Name,
		Brand:               p.Brand,
		Category:            p.Category,
		Description:         p.Description,
		EstimatedPrice:      p.EstimatedPrice,
		Pros:                p.Pros,
		Cons:                p.Cons,
		EndorsementStrength: p.EndorsementStrength,
		EndorsementQuotes:   p.EndorsementQuotes,
		SourceTypes:         p.SourceTypes,
		SourcesCount:        p.SourcesCount,
		ImageURL:            p.ImageURL,
		Confidence:          p.QualityScore,
		MatchScore:          match.MatchScore,
	}
}

// conversationalReply answers without product grounding. Generation failure
// degrades to a canned reply rather than an error.
func (s *DiscoveryService) conversationalReply(ctx context.Context, query string, history []string) string {
	messages := make([]domain.Message, 0, len(history)+1)
	for _, h := range history {
		messages = append(messages, domain.Message{Role: "user", Content: h})
	}
	messages = append(messages, domain.Message{Role: "user", Content: query})

	reply, err := s.llm.Complete(ctx, domain.CompletionRequest{
		System:      chatSystemPrompt,
		Messages:    messages,
		Temperature: 0.7,
	})
	if err != nil {
		s.logger.Warn("conversational reply failed", zap.Error(err))
		return fallbackReply
	}

	return strings.TrimSpace(reply)
}

// summarize writes the narrative strictly grounded in the resolved set so
// the text and the product cards cannot disagree
func (s *DiscoveryService) summarize(ctx context.Context, query string, products []domain.ResolvedProduct) string {
	if len(products) == 0 {
		return fallbackReply
	}

	var sb strings.Builder
	sb.WriteString("Query: " + query + "\n\nVerified products:\n")
	for _, p := range products {
		sb.WriteString(fmt.Sprintf("- %s %s", p.Brand, p.Name))
		if p.Price != nil {
			sb.WriteString(fmt.Sprintf(" ($%.2f)", *p.Price))
		}
		if p.Description != "" {
			sb.WriteString(": " + p.Description)
		}
		sb.WriteString("\n")
	}

	reply, err := s.llm.Complete(ctx, domain.CompletionRequest{
		System:      summarySystemPrompt,
		Messages:    []domain.Message{{Role: "user", Content: sb.String()}},
		Temperature: 0.5,
	})
	if err != nil {
		s.logger.Warn("summary generation failed", zap.Error(err))
		names := make([]string, len(products))
		for i, p := range products {
			names[i] = strings.TrimSpace(p.Brand + " " + p.Name)
		}
		return "Here's what I found: " + strings.Join(names, ", ") + "."
	}

	return strings.TrimSpace(reply)
}

// goBackground spawns an unsupervised unit of work detached from the
// request lifetime, with its own error boundary
func (s *DiscoveryService) goBackground(name string, task func(ctx context.Context)) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("background task panicked", zap.String("task", name), zap.Any("panic", r))
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), backgroundTaskTimeout)
		defer cancel()
		task(ctx)
	}()
}

func refsOf(candidates []domain.CandidateProduct) []domain.ProductRef {
	refs := make([]domain.ProductRef, len(candidates))
	for i, c := range candidates {
		refs[i] = c.Ref()
	}
	return refs
}

func emit(onProgress domain.ProgressFunc, eventType domain.ProgressEventType, message string, data map[string]interface{}) {
	if onProgress == nil {
		return
	}
	onProgress(domain.NewProgressEvent(eventType, message, data))
}
