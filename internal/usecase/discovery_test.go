package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/shoplens/backend/internal/domain"
	"github.com/shoplens/backend/internal/infrastructure/store"
)

// scriptedLLM dispatches on the system prompt so one stub can play every
// model role in the pipeline
func scriptedLLM(overrides map[string]func(req domain.CompletionRequest) (string, error)) *stubGenerator {
	defaults := map[string]string{
		"classify":  "search",
		"extract":   "[]",
		"missing":   "{}",
		"verify":    `{"isPurchasePage": true, "retailer": "Example Shop", "price": "299"}`,
		"typical current retail price": "unknown",
		"summarize": "Summary of verified products.",
		"friendly":  "Conversational answer.",
	}
	return &stubGenerator{fn: func(req domain.CompletionRequest) (string, error) {
		for marker, fn := range overrides {
			if strings.Contains(req.System, marker) {
				return fn(req)
			}
		}
		for marker, resp := range defaults {
			if strings.Contains(req.System, marker) {
				return resp, nil
			}
		}
		return "", errors.New("unexpected prompt")
	}}
}

func respond(resp string) func(domain.CompletionRequest) (string, error) {
	return func(domain.CompletionRequest) (string, error) { return resp, nil }
}

func newDiscoveryService(llm *stubGenerator, research *stubResearcher, fetcher *stubFetcher) (*DiscoveryService, *store.Memory) {
	logger := zap.NewNop()
	mem := store.NewMemory()
	cache := NewProductCache(mem, logger)
	svc := NewDiscoveryService(
		NewClassifier(llm, logger),
		cache,
		NewExtractor(llm, ExtractorConfig{}, logger),
		NewEnricher(llm, logger),
		NewResolver(research, fetcher, llm, ResolverConfig{}, logger),
		NewPreferenceLearner(mem, LearnerConfig{}, logger),
		research,
		llm,
		DiscoveryConfig{},
		logger,
	)
	return svc, mem
}

func researchWithContext(text string, urls ...string) *domain.ResearchResult {
	result := &domain.ResearchResult{Context: text}
	for _, u := range urls {
		result.Sources = append(result.Sources, domain.ResearchSource{Title: "source", URL: u})
	}
	return result
}

func TestDiscoverGeneralChat(t *testing.T) {
	llm := scriptedLLM(map[string]func(domain.CompletionRequest) (string, error){
		"classify": respond("general_chat"),
		"friendly": respond("Hello! How can I help?"),
	})
	svc, _ := newDiscoveryService(llm, &stubResearcher{}, &stubFetcher{})

	resp := svc.Discover(context.Background(), DiscoveryRequest{Query: "hey there"}, nil)
	if resp.Mode != domain.ModeGeneralChat {
		t.Errorf("mode = %q, want general_chat", resp.Mode)
	}
	if resp.Reply != "Hello! How can I help?" {
		t.Errorf("reply = %q", resp.Reply)
	}
	if len(resp.Products) != 0 {
		t.Errorf("products = %d, want none in chat mode", len(resp.Products))
	}
}

func TestDiscoverSearchPipeline(t *testing.T) {
	extraction := `[{"name": "WH-1000XM5", "brand": "Sony", "category": "headphones",
		"description": "flagship ANC", "confidence": 88, "matchScore": 92}]`
	llm := scriptedLLM(map[string]func(domain.CompletionRequest) (string, error){
		"extract": respond(extraction),
	})
	research := &stubResearcher{result: researchWithContext(
		"Reviewers widely recommend the Sony WH-1000XM5.",
		"https://reviews.example.com/anc",
	)}
	fetcher := &stubFetcher{html: "<html>Sony WH-1000XM5 $299 Add to cart</html>"}
	svc, mem := newDiscoveryService(llm, research, fetcher)

	var events []domain.ProgressEventType
	resp := svc.Discover(context.Background(),
		DiscoveryRequest{UserID: "user-1", Query: "best noise cancelling headphones"},
		func(e domain.ProgressEvent) { events = append(events, e.Type) })

	if resp.Mode != domain.ModeSearch {
		t.Errorf("mode = %q, want search", resp.Mode)
	}
	if len(resp.Products) != 1 {
		t.Fatalf("products = %d, want 1", len(resp.Products))
	}
	product := resp.Products[0]
	if product.URL == "" || product.Retailer != "Example Shop" {
		t.Errorf("product not resolved: %+v", product)
	}
	if product.Price == nil || *product.Price != 299 {
		t.Errorf("price = %v, want 299", product.Price)
	}
	if resp.Reply != "Summary of verified products." {
		t.Errorf("reply = %q, want the grounded summary", resp.Reply)
	}
	if len(resp.Sources) != 1 {
		t.Errorf("sources = %d, want research sources passed through", len(resp.Sources))
	}

	assertEventOrder(t, events,
		domain.EventSearchStart,
		domain.EventSourceFound,
		domain.EventExtractionStart,
		domain.EventProductsFound,
		domain.EventResolutionStart,
		domain.EventProductResolved,
	)

	// Write-back and preference learning are fire-and-forget; poll briefly
	waitFor(t, "cache write-back", func() bool {
		results, err := NewProductCache(mem, zap.NewNop()).LookupByKeys(context.Background(),
			[]domain.ProductRef{{Name: "WH-1000XM5", Brand: "Sony"}})
		return err == nil && len(results) == 1
	})
	waitFor(t, "preference learning", func() bool {
		prefs, err := mem.GetPreferences(context.Background(), "user-1")
		return err == nil && len(prefs.Brands) == 1
	})
}

func TestDiscoverResearchFailure(t *testing.T) {
	llm := scriptedLLM(map[string]func(domain.CompletionRequest) (string, error){
		"friendly": respond("I could not research that, but here is what I know."),
	})
	research := &stubResearcher{err: domain.ErrResearchFailure}
	svc, _ := newDiscoveryService(llm, research, &stubFetcher{})

	resp := svc.Discover(context.Background(), DiscoveryRequest{Query: "best headphones"}, nil)
	if resp.Mode != domain.ModeSearch {
		t.Errorf("mode = %q, want search preserved in fallback", resp.Mode)
	}
	if len(resp.Products) != 0 {
		t.Errorf("products = %d, want none on research failure", len(resp.Products))
	}
	if resp.Reply != "I could not research that, but here is what I know." {
		t.Errorf("reply = %q, want conversational fallback", resp.Reply)
	}
}

func TestDiscoverCacheFallback(t *testing.T) {
	// Research succeeds but extraction finds nothing; a strong cached match
	// backfills the candidate list
	llm := scriptedLLM(nil)
	research := &stubResearcher{result: researchWithContext("nothing conclusive", "https://shop.example.com/xm5")}
	fetcher := &stubFetcher{html: "<html>listing</html>"}
	svc, mem := newDiscoveryService(llm, research, fetcher)

	cache := NewProductCache(mem, zap.NewNop())
	if err := cache.Upsert(context.Background(), domain.CandidateProduct{
		Name: "WH-1000XM5", Brand: "Sony", Category: "headphones",
		Description: "noise cancelling headphones", Confidence: 88,
	}); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	resp := svc.Discover(context.Background(),
		DiscoveryRequest{Query: "noise cancelling headphones"}, nil)

	if len(resp.Products) != 1 {
		t.Fatalf("products = %d, want 1 from cache fallback", len(resp.Products))
	}
	if resp.Products[0].Name != "WH-1000XM5" {
		t.Errorf("product = %q, want the cached product", resp.Products[0].Name)
	}
}

func TestDiscoverPanicDegradesToChat(t *testing.T) {
	llm := scriptedLLM(map[string]func(domain.CompletionRequest) (string, error){
		"friendly": respond("Something went sideways, but I can still chat."),
	})
	research := &stubResearcher{fn: func(string) (*domain.ResearchResult, error) {
		panic("exploded mid-pipeline")
	}}
	svc, _ := newDiscoveryService(llm, research, &stubFetcher{})

	resp := svc.Discover(context.Background(), DiscoveryRequest{Query: "best headphones"}, nil)
	if resp == nil {
		t.Fatal("response is nil, want degraded chat reply")
	}
	if resp.Mode != domain.ModeGeneralChat {
		t.Errorf("mode = %q, want general_chat after panic", resp.Mode)
	}
	if resp.Reply != "Something went sideways, but I can still chat." {
		t.Errorf("reply = %q", resp.Reply)
	}
}

func TestDiscoverSummaryFallback(t *testing.T) {
	extraction := `[{"name": "WH-1000XM5", "brand": "Sony", "confidence": 88, "matchScore": 92}]`
	llm := scriptedLLM(map[string]func(domain.CompletionRequest) (string, error){
		"extract": respond(extraction),
		"summarize": func(domain.CompletionRequest) (string, error) {
			return "", errors.New("provider down")
		},
	})
	research := &stubResearcher{result: researchWithContext("solid research", "https://shop.example.com/xm5")}
	fetcher := &stubFetcher{html: "<html>listing</html>"}
	svc, _ := newDiscoveryService(llm, research, fetcher)

	resp := svc.Discover(context.Background(), DiscoveryRequest{Query: "best headphones"}, nil)
	if len(resp.Products) != 1 {
		t.Fatalf("products = %d, want 1", len(resp.Products))
	}
	if !strings.Contains(resp.Reply, "Sony WH-1000XM5") {
		t.Errorf("reply = %q, want plain listing fallback naming the product", resp.Reply)
	}
}

func TestSelectCandidates(t *testing.T) {
	svc, _ := newDiscoveryService(scriptedLLM(nil), &stubResearcher{}, &stubFetcher{})

	extracted := []domain.CandidateProduct{{Name: "Fresh", Confidence: 75}}
	strong := domain.CacheMatch{
		Product:    domain.CachedProduct{Name: "Strong", QualityScore: 90},
		MatchScore: 71,
	}
	weak := domain.CacheMatch{
		Product:    domain.CachedProduct{Name: "Weak", QualityScore: 90},
		MatchScore: 69,
	}

	t.Run("fresh extraction always wins", func(t *testing.T) {
		got := svc.selectCandidates(extracted, []domain.CacheMatch{strong})
		if len(got) != 1 || got[0].Name != "Fresh" {
			t.Errorf("got %v, want the extracted candidate", got)
		}
	})

	t.Run("cache fallback honors the floor", func(t *testing.T) {
		got := svc.selectCandidates(nil, []domain.CacheMatch{strong, weak})
		if len(got) != 1 {
			t.Fatalf("candidates = %d, want only the match at or above 70", len(got))
		}
		if got[0].Name != "Strong" {
			t.Errorf("candidate = %q, want Strong", got[0].Name)
		}
		if got[0].Confidence != 90 || got[0].MatchScore != 71 {
			t.Errorf("scores = %v/%v, want quality 90 and match 71 carried over",
				got[0].Confidence, got[0].MatchScore)
		}
	})

	t.Run("nothing above the floor yields nothing", func(t *testing.T) {
		if got := svc.selectCandidates(nil, []domain.CacheMatch{weak}); len(got) != 0 {
			t.Errorf("candidates = %d, want 0", len(got))
		}
	})
}

func assertEventOrder(t *testing.T, got []domain.ProgressEventType, want ...domain.ProgressEventType) {
	t.Helper()
	i := 0
	for _, event := range got {
		if i < len(want) && event == want[i] {
			i++
		}
	}
	if i != len(want) {
		t.Errorf("events %v missing expected subsequence %v (matched %d)", got, want, i)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("%s did not happen in time", what)
}
