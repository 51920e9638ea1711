package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/shoplens/backend/internal/domain"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want *float64
	}{
		{"plain number", "150", ptrFloat(150)},
		{"dollar sign", "$149.99", ptrFloat(149.99)},
		{"thousands separator", "$1,299", ptrFloat(1299)},
		{"range takes lower bound", "$150-200", ptrFloat(150)},
		{"range with spaces", "150 - 200", ptrFloat(150)},
		{"euro sign", "€85", ptrFloat(85)},
		{"usd suffix", "299 USD", ptrFloat(299)},
		{"free is zero, not unknown", "$0", ptrFloat(0)},
		{"empty", "", nil},
		{"not available", "N/A", nil},
		{"unknown", "unknown", nil},
		{"prose", "around twenty dollars", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParsePrice(tt.raw)
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("ParsePrice(%q) = %v, want nil", tt.raw, *got)
			case tt.want != nil && got == nil:
				t.Errorf("ParsePrice(%q) = nil, want %v", tt.raw, *tt.want)
			case tt.want != nil && got != nil && *got != *tt.want:
				t.Errorf("ParsePrice(%q) = %v, want %v", tt.raw, *got, *tt.want)
			}
		})
	}
}

func ptrFloat(v float64) *float64 { return &v }

func purchasePageResearch(urls ...string) *domain.ResearchResult {
	result := &domain.ResearchResult{Context: "retail listings"}
	for _, u := range urls {
		result.Sources = append(result.Sources, domain.ResearchSource{Title: "listing", URL: u})
	}
	return result
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	candidate := domain.CandidateProduct{Name: "WH-1000XM5", Brand: "Sony"}

	t.Run("verified page yields resolved product", func(t *testing.T) {
		research := &stubResearcher{result: purchasePageResearch("https://shop.example.com/xm5")}
		fetcher := &stubFetcher{html: "<html>Sony WH-1000XM5 $349.99 Add to cart</html>"}
		llm := &stubGenerator{responses: []string{
			`{"isPurchasePage": true, "retailer": "Example Shop", "price": "$349.99",
			  "images": ["https://img.example.com/xm5.jpg"]}`,
		}}
		resolver := NewResolver(research, fetcher, llm, ResolverConfig{}, zap.NewNop())

		got, err := resolver.Resolve(ctx, candidate)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.URL != "https://shop.example.com/xm5" {
			t.Errorf("url = %q", got.URL)
		}
		if got.Retailer != "Example Shop" {
			t.Errorf("retailer = %q", got.Retailer)
		}
		if got.Price == nil || *got.Price != 349.99 {
			t.Errorf("price = %v, want 349.99", got.Price)
		}
		if got.PriceEstimated {
			t.Error("priceEstimated = true for a live listed price")
		}
	})

	t.Run("falls through rejected sources to a later one", func(t *testing.T) {
		research := &stubResearcher{result: purchasePageResearch(
			"https://blog.example.com/review",
			"https://shop.example.com/xm5",
		)}
		fetcher := &stubFetcher{html: "<html></html>"}
		llm := &stubGenerator{responses: []string{
			`{"isPurchasePage": false}`,
			`{"isPurchasePage": true, "retailer": "Example Shop", "price": "349"}`,
		}}
		resolver := NewResolver(research, fetcher, llm, ResolverConfig{}, zap.NewNop())

		got, err := resolver.Resolve(ctx, candidate)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.URL != "https://shop.example.com/xm5" {
			t.Errorf("url = %q, want the second source", got.URL)
		}
	})

	t.Run("no verified page among sources", func(t *testing.T) {
		research := &stubResearcher{result: purchasePageResearch(
			"https://a.example.com", "https://b.example.com",
		)}
		fetcher := &stubFetcher{html: "<html></html>"}
		llm := &stubGenerator{responses: []string{`{"isPurchasePage": false}`}}
		resolver := NewResolver(research, fetcher, llm, ResolverConfig{}, zap.NewNop())

		_, err := resolver.Resolve(ctx, candidate)
		if !errors.Is(err, domain.ErrNoVerifiedPage) {
			t.Errorf("err = %v, want ErrNoVerifiedPage", err)
		}
	})

	t.Run("verification stops after three sources", func(t *testing.T) {
		research := &stubResearcher{result: purchasePageResearch(
			"https://1.example.com", "https://2.example.com",
			"https://3.example.com", "https://4.example.com",
		)}
		fetcher := &stubFetcher{html: "<html></html>"}
		llm := &stubGenerator{responses: []string{`{"isPurchasePage": false}`}}
		resolver := NewResolver(research, fetcher, llm, ResolverConfig{}, zap.NewNop())

		resolver.Resolve(ctx, candidate)
		if len(fetcher.urls) != maxVerificationSources {
			t.Errorf("fetched %d sources, want %d", len(fetcher.urls), maxVerificationSources)
		}
	})

	t.Run("fetch failures skip to the next source", func(t *testing.T) {
		research := &stubResearcher{result: purchasePageResearch("https://dead.example.com")}
		fetcher := &stubFetcher{err: domain.ErrFetchFailure}
		llm := &stubGenerator{responses: []string{`{"isPurchasePage": true}`}}
		resolver := NewResolver(research, fetcher, llm, ResolverConfig{}, zap.NewNop())

		_, err := resolver.Resolve(ctx, candidate)
		if !errors.Is(err, domain.ErrNoVerifiedPage) {
			t.Errorf("err = %v, want ErrNoVerifiedPage when every fetch fails", err)
		}
	})

	t.Run("missing live price triggers estimation", func(t *testing.T) {
		research := &stubResearcher{result: purchasePageResearch("https://shop.example.com/xm5")}
		fetcher := &stubFetcher{html: "<html></html>"}
		llm := &stubGenerator{fn: func(req domain.CompletionRequest) (string, error) {
			if strings.Contains(req.System, "estimate") {
				return "250-300", nil
			}
			return `{"isPurchasePage": true, "retailer": "Example Shop", "price": ""}`, nil
		}}
		resolver := NewResolver(research, fetcher, llm, ResolverConfig{}, zap.NewNop())

		got, err := resolver.Resolve(ctx, candidate)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Price == nil || *got.Price != 250 {
			t.Errorf("price = %v, want estimated lower bound 250", got.Price)
		}
		if !got.PriceEstimated {
			t.Error("priceEstimated = false, want true for estimated price")
		}
	})

	t.Run("estimation failure leaves price unknown", func(t *testing.T) {
		research := &stubResearcher{result: purchasePageResearch("https://shop.example.com/xm5")}
		fetcher := &stubFetcher{html: "<html></html>"}
		llm := &stubGenerator{fn: func(req domain.CompletionRequest) (string, error) {
			if strings.Contains(req.System, "estimate") {
				return "unknown", nil
			}
			return `{"isPurchasePage": true, "price": "N/A"}`, nil
		}}
		resolver := NewResolver(research, fetcher, llm, ResolverConfig{}, zap.NewNop())

		got, err := resolver.Resolve(ctx, candidate)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Price != nil {
			t.Errorf("price = %v, want nil when estimation cannot help", *got.Price)
		}
		if got.PriceEstimated {
			t.Error("priceEstimated = true without an estimate")
		}
	})
}

func TestResolveAll(t *testing.T) {
	ctx := context.Background()

	candidates := []domain.CandidateProduct{
		{Name: "Alpha", Brand: "A"},
		{Name: "Broken", Brand: "B"},
		{Name: "Gamma", Brand: "C"},
	}

	research := &stubResearcher{fn: func(query string) (*domain.ResearchResult, error) {
		if strings.Contains(query, "Broken") {
			return nil, domain.ErrResearchFailure
		}
		return purchasePageResearch("https://shop.example.com/item"), nil
	}}
	fetcher := &stubFetcher{html: "<html></html>"}
	llm := &stubGenerator{fn: func(req domain.CompletionRequest) (string, error) {
		return `{"isPurchasePage": true, "retailer": "Shop", "price": "100"}`, nil
	}}
	resolver := NewResolver(research, fetcher, llm, ResolverConfig{MaxParallel: 2}, zap.NewNop())

	var notified int
	got := resolver.ResolveAll(ctx, candidates, func(domain.ResolvedProduct) { notified++ })

	if len(got) != 2 {
		t.Fatalf("resolved = %d, want 2 (failed candidate excluded)", len(got))
	}
	if got[0].Name != "Alpha" || got[1].Name != "Gamma" {
		t.Errorf("order = %s, %s; want Alpha, Gamma (input order preserved)", got[0].Name, got[1].Name)
	}
	if notified != 2 {
		t.Errorf("onResolved fired %d times, want 2", notified)
	}
}
