package usecase

import (
	"context"
	"sync"

	"github.com/shoplens/backend/internal/domain"
)

// stubGenerator scripts TextGenerator responses for tests. When fn is set it
// takes precedence; otherwise responses are returned in order, repeating the
// last one.
type stubGenerator struct {
	mu        sync.Mutex
	fn        func(req domain.CompletionRequest) (string, error)
	responses []string
	err       error
	calls     []domain.CompletionRequest
}

func (s *stubGenerator) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	if s.fn != nil {
		return s.fn(req)
	}
	if s.err != nil {
		return "", s.err
	}
	if len(s.responses) == 0 {
		return "", domain.ErrGenerationFailure
	}
	resp := s.responses[0]
	if len(s.responses) > 1 {
		s.responses = s.responses[1:]
	}
	return resp, nil
}

// stubResearcher scripts Researcher responses
type stubResearcher struct {
	mu      sync.Mutex
	fn      func(query string) (*domain.ResearchResult, error)
	result  *domain.ResearchResult
	err     error
	queries []string
}

func (s *stubResearcher) Search(ctx context.Context, query string, onProgress domain.ProgressFunc) (*domain.ResearchResult, error) {
	s.mu.Lock()
	s.queries = append(s.queries, query)
	s.mu.Unlock()
	if s.fn != nil {
		return s.fn(query)
	}
	if s.err != nil {
		return nil, s.err
	}
	if s.result == nil {
		return &domain.ResearchResult{}, nil
	}
	if onProgress != nil {
		for _, src := range s.result.Sources {
			onProgress(domain.NewProgressEvent(domain.EventSourceFound, src.Title, nil))
		}
	}
	return s.result, nil
}

// stubFetcher scripts PageFetcher responses
type stubFetcher struct {
	mu   sync.Mutex
	html string
	err  error
	urls []string
}

func (s *stubFetcher) Fetch(ctx context.Context, url string) (string, error) {
	s.mu.Lock()
	s.urls = append(s.urls, url)
	s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	return s.html, nil
}
