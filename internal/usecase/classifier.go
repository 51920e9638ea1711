package usecase

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/shoplens/backend/internal/domain"
)

const classifierSystemPrompt = `You classify shopping-assistant queries into exactly one mode.

Rules:
- "comparison": the query names 2+ specific products, or uses vs/versus/compare phrasing.
- "ask": the query asks about a concept, feature, or how something works.
- "search": the query seeks product recommendations (best, recommend, looking for, budget limits).
- "general_chat": anything else (greetings, small talk, off-topic).

Respond with only the mode word: ask, search, comparison, or general_chat.`

// Rule-cascade patterns, compiled once at package level
var (
	comparisonPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bvs\.?\b`),
		regexp.MustCompile(`(?i)\bversus\b`),
		regexp.MustCompile(`(?i)\bcompare\b`),
		regexp.MustCompile(`(?i)\bwhich\s+is\s+better\b`),
		regexp.MustCompile(`(?i)\bdifference\s+between\s+\S+.*\band\b`),
	}

	askPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^\s*what\s+(is|are)\b`),
		regexp.MustCompile(`(?i)^\s*how\s+(does|do)\b`),
		regexp.MustCompile(`(?i)\bexplain\b`),
		regexp.MustCompile(`(?i)^\s*why\s+(is|are|does|do)\b`),
	}

	// Recommendation-shape: best/recommend/good/top followed by a noun phrase.
	// When a question also matches this, shopping intent wins over ask.
	recommendShapePattern = regexp.MustCompile(`(?i)\b(best|recommend(ed)?|good|top)\s+\w+`)

	shoppingPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bbest\b`),
		regexp.MustCompile(`(?i)\brecommend`),
		regexp.MustCompile(`(?i)\blooking\s+for\b`),
		regexp.MustCompile(`(?i)\bunder\s+\$?\d+`),
		regexp.MustCompile(`(?i)\bbudget\b`),
	}
)

// productCategoryTerms are category keywords whose bare presence signals
// shopping intent even without recommendation phrasing
var productCategoryTerms = map[string]bool{
	"headphones": true, "earbuds": true, "speaker": true, "soundbar": true,
	"laptop": true, "desktop": true, "tablet": true, "phone": true,
	"smartphone": true, "monitor": true, "keyboard": true, "mouse": true,
	"webcam": true, "router": true, "printer": true, "camera": true,
	"drone": true, "tv": true, "television": true, "projector": true,
	"smartwatch": true, "tracker": true, "console": true, "controller": true,
	"vacuum": true, "blender": true, "toaster": true, "microwave": true,
	"fridge": true, "dishwasher": true, "airfryer": true, "kettle": true,
	"mattress": true, "pillow": true, "desk": true, "chair": true,
	"backpack": true, "luggage": true, "wallet": true, "sunglasses": true,
	"shoes": true, "sneakers": true, "boots": true, "jacket": true,
	"stroller": true, "treadmill": true, "bike": true, "scooter": true,
}

// Classifier labels a query as ask, search, comparison, or general_chat.
// The generative call is primary; a deterministic rule cascade backs it up.
type Classifier struct {
	llm    domain.TextGenerator
	logger *zap.Logger
}

// NewClassifier creates a mode classifier
func NewClassifier(llm domain.TextGenerator, logger *zap.Logger) *Classifier {
	return &Classifier{llm: llm, logger: logger}
}

// Classify determines the mode for a query. It never fails: any generation
// error or ambiguous label falls back to the rule cascade.
func (c *Classifier) Classify(ctx context.Context, query string, recentHistory []string) domain.Mode {
	if mode, ok := c.classifyByModel(ctx, query, recentHistory); ok {
		return mode
	}
	return classifyByRules(query)
}

func (c *Classifier) classifyByModel(ctx context.Context, query string, recentHistory []string) (domain.Mode, bool) {
	if c.llm == nil {
		return "", false
	}

	var sb strings.Builder
	if len(recentHistory) > 0 {
		sb.WriteString("Recent queries:\n")
		for _, h := range recentHistory {
			sb.WriteString("- " + h + "\n")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Query: " + query)

	resp, err := c.llm.Complete(ctx, domain.CompletionRequest{
		System:      classifierSystemPrompt,
		Messages:    []domain.Message{{Role: "user", Content: sb.String()}},
		MaxTokens:   16,
		Temperature: 0,
	})
	if err != nil {
		c.logger.Warn("model classification failed, using rules", zap.Error(err))
		return "", false
	}

	label := strings.ToLower(strings.TrimSpace(resp))
	label = strings.Trim(label, `"'.`)
	switch domain.Mode(label) {
	case domain.ModeAsk, domain.ModeSearch, domain.ModeComparison, domain.ModeGeneralChat:
		return domain.Mode(label), true
	}

	c.logger.Warn("model returned ambiguous mode label, using rules", zap.String("label", label))
	return "", false
}

// classifyByRules is the deterministic fallback cascade. Precedence is
// deliberate: explicit comparison intent dominates everything, and naming a
// concrete product need dominates vague conceptual phrasing.
func classifyByRules(query string) domain.Mode {
	// 1. Comparison phrasing
	for _, p := range comparisonPatterns {
		if p.MatchString(query) {
			return domain.ModeComparison
		}
	}

	// 2. Ask-style questions, unless the query is also recommendation-shaped
	for _, p := range askPatterns {
		if p.MatchString(query) {
			if recommendShapePattern.MatchString(query) {
				return domain.ModeSearch
			}
			return domain.ModeAsk
		}
	}

	// 3. Recommendation/shopping phrasing
	for _, p := range shoppingPatterns {
		if p.MatchString(query) {
			return domain.ModeSearch
		}
	}

	// 4. Bare product-category keyword
	for _, word := range strings.Fields(strings.ToLower(query)) {
		word = strings.Trim(word, ",.!?;:'\"")
		if productCategoryTerms[word] {
			return domain.ModeSearch
		}
	}

	// 5. Default
	return domain.ModeAsk
}
