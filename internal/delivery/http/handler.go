package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/shoplens/backend/internal/domain"
	"github.com/shoplens/backend/internal/usecase"
)

// Handler holds dependencies for HTTP handlers
type Handler struct {
	discovery  *usecase.DiscoveryService
	comparison *usecase.ComparisonService
	cache      *usecase.ProductCache
	prefStore  domain.PreferenceStore
	logger     *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	discovery *usecase.DiscoveryService,
	comparison *usecase.ComparisonService,
	cache *usecase.ProductCache,
	prefStore domain.PreferenceStore,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		discovery:  discovery,
		comparison: comparison,
		cache:      cache,
		prefStore:  prefStore,
		logger:     logger,
	}
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "shoplens-backend",
		"version": "1.0.0",
	})
}

// Query handles one shopping-assistant query and returns the final payload
func (h *Handler) Query(c *gin.Context) {
	var req usecase.DiscoveryRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}

	resp := h.discovery.Discover(c.Request.Context(), req, nil)
	c.JSON(http.StatusOK, resp)
}

// QueryStream handles a query over SSE: ordered progress events, then the
// final payload, then an explicit done sentinel.
func (h *Handler) QueryStream(c *gin.Context) {
	var req usecase.DiscoveryRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	events := make(chan domain.ProgressEvent, 32)
	var resp *usecase.DiscoveryResponse
	go func() {
		defer close(events)
		resp = h.discovery.Discover(c.Request.Context(), req, func(ev domain.ProgressEvent) {
			// Drop events rather than stall the pipeline on a slow consumer
			select {
			case events <- ev:
			default:
			}
		})
	}()

	clientGone := c.Stream(func(w io.Writer) bool {
		ev, ok := <-events
		if !ok {
			return false
		}
		c.SSEvent(string(ev.Type), ev)
		return true
	})
	if clientGone {
		h.logger.Debug("stream client disconnected", zap.String("query", req.Query))
		return
	}

	c.SSEvent("payload", resp)
	c.SSEvent(string(domain.EventDone), gin.H{"done": true})
	c.Writer.Flush()
}

// Compare handles a structured comparison of user-selected products
func (h *Handler) Compare(c *gin.Context) {
	var req usecase.ComparisonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := h.comparison.Compare(c.Request.Context(), req, nil)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidRequest) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "select at least 2 products to compare"})
			return
		}
		h.logger.Warn("comparison failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "comparison research unavailable"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetPreferences returns a user's learned interests
func (h *Handler) GetPreferences(c *gin.Context) {
	userID := c.Param("userId")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return
	}

	prefs, err := h.prefStore.GetPreferences(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrPreferencesNotFound) {
			c.JSON(http.StatusOK, &domain.UserPreferences{UserID: userID})
			return
		}
		h.logger.Error("preference lookup failed", zap.String("userId", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "preference store unavailable"})
		return
	}

	c.JSON(http.StatusOK, prefs)
}

// GetSuggestions turns a user's top interests into query suggestions
func (h *Handler) GetSuggestions(c *gin.Context) {
	userID := c.Param("userId")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return
	}

	prefs, err := h.prefStore.GetPreferences(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrPreferencesNotFound) {
			c.JSON(http.StatusOK, gin.H{"suggestions": []string{}})
			return
		}
		h.logger.Error("preference lookup failed", zap.String("userId", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "preference store unavailable"})
		return
	}

	suggestions := make([]string, 0, 6)
	for _, cat := range prefs.TopCategories(3) {
		suggestions = append(suggestions, "best "+cat.Name)
	}
	for _, brand := range prefs.TopBrands(3) {
		suggestions = append(suggestions, "new "+brand.Name+" products")
	}

	c.JSON(http.StatusOK, gin.H{"suggestions": suggestions})
}

// PurgeProducts clears the product cache (administrative operation)
func (h *Handler) PurgeProducts(c *gin.Context) {
	if err := h.cache.Purge(c.Request.Context()); err != nil {
		h.logger.Error("cache purge failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "purge failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"purged": true})
}
