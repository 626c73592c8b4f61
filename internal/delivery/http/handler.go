package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/adot20/product-search-backend/internal/domain"
)

const (
	serviceName    = "product-search-backend"
	serviceVersion = "1.0.0"
)

// SearchService is the search usecase as seen by the HTTP layer
type SearchService interface {
	Search(ctx context.Context, query string, sites []domain.SiteID) []domain.SiteResult
	Sites() []domain.SiteID
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	searchService SearchService
	cacheType     string
	logger        *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(searchService SearchService, cacheType string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		searchService: searchService,
		cacheType:     cacheType,
		logger:        logger.Named("http"),
	}
}

// SearchRequest is the body of a search call
type SearchRequest struct {
	Query string   `json:"query"`
	Sites []string `json:"sites"`
}

// SearchResponse carries one result per requested site, in request order
type SearchResponse struct {
	Results   []domain.SiteResult `json:"results"`
	Query     string              `json:"query"`
	Timestamp time.Time           `json:"timestamp"`
	ElapsedMs int64               `json:"elapsedMs"`
}

// ErrorResponse is returned for rejected requests
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	sites := []domain.SiteID{}
	if h.searchService != nil {
		sites = h.searchService.Sites()
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"service":        serviceName,
		"version":        serviceVersion,
		"supportedSites": sites,
		"cache":          h.cacheType,
	})
}

// Search handles price comparison requests
func (h *Handler) Search(c *gin.Context) {
	if h.searchService == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "service_unavailable",
			Message: "Search service not configured",
		})
		return
	}

	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Request body must be JSON with query and sites",
		})
		return
	}

	query := strings.TrimSpace(req.Query)
	if query == "" || len(req.Sites) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Query and sites are required",
		})
		return
	}

	start := time.Now()
	results := h.searchService.Search(c.Request.Context(), query, parseSites(req.Sites))

	h.logger.Info("search completed",
		zap.String("request_id", c.GetString(requestIDKey)),
		zap.String("query", query),
		zap.Int("sites", len(results)),
		zap.Duration("elapsed", time.Since(start)))

	c.JSON(http.StatusOK, SearchResponse{
		Results:   results,
		Query:     query,
		Timestamp: time.Now().UTC(),
		ElapsedMs: time.Since(start).Milliseconds(),
	})
}

// parseSites maps names to site identifiers. Unknown names are kept, lowercased,
// so the search reports them as not supported at their position.
func parseSites(names []string) []domain.SiteID {
	out := make([]domain.SiteID, len(names))
	for i, name := range names {
		id, err := domain.ParseSiteID(name)
		if err != nil {
			id = domain.SiteID(strings.ToLower(strings.TrimSpace(name)))
		}
		out[i] = id
	}
	return out
}
