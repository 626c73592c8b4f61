package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/adot20/product-search-backend/config"
	"github.com/adot20/product-search-backend/internal/domain"
)

// TestMain sets up test environment before running tests
func TestMain(m *testing.M) {
	// Set Gin to test mode once for all tests
	gin.SetMode(gin.TestMode)

	os.Exit(m.Run())
}

// MockSearchService answers every supported site with a fixed record
type MockSearchService struct {
	gotQuery string
	gotSites []domain.SiteID
}

func (m *MockSearchService) Search(ctx context.Context, query string, sites []domain.SiteID) []domain.SiteResult {
	m.gotQuery = query
	m.gotSites = sites

	results := make([]domain.SiteResult, len(sites))
	for i, site := range sites {
		if !site.Valid() {
			results[i] = domain.Failed(site, query, domain.ReasonNotSupported)
			continue
		}
		searchURL := domain.SearchURL(site, query)
		results[i] = domain.Found(site, &domain.ProductRecord{
			Title:      "Nivea Soft Cream 100ml",
			Price:      "₹199",
			ProductURL: searchURL,
			SearchURL:  searchURL,
		}, false)
	}
	return results
}

func (m *MockSearchService) Sites() []domain.SiteID {
	return domain.AllSites()
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:           "8080",
			Environment:    "test",
			AllowedOrigins: []string{"chrome-extension://*", "http://localhost:3000"},
		},
		Cache: config.CacheConfig{
			Type: "memory",
		},
	}
}

// setupTestRouter creates a test router backed by the given service
func setupTestRouter(service SearchService) *gin.Engine {
	handler := NewHandler(service, "memory", nil)
	return SetupRouter(testConfig(), handler, nil)
}

func postJSON(router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// TestHealthCheckEndpoint tests the health check endpoints
func TestHealthCheckEndpoint(t *testing.T) {
	for _, path := range []string{"/", "/health"} {
		t.Run("GET "+path, func(t *testing.T) {
			router := setupTestRouter(&MockSearchService{})

			req, _ := http.NewRequest("GET", path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
			}

			var response struct {
				Status         string   `json:"status"`
				Service        string   `json:"service"`
				SupportedSites []string `json:"supportedSites"`
				Cache          string   `json:"cache"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
				t.Fatalf("Failed to unmarshal response: %v", err)
			}

			if response.Status != "healthy" {
				t.Errorf("status = %q, want %q", response.Status, "healthy")
			}
			if response.Service != "product-search-backend" {
				t.Errorf("service = %q, want %q", response.Service, "product-search-backend")
			}
			if len(response.SupportedSites) != 6 || response.SupportedSites[0] != "amazon" {
				t.Errorf("supportedSites = %v, want the six registered sites", response.SupportedSites)
			}
			if response.Cache != "memory" {
				t.Errorf("cache = %q, want %q", response.Cache, "memory")
			}
		})
	}

	t.Run("health works without a search service", func(t *testing.T) {
		router := setupTestRouter(nil)

		req, _ := http.NewRequest("GET", "/health", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusOK)
		}
	})
}

// TestSearchEndpoint tests both search paths end to end through the router
func TestSearchEndpoint(t *testing.T) {
	for _, path := range []string{"/search", "/api/v1/search"} {
		t.Run("POST "+path, func(t *testing.T) {
			service := &MockSearchService{}
			router := setupTestRouter(service)

			w := postJSON(router, path, `{"query":"  nivea soft cream ","sites":["Flipkart","amazon","ebay"]}`)

			if w.Code != http.StatusOK {
				t.Fatalf("Status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
			}
			if service.gotQuery != "nivea soft cream" {
				t.Errorf("query passed to service = %q, want trimmed query", service.gotQuery)
			}

			var response struct {
				Query   string                   `json:"query"`
				Results []map[string]interface{} `json:"results"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
				t.Fatalf("Failed to unmarshal response: %v", err)
			}

			if response.Query != "nivea soft cream" {
				t.Errorf("query = %q, want %q", response.Query, "nivea soft cream")
			}
			if len(response.Results) != 3 {
				t.Fatalf("len(results) = %d, want 3", len(response.Results))
			}

			wantSites := []string{"flipkart", "amazon", "ebay"}
			for i, want := range wantSites {
				if got := response.Results[i]["site"]; got != want {
					t.Errorf("results[%d].site = %v, want %q", i, got, want)
				}
			}

			if got := response.Results[0]["price"]; got != "₹199" {
				t.Errorf("results[0].price = %v, want ₹199", got)
			}
			if got := response.Results[2]["error"]; got != true {
				t.Errorf("results[2].error = %v, want true", got)
			}
			if got := response.Results[2]["reason"]; got != "not-supported" {
				t.Errorf("results[2].reason = %v, want not-supported", got)
			}
		})
	}
}

// TestSearchValidation tests the rejected request shapes
func TestSearchValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "missing query", body: `{"sites":["amazon"]}`},
		{name: "blank query", body: `{"query":"   ","sites":["amazon"]}`},
		{name: "missing sites", body: `{"query":"nivea"}`},
		{name: "empty sites", body: `{"query":"nivea","sites":[]}`},
		{name: "malformed json", body: `{"query":`},
		{name: "wrong types", body: `{"query":42,"sites":"amazon"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := &MockSearchService{}
			router := setupTestRouter(service)

			w := postJSON(router, "/search", tt.body)

			if w.Code != http.StatusBadRequest {
				t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
			}

			var response ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
				t.Fatalf("Failed to unmarshal response: %v", err)
			}
			if response.Error != "invalid_request" {
				t.Errorf("error = %q, want %q", response.Error, "invalid_request")
			}
			if service.gotSites != nil {
				t.Error("service should not be called for an invalid request")
			}
		})
	}
}

// TestSearchWithoutService tests the unconfigured service response
func TestSearchWithoutService(t *testing.T) {
	router := setupTestRouter(nil)

	w := postJSON(router, "/api/v1/search", `{"query":"nivea","sites":["amazon"]}`)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

// TestRouting tests that only the registered method/path pairs resolve
func TestRouting(t *testing.T) {
	tests := []struct {
		method string
		path   string
	}{
		{"GET", "/search"},
		{"GET", "/api/v1/search"},
		{"POST", "/api/search"},
		{"GET", "/unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			router := setupTestRouter(&MockSearchService{})

			req, _ := http.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != http.StatusNotFound {
				t.Errorf("Status = %d, want %d", w.Code, http.StatusNotFound)
			}
		})
	}
}

// TestCORSIntegration tests CORS headers on the real routes
func TestCORSIntegration(t *testing.T) {
	t.Run("preflight from extension", func(t *testing.T) {
		router := setupTestRouter(&MockSearchService{})

		req, _ := http.NewRequest("OPTIONS", "/search", nil)
		req.Header.Set("Origin", "chrome-extension://abcdefghijklmnop")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusNoContent {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusNoContent)
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "chrome-extension://abcdefghijklmnop" {
			t.Errorf("Access-Control-Allow-Origin = %q, want the extension origin", got)
		}
		if got := w.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, "POST") {
			t.Errorf("Access-Control-Allow-Methods = %q, want POST", got)
		}
	})

	t.Run("search response carries CORS for localhost", func(t *testing.T) {
		router := setupTestRouter(&MockSearchService{})

		req, _ := http.NewRequest("POST", "/search", strings.NewReader(`{"query":"nivea","sites":["amazon"]}`))
		req.Header.Set("Origin", "http://localhost:3000")
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
			t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, "http://localhost:3000")
		}
	})

	t.Run("unknown origin gets no CORS headers", func(t *testing.T) {
		router := setupTestRouter(&MockSearchService{})

		req, _ := http.NewRequest("GET", "/health", nil)
		req.Header.Set("Origin", "https://evil.example")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("Access-Control-Allow-Origin = %q, want empty", got)
		}
	})
}

// TestRequestIDIntegration tests that every response carries a request id
func TestRequestIDIntegration(t *testing.T) {
	router := setupTestRouter(&MockSearchService{})

	w := postJSON(router, "/search", `{"query":"nivea","sites":["amazon"]}`)

	if got := w.Header().Get("X-Request-ID"); got == "" {
		t.Error("X-Request-ID header missing")
	}
}

// TestJSONResponses tests that all responses are valid JSON
func TestJSONResponses(t *testing.T) {
	endpoints := []struct {
		method string
		path   string
		body   string
	}{
		{"GET", "/health", ""},
		{"POST", "/search", `{"query":"nivea","sites":["amazon"]}`},
		{"POST", "/api/v1/search", `{}`},
	}

	for _, endpoint := range endpoints {
		t.Run(endpoint.method+" "+endpoint.path, func(t *testing.T) {
			router := setupTestRouter(&MockSearchService{})

			req, _ := http.NewRequest(endpoint.method, endpoint.path, strings.NewReader(endpoint.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			gotContentType := w.Header().Get("Content-Type")
			wantContentType := "application/json; charset=utf-8"
			if gotContentType != wantContentType {
				t.Errorf("Content-Type = %q, want %q", gotContentType, wantContentType)
			}

			var response map[string]interface{}
			if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
				t.Errorf("Response should be valid JSON, got error: %v", err)
			}
		})
	}
}
