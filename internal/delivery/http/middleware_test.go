package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const extensionOrigin = "chrome-extension://kpjdmhbagcoffmjolkfmemgbolpcbdfb"

func TestIsAllowedOrigin(t *testing.T) {
	extensionAndDev := []string{"chrome-extension://*", "http://localhost:3000"}

	tests := []struct {
		name    string
		origin  string
		allowed []string
		want    bool
	}{
		{"exact extension id", extensionOrigin, []string{extensionOrigin}, true},
		{"other extension id", "chrome-extension://aaaabbbbcccc", []string{extensionOrigin}, false},
		{"extension prefix wildcard", extensionOrigin, extensionAndDev, true},
		{"dev server exact", "http://localhost:3000", extensionAndDev, true},
		{"dev server other port", "http://localhost:3001", extensionAndDev, false},
		{"retailer page origin", "https://www.amazon.in", extensionAndDev, false},
		{"bare wildcard", "moz-extension://4f2a9c1e", []string{"*"}, true},
		{"bare wildcard needs an origin", "", []string{"*"}, false},
		{"missing origin", "", extensionAndDev, false},
		{"nothing allowed", extensionOrigin, nil, false},
		{"scheme wildcard", extensionOrigin, []string{"chrome-*"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isAllowedOrigin(tt.origin, tt.allowed); got != tt.want {
				t.Errorf("isAllowedOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}

// corsRouter mounts a stub search route behind the CORS middleware
func corsRouter(allowed []string) *gin.Engine {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(CORSMiddleware(allowed))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	router.POST("/search", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"results": []string{}})
	})
	return router
}

func TestCORSMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		origin     string
		allowed    []string
		wantStatus int
		wantOrigin string
	}{
		{"extension search call", "POST", "/search", extensionOrigin, []string{"chrome-extension://*"}, http.StatusOK, extensionOrigin},
		{"extension health call", "GET", "/health", extensionOrigin, []string{"chrome-extension://*"}, http.StatusOK, extensionOrigin},
		{"allow-all default", "POST", "/search", extensionOrigin, []string{"*"}, http.StatusOK, extensionOrigin},
		{"foreign site", "POST", "/search", "https://evil.example", []string{"chrome-extension://*"}, http.StatusOK, ""},
		{"server to server call", "POST", "/search", "", []string{"*"}, http.StatusOK, ""},
		{"preflight from extension", "OPTIONS", "/search", extensionOrigin, []string{"chrome-extension://*"}, http.StatusNoContent, extensionOrigin},
		{"preflight from foreign site", "OPTIONS", "/search", "https://evil.example", []string{"chrome-extension://*"}, http.StatusNoContent, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			corsRouter(tt.allowed).ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("Status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.wantOrigin)
			}
			wantCreds := ""
			if tt.wantOrigin != "" {
				wantCreds = "true"
			}
			if got := w.Header().Get("Access-Control-Allow-Credentials"); got != wantCreds {
				t.Errorf("Access-Control-Allow-Credentials = %q, want %q", got, wantCreds)
			}
		})
	}
}

func TestCORSMiddleware_PreflightHeaders(t *testing.T) {
	req := httptest.NewRequest("OPTIONS", "/search", nil)
	req.Header.Set("Origin", extensionOrigin)
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "Content-Type, X-Request-ID")

	w := httptest.NewRecorder()
	corsRouter([]string{"chrome-extension://*"}).ServeHTTP(w, req)

	want := map[string]string{
		"Access-Control-Allow-Methods": "POST, GET, OPTIONS",
		"Access-Control-Allow-Headers": "Content-Type, Authorization, X-Requested-With, X-Request-ID",
		"Access-Control-Max-Age":       "3600",
	}
	for header, value := range want {
		if got := w.Header().Get(header); got != value {
			t.Errorf("%s = %q, want %q", header, got, value)
		}
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	newRouter := func(seen *string) *gin.Engine {
		router := gin.New()
		router.Use(RequestIDMiddleware())
		router.GET("/test", func(c *gin.Context) {
			*seen = c.GetString(requestIDKey)
			c.Status(http.StatusOK)
		})
		return router
	}

	t.Run("assigns a uuid when absent", func(t *testing.T) {
		var seen string
		w := httptest.NewRecorder()
		newRouter(&seen).ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

		got := w.Header().Get(requestIDHeader)
		if _, err := uuid.Parse(got); err != nil {
			t.Errorf("X-Request-ID = %q, want a uuid", got)
		}
		if seen != got {
			t.Errorf("context request id = %q, want %q", seen, got)
		}
	})

	t.Run("propagates the caller's id", func(t *testing.T) {
		var seen string
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set(requestIDHeader, "ext-42")
		w := httptest.NewRecorder()
		newRouter(&seen).ServeHTTP(w, req)

		if got := w.Header().Get(requestIDHeader); got != "ext-42" {
			t.Errorf("X-Request-ID = %q, want ext-42", got)
		}
		if seen != "ext-42" {
			t.Errorf("context request id = %q, want ext-42", seen)
		}
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	newRouter := func(perMinute, burst int) *gin.Engine {
		router := gin.New()
		router.Use(RateLimitMiddleware(perMinute, burst))
		router.GET("/test", func(c *gin.Context) {
			c.String(http.StatusOK, "OK")
		})
		return router
	}

	do := func(router *gin.Engine, ip string) int {
		req := httptest.NewRequest("GET", "/test", nil)
		req.RemoteAddr = ip + ":12345"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	t.Run("rejects requests beyond the burst", func(t *testing.T) {
		router := newRouter(1, 2)

		for i := 0; i < 2; i++ {
			if code := do(router, "10.0.0.1"); code != http.StatusOK {
				t.Fatalf("request %d: Status = %d, want %d", i+1, code, http.StatusOK)
			}
		}
		if code := do(router, "10.0.0.1"); code != http.StatusTooManyRequests {
			t.Errorf("Status = %d, want %d", code, http.StatusTooManyRequests)
		}
	})

	t.Run("limits each client separately", func(t *testing.T) {
		router := newRouter(1, 1)

		if code := do(router, "10.0.0.1"); code != http.StatusOK {
			t.Fatalf("first client: Status = %d, want %d", code, http.StatusOK)
		}
		if code := do(router, "10.0.0.2"); code != http.StatusOK {
			t.Errorf("second client: Status = %d, want %d", code, http.StatusOK)
		}
	})

	t.Run("disabled when per minute is zero", func(t *testing.T) {
		router := newRouter(0, 0)

		for i := 0; i < 20; i++ {
			if code := do(router, "10.0.0.1"); code != http.StatusOK {
				t.Fatalf("request %d: Status = %d, want %d", i+1, code, http.StatusOK)
			}
		}
	})
}

func TestRecoveryMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(RecoveryMiddleware(zap.NewNop()))
	router.GET("/boom", func(c *gin.Context) {
		panic("boom")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/boom", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}
