package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func idemRouter(opts IdempotencyOptions, lookup IdempotencyLookup) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(IdempotencyValidator(opts, lookup))
	r.POST("/op", func(c *gin.Context) {
		key, _ := GetIdempotencyKey(c)
		c.JSON(http.StatusOK, gin.H{"key": key, "replay": IsReplay(c)})
	})
	return r
}

func TestIdempotencyValidator_NoHeaderIsNoop(t *testing.T) {
	r := idemRouter(IdempotencyOptions{}, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/op", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["key"] != "" || body["replay"] != false {
		t.Fatalf("expected empty key and no replay, got %v", body)
	}
}

func TestIdempotencyValidator_InvalidKeyRejected(t *testing.T) {
	r := idemRouter(IdempotencyOptions{}, nil)

	cases := []string{
		"has spaces",
		"emoji-✗",
		strings.Repeat("a", 201), // default MaxLen is 200
	}
	for _, key := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/op", nil)
		req.Header.Set(HeaderIdempotencyKey, key)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("key %q: expected 400, got %d", key, w.Code)
		}
		if !strings.Contains(w.Body.String(), "bad_idempotency_key") {
			t.Fatalf("key %q: expected error code in body, got %s", key, w.Body.String())
		}
	}
}

func TestIdempotencyValidator_ValidKeyStashed(t *testing.T) {
	r := idemRouter(IdempotencyOptions{}, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/op", nil)
	req.Header.Set(HeaderIdempotencyKey, "order-2026:retry.1")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["key"] != "order-2026:retry.1" || body["replay"] != false {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestIdempotencyValidator_ReplayMarksBypass(t *testing.T) {
	lookup := func(ctx context.Context, key string, now time.Time) (bool, error) {
		return key == "seen-before", nil
	}
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(IdempotencyValidator(IdempotencyOptions{}, lookup))
	r.POST("/op", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"replay": IsReplay(c), "bypass": IsRateBypass(c)})
	})

	// Known key -> replay + rate bypass
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/op", nil)
	req.Header.Set(HeaderIdempotencyKey, "seen-before")
	r.ServeHTTP(w, req)
	if !strings.Contains(w.Body.String(), `"replay":true`) || !strings.Contains(w.Body.String(), `"bypass":true`) {
		t.Fatalf("expected replay+bypass flags, got %s", w.Body.String())
	}

	// Unknown key -> neither
	w2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodPost, "/op", nil)
	req2.Header.Set(HeaderIdempotencyKey, "fresh-key")
	r.ServeHTTP(w2, req2)
	if !strings.Contains(w2.Body.String(), `"replay":false`) {
		t.Fatalf("expected no replay, got %s", w2.Body.String())
	}
}

func TestIdempotencyValidator_LookupErrorDoesNotBlock(t *testing.T) {
	lookup := func(ctx context.Context, key string, now time.Time) (bool, error) {
		return false, errors.New("store unavailable")
	}
	r := idemRouter(IdempotencyOptions{}, lookup)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/op", nil)
	req.Header.Set(HeaderIdempotencyKey, "some-key")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("lookup failure must not block the request, got %d", w.Code)
	}
}

func TestGetIdempotencyKey_AbsentAndNonString(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	if _, ok := GetIdempotencyKey(c); ok {
		t.Fatalf("expected no key on fresh context")
	}
	c.Set(ctxKeyIdemKey, 42)
	if _, ok := GetIdempotencyKey(c); ok {
		t.Fatalf("non-string value must read as absent")
	}
	if IsReplay(c) {
		t.Fatalf("expected IsReplay=false by default")
	}
	c.Set(ctxKeyIdemReplay, "yes")
	if IsReplay(c) {
		t.Fatalf("non-bool replay flag must read as false")
	}
}
