package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bobfox23/Certificate-tool/config"
)

const validExtractionJSON = `{
	"reportNumber": "R-1",
	"certificationDate": "2024-01-01",
	"supplierRegistrationNumber": null,
	"gameInstances": [
		{"gameName": "Starburst", "gameCode": null, "files": [{"name": "a.dll"}]}
	]
}`

func testGeminiService(t *testing.T, serverURL string) *GeminiService {
	t.Helper()
	return NewGeminiService(&config.GeminiConfig{
		BaseURL:      serverURL,
		Model:        "gemini-test",
		RetryDelayMS: 1, // keep retries fast in tests
	})
}

func candidateResponse(text string) string {
	resp := map[string]any{
		"candidates": []any{
			map[string]any{
				"content": map[string]any{
					"parts": []any{map[string]any{"text": text}},
				},
			},
		},
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

func TestGeminiExtractFromText(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if !strings.Contains(r.URL.Path, "gemini-test:generateContent") {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "test-key" {
			t.Error("Expected API key in query string")
		}
		json.NewDecoder(r.Body).Decode(&gotBody)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(candidateResponse(validExtractionJSON)))
	}))
	defer server.Close()

	svc := testGeminiService(t, server.URL)
	info, err := svc.ExtractFromText(context.Background(), "certificate text", "test-key")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if info.ReportNumber == nil || *info.ReportNumber != "R-1" {
		t.Error("Expected report number R-1")
	}
	if len(info.GameInstances) != 1 {
		t.Errorf("Expected 1 instance, got %d", len(info.GameInstances))
	}

	// System instruction and document text must be in the request
	if gotBody["system_instruction"] == nil {
		t.Error("Expected system instruction in request")
	}
	raw, _ := json.Marshal(gotBody)
	if !strings.Contains(string(raw), "certificate text") {
		t.Error("Expected document text in request payload")
	}
}

func TestGeminiExtractFromImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		raw, _ := json.Marshal(body)
		if !strings.Contains(string(raw), "inline_data") {
			t.Error("Expected inline image data in request")
		}
		if !strings.Contains(string(raw), "image/png") {
			t.Error("Expected mime type in request")
		}
		w.Write([]byte(candidateResponse(validExtractionJSON)))
	}))
	defer server.Close()

	svc := testGeminiService(t, server.URL)
	_, err := svc.ExtractFromImage(context.Background(), []byte{0x89, 0x50}, "image/png", "test-key")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
}

func TestGeminiFencedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(candidateResponse("```json\n" + validExtractionJSON + "\n```")))
	}))
	defer server.Close()

	svc := testGeminiService(t, server.URL)
	info, err := svc.ExtractFromText(context.Background(), "text", "k")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if info.ReportNumber == nil || *info.ReportNumber != "R-1" {
		t.Error("Expected fenced response to be parsed")
	}
}

func TestGeminiRetryBound(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"code":500,"message":"internal error","status":"INTERNAL"}}`))
	}))
	defer server.Close()

	svc := testGeminiService(t, server.URL)
	_, err := svc.ExtractFromText(context.Background(), "text", "k")
	if err == nil {
		t.Fatal("Expected error after exhausting retries")
	}
	if attempts != 3 {
		t.Errorf("Expected exactly 3 attempts, got %d", attempts)
	}
	var te *TransientError
	if !errors.As(err, &te) {
		t.Errorf("Expected TransientError, got %T: %v", err, err)
	}
}

func TestGeminiTransientThenSuccess(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(candidateResponse(validExtractionJSON)))
	}))
	defer server.Close()

	svc := testGeminiService(t, server.URL)
	info, err := svc.ExtractFromText(context.Background(), "text", "k")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if info == nil {
		t.Fatal("Expected extraction result")
	}
	if attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", attempts)
	}
}

func TestGeminiInvalidCredentialNotRetried(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"code":403,"message":"permission denied","status":"PERMISSION_DENIED"}}`))
	}))
	defer server.Close()

	svc := testGeminiService(t, server.URL)
	_, err := svc.ExtractFromText(context.Background(), "text", "bad-key")
	if !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("Expected ErrInvalidCredential, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected exactly 1 attempt, got %d", attempts)
	}
}

func TestGeminiBadRequestAPIKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"message":"API key not valid. Please pass a valid API key.","status":"INVALID_ARGUMENT"}}`))
	}))
	defer server.Close()

	svc := testGeminiService(t, server.URL)
	_, err := svc.ExtractFromText(context.Background(), "text", "bad-key")
	if !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("Expected ErrInvalidCredential, got %v", err)
	}
}

func TestGeminiParseErrorNotRetried(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.Write([]byte(candidateResponse("this is not JSON at all")))
	}))
	defer server.Close()

	svc := testGeminiService(t, server.URL)
	_, err := svc.ExtractFromText(context.Background(), "text", "k")
	if err == nil {
		t.Fatal("Expected parse error")
	}
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Errorf("Expected *ParseError, got %T", err)
	}
	if attempts != 1 {
		t.Errorf("Expected exactly 1 attempt, got %d", attempts)
	}
}

func TestGeminiSchemaErrorNotRetried(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.Write([]byte(candidateResponse(`{"reportNumber": "R-1"}`)))
	}))
	defer server.Close()

	svc := testGeminiService(t, server.URL)
	_, err := svc.ExtractFromText(context.Background(), "text", "k")
	if err == nil {
		t.Fatal("Expected schema error")
	}
	var se *SchemaError
	if !errors.As(err, &se) {
		t.Errorf("Expected *SchemaError, got %T", err)
	}
	if attempts != 1 {
		t.Errorf("Expected exactly 1 attempt, got %d", attempts)
	}
}

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"no fence", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"fence with surrounding whitespace", "  ```json\n{\"a\":1}\n```  ", `{"a":1}`},
		{"multiline body", "```json\n{\n  \"a\": 1\n}\n```", "{\n  \"a\": 1\n}"},
		{"unclosed fence left alone", "```json\n{\"a\":1}", "```json\n{\"a\":1}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := stripCodeFence(tt.input)
			if got != tt.expected {
				t.Errorf("stripCodeFence(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
