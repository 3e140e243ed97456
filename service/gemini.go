package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/bobfox23/Certificate-tool/config"
	"github.com/bobfox23/Certificate-tool/model"
	"github.com/bobfox23/Certificate-tool/pkg/logger"
)

// extractionSkeleton is the literal JSON shape the model is told to emit.
const extractionSkeleton = `{
  "reportNumber": "string or null",
  "certificationDate": "string or null",
  "supplierRegistrationNumber": "string or null",
  "gameInstances": [
    {
      "gameName": "string or null",
      "gameCode": "string or null",
      "files": [
        {"name": "string", "md5": "string or null", "sha1": "string or null"}
      ]
    }
  ]
}`

const extractionRules = `You extract structured metadata from game compliance certificate documents.
Return ONLY a JSON object with exactly this shape:
` + extractionSkeleton + `

Field rules:
- "reportNumber": the certificate or report reference number.
- "certificationDate": the certification or issue date, as printed.
- "supplierRegistrationNumber": the supplier's registration number.
- "gameInstances": one entry per game covered by the certificate; empty array if none.
- "gameName": the game title as printed.
- "gameCode": ONLY a code explicitly labeled as an IMS or integration-system code. A generic "game code" column is NOT an IMS code; set this field to null in that case.
- "files": every binary listed for the game. Prefer the MD5 hash when both MD5 and SHA1 are present; include whichever hashes the document states and null the rest.
- Use null for any value the document does not state. Every key above must be present.
Do not wrap the JSON in markdown fences or add commentary.`

const textPromptPreamble = "Extract the certificate metadata from the following document text.\n\n"
const imagePromptPreamble = "Extract the certificate metadata from the attached certificate image."

// Extractor is the interface the batch orchestrator depends on.
type Extractor interface {
	ExtractFromText(ctx context.Context, text, apiKey string) (*model.ExtractedInfo, error)
	ExtractFromImage(ctx context.Context, data []byte, mimeType, apiKey string) (*model.ExtractedInfo, error)
}

// GeminiService calls the Gemini generateContent REST API.
type GeminiService struct {
	config     *config.GeminiConfig
	httpClient *http.Client
	retryDelay time.Duration
}

const maxExtractionAttempts = 3

func NewGeminiService(cfg *config.GeminiConfig) *GeminiService {
	return &GeminiService{
		config: cfg,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		retryDelay: time.Duration(cfg.RetryDelayMS) * time.Millisecond,
	}
}

// Request/response types for the generateContent endpoint.

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"` // base64
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"system_instruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  struct {
		ResponseMIMEType string `json:"response_mime_type,omitempty"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// ExtractFromText extracts certificate metadata from document text.
func (s *GeminiService) ExtractFromText(ctx context.Context, text, apiKey string) (*model.ExtractedInfo, error) {
	parts := []geminiPart{{Text: textPromptPreamble + text}}
	return s.extract(ctx, parts, apiKey)
}

// ExtractFromImage extracts certificate metadata from an image document.
func (s *GeminiService) ExtractFromImage(ctx context.Context, data []byte, mimeType, apiKey string) (*model.ExtractedInfo, error) {
	parts := []geminiPart{
		{Text: imagePromptPreamble},
		{InlineData: &geminiInlineData{
			MimeType: mimeType,
			Data:     base64.StdEncoding.EncodeToString(data),
		}},
	}
	return s.extract(ctx, parts, apiKey)
}

func (s *GeminiService) extract(ctx context.Context, parts []geminiPart, apiKey string) (*model.ExtractedInfo, error) {
	var info *model.ExtractedInfo

	err := attempt(ctx, maxExtractionAttempts, s.retryDelay, IsRetryable, func() error {
		raw, err := s.generateContent(ctx, parts, apiKey)
		if err != nil {
			return err
		}

		cleaned := stripCodeFence(raw)

		var decoded any
		if err := json.Unmarshal([]byte(cleaned), &decoded); err != nil {
			return &ParseError{Cause: err, Raw: raw}
		}

		info, err = ValidateExtraction(decoded, raw)
		return err
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// generateContent performs one request and returns the model's text
// response. Upstream failures are classified into the retryable and
// fatal error kinds.
func (s *GeminiService) generateContent(ctx context.Context, parts []geminiPart, apiKey string) (string, error) {
	reqBody := geminiRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: extractionRules}}},
		Contents:          []geminiContent{{Role: "user", Parts: parts}},
	}
	reqBody.GenerationConfig.ResponseMIMEType = "application/json"

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		strings.TrimRight(s.config.BaseURL, "/"), s.config.Model, apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", &TransientError{Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", classifyAPIError(resp.StatusCode, body)
	}

	var result geminiResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w, body: %s", err, rawPreview(string(body)))
	}

	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		logger.Warn(ctx, "model returned no candidates", "body_len", len(body))
		return "", &TransientError{StatusCode: resp.StatusCode, Message: "no candidates in response"}
	}

	var sb strings.Builder
	for _, p := range result.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}

// classifyAPIError maps non-200 responses onto the error taxonomy: key
// rejection is fatal, server-side failures are retryable, anything else
// surfaces as-is.
func classifyAPIError(statusCode int, body []byte) error {
	var apiErr geminiResponse
	message := string(body)
	status := ""
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != nil {
		message = apiErr.Error.Message
		status = apiErr.Error.Status
	}

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrInvalidCredential, message)
	case statusCode == http.StatusBadRequest && keyRejectionRe.MatchString(message+" "+status):
		return fmt.Errorf("%w: %s", ErrInvalidCredential, message)
	case statusCode >= 500:
		return &TransientError{StatusCode: statusCode, Message: message}
	default:
		return fmt.Errorf("extraction API error (status %d): %s", statusCode, rawPreview(message))
	}
}

// The API reports a rejected key as "API_KEY_INVALID" in the error
// status or as "API key not valid" in the message, depending on the
// endpoint version.
var keyRejectionRe = regexp.MustCompile(`(?i)API[_ ]KEY`)

var fenceRe = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*\\n?(.*?)\\n?```\\s*$")

// stripCodeFence removes a surrounding markdown code fence (with an
// optional language tag) from a model response.
func stripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if m := fenceRe.FindStringSubmatch(trimmed); m != nil {
		return strings.TrimSpace(m[1])
	}
	return trimmed
}
