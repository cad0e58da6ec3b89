package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// DefaultBaseURL is the production endpoint for the generation API.
const DefaultBaseURL = "https://generativelanguage.googleapis.com"

// DefaultSystemInstruction is the assistant persona attached to every
// generation request unless overridden in configuration.
const DefaultSystemInstruction = "You are Nanom AI, a professional, creative, and highly capable AI assistant for a modern development studio. You help users build web apps, android apps, and provide creative solutions. Be concise but helpful. Use markdown for code blocks."

// InvocationError reports that a single candidate failed. It is recoverable:
// the orchestrator moves on to the next candidate or to discovery.
type InvocationError struct {
	Candidate Candidate
	Message   string
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Candidate, e.Message)
}

// Invoker performs single generation calls against one candidate at a time.
// It holds no model-selection state; caching the working candidate is the
// orchestrator's job.
type Invoker struct {
	baseURL     string
	apiKey      string
	instruction string
	httpClient  *http.Client
	logger      *zap.Logger
}

// InvokerConfig configures a new Invoker. Zero values fall back to the
// production endpoint, the default persona and http.DefaultClient.
type InvokerConfig struct {
	BaseURL           string
	APIKey            string
	SystemInstruction string
	HTTPClient        *http.Client
	Logger            *zap.Logger
}

func NewInvoker(cfg InvokerConfig) *Invoker {
	iv := &Invoker{
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		instruction: cfg.SystemInstruction,
		httpClient:  cfg.HTTPClient,
		logger:      cfg.Logger,
	}
	if iv.baseURL == "" {
		iv.baseURL = DefaultBaseURL
	}
	if iv.instruction == "" {
		iv.instruction = DefaultSystemInstruction
	}
	if iv.httpClient == nil {
		iv.httpClient = http.DefaultClient
	}
	if iv.logger == nil {
		iv.logger = zap.NewNop()
	}
	return iv
}

// Generate performs exactly one network call for the given candidate and
// returns the extracted assistant text. The one exception to "exactly one":
// when the upstream rejects the dedicated system_instruction field, the call
// is repeated once with the instruction inlined into the final user turn.
func (iv *Invoker) Generate(ctx context.Context, cand Candidate, history []Turn, prompt string) (string, error) {
	useField := supportsSystemInstruction(cand.Model)

	text, err := iv.attempt(ctx, cand, history, prompt, useField)
	if err != nil && useField && strings.Contains(err.Error(), "system_instruction") {
		iv.logger.Debug("system_instruction rejected, retrying inline",
			zap.String("candidate", cand.String()))
		return iv.attempt(ctx, cand, history, prompt, false)
	}
	return text, err
}

func (iv *Invoker) attempt(ctx context.Context, cand Candidate, history []Turn, prompt string, useField bool) (string, error) {
	req := generateRequest{Contents: buildContents(history, prompt)}
	if useField {
		req.SystemInstruction = &content{Parts: []part{{Text: iv.instruction}}}
	} else {
		last := &req.Contents[len(req.Contents)-1]
		last.Parts[0].Text = fmt.Sprintf("[System: %s]\n\n%s", iv.instruction, prompt)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", &InvocationError{Candidate: cand, Message: fmt.Sprintf("marshal request: %v", err)}
	}

	url := fmt.Sprintf("%s/%s/models/%s:generateContent?key=%s",
		iv.baseURL, cand.APIVersion, cand.Model, iv.apiKey)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", &InvocationError{Candidate: cand, Message: fmt.Sprintf("build request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := iv.httpClient.Do(httpReq)
	if err != nil {
		return "", &InvocationError{Candidate: cand, Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return "", &InvocationError{Candidate: cand, Message: fmt.Sprintf("read response: %v", err)}
	}

	// Decode regardless of status: error payloads carry the upstream message.
	var resp generateResponse
	decodeErr := json.Unmarshal(respBody, &resp)

	if httpResp.StatusCode != http.StatusOK {
		msg := httpResp.Status
		if decodeErr == nil && resp.Error != nil && resp.Error.Message != "" {
			msg = resp.Error.Message
		}
		return "", &InvocationError{Candidate: cand, Message: msg}
	}
	if decodeErr != nil {
		return "", &InvocationError{Candidate: cand, Message: fmt.Sprintf("malformed response body: %v", decodeErr)}
	}

	if len(resp.Candidates) > 0 && len(resp.Candidates[0].Content.Parts) > 0 {
		if text := resp.Candidates[0].Content.Parts[0].Text; text != "" {
			return text, nil
		}
	}
	return "", &InvocationError{Candidate: cand, Message: "no content in response"}
}

// buildContents re-tags history turns to the two canonical roles and appends
// the prompt as the final user turn.
func buildContents(history []Turn, prompt string) []content {
	contents := make([]content, 0, len(history)+1)
	for _, turn := range history {
		role := RoleUser
		if turn.Role == RoleModel {
			role = RoleModel
		}
		contents = append(contents, content{Role: role, Parts: []part{{Text: turn.Text}}})
	}
	return append(contents, content{Role: RoleUser, Parts: []part{{Text: prompt}}})
}
