package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const generateContentMethod = "generateContent"

// ListModels queries the provider's model listing and returns the names of
// models advertising generation support, in the order the provider returned
// them. Listing always uses v1beta, the broadest surface.
func (iv *Invoker) ListModels(ctx context.Context) ([]string, error) {
	url := fmt.Sprintf("%s/v1beta/models?key=%s", iv.baseURL, iv.apiKey)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build discovery request: %w", err)
	}

	httpResp, err := iv.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("model discovery: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read discovery response: %w", err)
	}

	var resp listModelsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode discovery response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		msg := httpResp.Status
		if resp.Error != nil && resp.Error.Message != "" {
			msg = resp.Error.Message
		}
		return nil, fmt.Errorf("model discovery: %s", msg)
	}

	var names []string
	for _, m := range resp.Models {
		if !supportsGeneration(m) {
			continue
		}
		names = append(names, strings.TrimPrefix(m.Name, "models/"))
	}
	return names, nil
}

func supportsGeneration(m modelInfo) bool {
	for _, method := range m.SupportedGenerationMethods {
		if method == generateContentMethod {
			return true
		}
	}
	return false
}
