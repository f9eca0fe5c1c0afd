package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vyrodovalexey/authcore/internal/auth"
)

const defaultTimeout = 10 * time.Second

// maxErrorBody bounds how much of an error response is read for the
// failure reason.
const maxErrorBody = 4 << 10

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// postJSON sends a JSON body and decodes a JSON response into out.
// Transport failures map to *auth.ConnectionError, 4xx responses to
// *auth.AuthenticationError, and 5xx responses to
// *auth.ConnectionError.
func postJSON(ctx context.Context, client *http.Client, provider, endpoint string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	return do(client, provider, req, out)
}

// postForm sends a form-encoded body and decodes a JSON response.
func postForm(ctx context.Context, client *http.Client, provider, endpoint string, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	return do(client, provider, req, out)
}

func do(client *http.Client, provider string, req *http.Request, out interface{}) error {
	resp, err := client.Do(req)
	if err != nil {
		return &auth.ConnectionError{Provider: provider, Reason: "request failed", Err: err}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &auth.ConnectionError{Provider: provider, Reason: "malformed response", Err: err}
		}
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &auth.AuthenticationError{Reason: rejectionReason(resp)}
	default:
		return &auth.ConnectionError{
			Provider: provider,
			Reason:   fmt.Sprintf("backend returned status %d", resp.StatusCode),
		}
	}
}

// rejectionReason extracts a short reason from a 4xx response body.
func rejectionReason(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return fmt.Sprintf("backend rejected request with status %d", resp.StatusCode)
}

// expiryFromSeconds converts an expires_in value to an absolute time.
func expiryFromSeconds(now time.Time, seconds int64) *time.Time {
	if seconds <= 0 {
		return nil
	}
	exp := now.Add(time.Duration(seconds) * time.Second)
	return &exp
}

// serviceSet builds the lookup set for SupportsService.
func serviceSet(services []string) map[string]bool {
	set := make(map[string]bool, len(services))
	for _, s := range services {
		set[s] = true
	}
	return set
}
