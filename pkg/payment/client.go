package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"paycore/internal/apperr"
)

const defaultTimeout = 20 * time.Second

// apiClient is the JSON-over-HTTP transport shared by the REST adapters.
type apiClient struct {
	name   string
	client *http.Client
}

func newAPIClient(name string, timeout time.Duration) apiClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return apiClient{name: name, client: &http.Client{Timeout: timeout}}
}

// do sends in as JSON (when non-nil) and decodes the response into out (when non-nil).
// 4xx responses become ProviderRejected; 5xx, timeouts and transport errors become
// ProviderUnavailable.
func (c apiClient) do(ctx context.Context, method, url string, headers map[string]string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return apperr.Wrap(apperr.Internal, "encode request", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return c.unavailable(err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err := classifyStatus(c.name, resp.StatusCode, respBody); err != nil {
		return err
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return apperr.Wrap(apperr.ProviderUnavailable, c.name+" returned an unreadable response", err)
	}
	return nil
}

func (c apiClient) unavailable(err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return apperr.Wrap(apperr.ProviderUnavailable, c.name+" timed out", err)
	}
	return apperr.Wrap(apperr.ProviderUnavailable, c.name+" is unreachable", err)
}

func classifyStatus(name string, code int, body []byte) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code >= 500:
		return apperr.Newf(apperr.ProviderUnavailable, "%s error %d", name, code)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return apperr.Newf(apperr.ProviderRejected, "%s rejected the credentials (%d)", name, code)
	default:
		return apperr.Newf(apperr.ProviderRejected, "%s rejected the request (%d): %s", name, code, snippet(body))
	}
}

func snippet(b []byte) string {
	const max = 200
	s := string(bytes.TrimSpace(b))
	if len(s) > max {
		return s[:max]
	}
	return s
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func requireCredential(name string, s Settings) error {
	if s.Credential() == "" {
		return apperr.New(apperr.ProviderUnavailable, fmt.Sprintf("%s is not configured", name))
	}
	return nil
}

func decodeEvent(payload []byte, out any) error {
	if err := json.Unmarshal(payload, out); err != nil {
		return apperr.Wrap(apperr.Invalid, "malformed webhook payload", err)
	}
	return nil
}

// number renders an amount as a bare JSON number with two decimals.
func number(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}
