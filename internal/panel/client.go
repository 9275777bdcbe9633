// Package panel is a client for the file endpoints of a game-server panel's
// client API.
package panel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"paneldeploy/internal/apperrors"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// maxErrorBody caps how much of an unexpected response body is kept in errors.
const maxErrorBody = 512

// Headers is the request context attached to every call. It is a value and
// never changes after NewHeaders.
type Headers struct {
	apiKey string
}

// NewHeaders creates the headers for a bearer token.
func NewHeaders(apiKey string) Headers {
	return Headers{apiKey: apiKey}
}

func (h Headers) apply(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+h.apiKey)
}

// Client talks to <apiUrl>/client/servers/<serverId>.
type Client struct {
	baseURL    string
	headers    Headers
	httpClient *http.Client
}

// NewClient creates a client for one server. A nil httpClient uses
// http.DefaultClient.
func NewClient(apiURL, serverID string, headers Headers, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(apiURL, "/") + "/client/servers/" + url.PathEscape(serverID),
		headers:    headers,
		httpClient: httpClient,
	}
}

// NewHTTPClient returns an HTTP client whose transport records OpenTelemetry
// metrics and spans. Requests to signed URLs are not instrumented so their
// tokens never reach telemetry.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithFilter(func(r *http.Request) bool {
				return r.URL.Query().Get("token") == ""
			}),
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return "panel " + r.Method + " " + r.URL.Path
			}),
		),
	}
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (c *Client) doJSON(ctx context.Context, op, method, target string, in, out any) error {
	var body io.Reader = http.NoBody
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return apperrors.Transport(op, fmt.Errorf("failed to marshal request: %w", err))
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return apperrors.Transport(op, fmt.Errorf("failed to create request: %w", err))
	}
	c.headers.apply(req)

	return c.send(op, req, out)
}

// send issues req and decodes the response at the boundary: an errors field
// becomes a remote error, anything else unexpected a transport error.
func (c *Client) send(op string, req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.Transport(op, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.Transport(op, fmt.Errorf("failed to read response: %w", err))
	}

	return decode(op, resp.StatusCode, data, out)
}

func decode(op string, statusCode int, data []byte, out any) error {
	ok := statusCode >= 200 && statusCode < 300
	trimmed := bytes.TrimSpace(data)

	if len(trimmed) > 0 {
		var env envelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			if !ok {
				return apperrors.Transport(op, &HTTPError{StatusCode: statusCode, Body: truncate(trimmed)})
			}
			return apperrors.Transport(op, fmt.Errorf("malformed response: %w", err))
		}
		if env.hasErrors() {
			return apperrors.Remote(op, newAPIError(statusCode, env.Errors))
		}
	}

	if !ok {
		return apperrors.Transport(op, &HTTPError{StatusCode: statusCode, Body: truncate(trimmed)})
	}

	if out == nil {
		return nil
	}
	if len(trimmed) == 0 {
		return apperrors.Transport(op, errors.New("malformed response: empty body"))
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return apperrors.Transport(op, fmt.Errorf("malformed response: %w", err))
	}
	return nil
}

func truncate(b []byte) string {
	if len(b) > maxErrorBody {
		return string(b[:maxErrorBody]) + "..."
	}
	return string(b)
}
