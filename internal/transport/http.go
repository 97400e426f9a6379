package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/emrgen/linkfeed/internal/gql"
)

const (
	defaultHttpTimeout        = 60 * time.Second
	defaultHttpConnectTimeout = 5 * time.Second
	defaultHttpTlsTimeout     = 5 * time.Second

	maxErrorBody = 4 << 10
)

// DefaultHTTPClient bounds connect, TLS handshake and total request time.
func DefaultHTTPClient() *http.Client {
	dialer := &net.Dialer{
		Timeout: defaultHttpConnectTimeout,
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: defaultHttpTlsTimeout,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   defaultHttpTimeout,
	}
}

var _ Transport = (*HTTP)(nil)

// HTTP posts queries and mutations as JSON.
type HTTP struct {
	endpoint    string
	client      *http.Client
	interceptor Interceptor
}

// NewHTTP creates a request/response transport for endpoint. A nil client
// uses DefaultHTTPClient.
func NewHTTP(endpoint string, client *http.Client, interceptors ...Interceptor) *HTTP {
	if client == nil {
		client = DefaultHTTPClient()
	}
	return &HTTP{
		endpoint:    endpoint,
		client:      client,
		interceptor: ChainInterceptors(interceptors...),
	}
}

func (h *HTTP) Execute(ctx context.Context, req *gql.Request) (*gql.Response, error) {
	return h.interceptor(ctx, req, make(http.Header), h.post)
}

func (h *HTTP) Subscribe(ctx context.Context, req *gql.Request) (<-chan *gql.Response, error) {
	return nil, fmt.Errorf("http: subscribe: %w", ErrUnsupportedOperation)
}

func (h *HTTP) post(ctx context.Context, req *gql.Request, header http.Header) (*gql.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	for k, values := range header {
		for _, v := range values {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}

	var resp gql.Response
	decodeErr := json.Unmarshal(respBody, &resp)

	if httpResp.StatusCode < 200 || 300 <= httpResp.StatusCode {
		// servers report validation and auth failures as errors with a 4xx
		if decodeErr == nil && len(resp.Errors) > 0 {
			return &resp, nil
		}
		if len(respBody) > maxErrorBody {
			respBody = respBody[:maxErrorBody]
		}
		return nil, &StatusError{StatusCode: httpResp.StatusCode, Body: string(bytes.TrimSpace(respBody))}
	}

	if decodeErr != nil {
		return nil, fmt.Errorf("http: decode response: %w", decodeErr)
	}
	return &resp, nil
}
