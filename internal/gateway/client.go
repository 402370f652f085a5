package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"payment_broker/internal/domain"
	"payment_broker/internal/logging"
)

const maxResponseBytes = 1 << 20

// httpClient is the transport shared by the adapters. It bounds every call
// with a timeout and classifies transport failures and 5xx as transient.
type httpClient struct {
	provider string            // Gateway name for errors
	client   *http.Client      // Underlying transport
	timeout  time.Duration     // Per-call bound
	redactor *logging.Redactor // Scrubs credentials from errors
}

func newHTTPClient(provider string, client *http.Client, timeout time.Duration, secrets ...string) *httpClient {
	if client == nil {
		client = &http.Client{}
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &httpClient{
		provider: provider,
		client:   client,
		timeout:  timeout,
		redactor: logging.NewRedactor(secrets...),
	}
}

// do executes req and returns the status code and body. Only transport
// failures and 5xx responses are turned into errors here; application-level
// codes are left to the adapter.
func (c *httpClient) do(ctx context.Context, req *http.Request) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.Do(req.WithContext(ctx))
	if err != nil {
		e := NewError(c.provider, domain.ErrTransientGateway, CodeUnavailable, "", c.redactor.Apply(err.Error()))
		if ctxErr := ctx.Err(); ctxErr != nil {
			e.Err = ctxErr
		}
		return 0, nil, e
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, NewError(c.provider, domain.ErrTransientGateway, CodeUnavailable, "", "reading response: "+c.redactor.Apply(err.Error()))
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return resp.StatusCode, body, NewError(c.provider, domain.ErrTransientGateway, CodeUnavailable,
			fmt.Sprintf("http %d", resp.StatusCode), "provider unavailable")
	}
	return resp.StatusCode, body, nil
}

// malformed reports a response missing required fields.
func (c *httpClient) malformed(what string) *Error {
	return NewError(c.provider, domain.ErrGateway, CodeMalformedResponse, "", what)
}

// IsTimeout reports whether err came from the bounded call timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
