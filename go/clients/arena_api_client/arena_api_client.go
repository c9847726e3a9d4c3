package arena_api_client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mcdev12/roast-arena/go/clients"
)

// DefaultTimeout bounds every REST call
const DefaultTimeout = 10 * time.Second

// envelope is the {success, data} / {success, message} wrapper on every response
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
}

type ArenaApiClient struct {
	*clients.BaseClient
}

func NewArenaApiClient(baseURL, clientID string, timeout time.Duration) *ArenaApiClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := &ArenaApiClient{
		BaseClient: clients.NewBaseClient(baseURL, timeout),
	}

	if clientID != "" {
		client.SetHeader(ClientIDHeader, clientID)
	}
	client.SetHeader("Accept", "application/json")

	return client
}

// get issues a GET and decodes the envelope's data into out.
func (c *ArenaApiClient) get(ctx context.Context, endpoint string, out interface{}) error {
	body, err := c.Get(ctx, endpoint)
	return decode(body, err, out)
}

// post issues a POST with a JSON body and decodes the envelope's data into out (may be nil).
func (c *ArenaApiClient) post(ctx context.Context, endpoint string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	body, err := c.Post(ctx, endpoint, bytes.NewReader(payload))
	return decode(body, err, out)
}

func decode(body []byte, reqErr error, out interface{}) error {
	if reqErr != nil {
		var statusErr *clients.StatusError
		if !errors.As(reqErr, &statusErr) {
			return reqErr
		}
		return classify(statusErr)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w, raw response: %s", err, string(body))
	}
	if !env.Success {
		return &APIError{Status: http.StatusOK, Code: env.Code, Message: env.Message}
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to unmarshal data: %w", err)
	}
	return nil
}

func classify(statusErr *clients.StatusError) error {
	switch statusErr.StatusCode {
	case http.StatusNotFound:
		return ErrNoActiveRound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	}

	apiErr := &APIError{Status: statusErr.StatusCode, Message: http.StatusText(statusErr.StatusCode)}
	var env envelope
	if err := json.Unmarshal(statusErr.Body, &env); err == nil {
		if env.Message != "" {
			apiErr.Message = env.Message
		}
		apiErr.Code = env.Code
	}
	return apiErr
}
