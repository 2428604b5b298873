package client

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/network/standard"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"github.com/lvyanru/hitl-chat/internal/cli/types"
)

// APIError non-2xx answer of the server
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.Status)
	}
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.Status)
}

// IsNotFound reports whether err is a 404 from the server
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == consts.StatusNotFound
}

// APIClient wraps Hertz Client for HTTP communication with the chat server
type APIClient struct {
	client *client.Client
	server string
}

// NewAPIClient creates a new API client
func NewAPIClient(server string) (*APIClient, error) {
	normalizedServer, err := NormalizeServerURL(server)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}

	// netpoll does not stream response bodies, so use the standard dialer
	c, err := client.NewClient(
		client.WithDialTimeout(10*time.Second),
		client.WithMaxIdleConnDuration(60*time.Second),
		client.WithResponseBodyStream(true),
		client.WithDialer(standard.NewDialer()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	return &APIClient{
		client: c,
		server: normalizedServer,
	}, nil
}

// Server returns the normalized server URL
func (c *APIClient) Server() string {
	return c.server
}

// NormalizeServerURL ensures a scheme and strips path and trailing slash
func NormalizeServerURL(server string) (string, error) {
	if !strings.Contains(server, "://") {
		server = "http://" + server
	}

	u, err := url.Parse(server)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid server URL")
	}

	return fmt.Sprintf("%s://%s", u.Scheme, u.Host), nil
}

// Chat posts a chat request and streams its events. The event channel
// closes after the server ends the stream; a read failure is delivered on
// the error channel.
func (c *APIClient) Chat(ctx context.Context, chatReq types.ChatRequest) (<-chan types.StreamEvent, <-chan error, error) {
	bodyBytes, err := sonic.Marshal(chatReq)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req := protocol.AcquireRequest()
	resp := protocol.AcquireResponse()

	req.SetMethod(consts.MethodPost)
	req.SetRequestURI(c.server + endpointChat)
	req.Header.SetContentTypeBytes([]byte("application/json"))
	req.Header.Set("Accept", "text/event-stream")
	req.SetBody(bodyBytes)

	if err := c.client.Do(ctx, req, resp); err != nil {
		protocol.ReleaseRequest(req)
		protocol.ReleaseResponse(resp)
		return nil, nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode() != consts.StatusOK {
		apiErr := decodeError(resp.StatusCode(), resp.Body())
		protocol.ReleaseRequest(req)
		protocol.ReleaseResponse(resp)
		return nil, nil, apiErr
	}

	eventCh := make(chan types.StreamEvent, 16)
	errCh := make(chan error, 1)

	go func() {
		defer func() {
			close(eventCh)
			close(errCh)
			protocol.ReleaseRequest(req)
			protocol.ReleaseResponse(resp)
		}()

		bodyStream := resp.BodyStream()
		if bodyStream == nil {
			bodyStream = bytes.NewReader(resp.Body())
		}

		err := ReadEvents(bodyStream, func(ev types.StreamEvent) error {
			select {
			case eventCh <- ev:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil {
			errCh <- err
		}
	}()

	return eventCh, errCh, nil
}

// ReadEvents parses an SSE body and calls fn with every data frame.
// Multi-line data fields are joined with newlines; comments and other
// fields are ignored.
func ReadEvents(r io.Reader, fn func(types.StreamEvent) error) error {
	scanner := bufio.NewScanner(r)

	const maxScanTokenSize = 1024 * 1024
	scanner.Buffer(make([]byte, 64*1024), maxScanTokenSize)

	var data []string
	dispatch := func() error {
		if len(data) == 0 {
			return nil
		}
		payload := strings.Join(data, "\n")
		data = data[:0]

		var ev types.StreamEvent
		if err := sonic.UnmarshalString(payload, &ev); err != nil {
			return fmt.Errorf("failed to parse event: %w", err)
		}
		return fn(ev)
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")

		if line == "" {
			if err := dispatch(); err != nil {
				return err
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		if field != "data" {
			continue
		}
		data = append(data, strings.TrimPrefix(value, " "))
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}
	return dispatch()
}

// Invoke runs a chat request to completion without streaming
func (c *APIClient) Invoke(ctx context.Context, chatReq types.ChatRequest) (*types.InvokeResponse, error) {
	bodyBytes, err := sonic.Marshal(chatReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var out types.InvokeResponse
	if err := c.do(ctx, consts.MethodPost, c.server+endpointInvoke, bodyBytes, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetThread returns the checkpoint of a thread
func (c *APIClient) GetThread(ctx context.Context, threadID string) (*types.Thread, error) {
	var out types.APIResponse[types.Thread]
	uri := c.server + fmt.Sprintf(endpointThread, url.PathEscape(threadID))
	if err := c.do(ctx, consts.MethodGet, uri, nil, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// DeleteThread drops the checkpoint of a thread
func (c *APIClient) DeleteThread(ctx context.Context, threadID string) error {
	uri := c.server + fmt.Sprintf(endpointThread, url.PathEscape(threadID))
	return c.do(ctx, consts.MethodDelete, uri, nil, nil)
}

// Health checks the server
func (c *APIClient) Health(ctx context.Context) error {
	return c.do(ctx, consts.MethodGet, c.server+endpointHealth, nil, nil)
}

func (c *APIClient) do(ctx context.Context, method, uri string, body []byte, out any) error {
	req := protocol.AcquireRequest()
	resp := protocol.AcquireResponse()
	defer func() {
		protocol.ReleaseRequest(req)
		protocol.ReleaseResponse(resp)
	}()

	req.SetMethod(method)
	req.SetRequestURI(uri)
	if body != nil {
		req.Header.SetContentTypeBytes([]byte("application/json"))
		req.SetBody(body)
	}

	if err := c.client.Do(ctx, req, resp); err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	// the client streams bodies, so read the whole body explicitly
	respBody, err := resp.BodyE()
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	statusCode := resp.StatusCode()
	if statusCode < 200 || statusCode >= 300 {
		return decodeError(statusCode, respBody)
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

func decodeError(status int, body []byte) error {
	apiErr := &APIError{Status: status}
	var env types.APIResponse[any]
	if err := sonic.Unmarshal(body, &env); err == nil {
		apiErr.Code = env.Code
		apiErr.Message = env.Message
	} else if len(body) > 0 {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}
