package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var remoteTracer = otel.Tracer("clubportal.internal.assistant.remote")

// ErrRemoteStatus is returned when the chat endpoint answers with a non-2xx status.
var ErrRemoteStatus = errors.New("assistant: remote chat endpoint returned non-success status")

// RemoteConfig controls the backend-backed provider.
type RemoteConfig struct {
	URL        string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// RemoteProvider forwards each turn to an external chat endpoint.
type RemoteProvider struct {
	url        string
	httpClient *http.Client
}

type remoteRequest struct {
	Message        string  `json:"message"`
	UserID         *string `json:"userId"`
	ConversationID string  `json:"conversationId"`
}

type remoteResponse struct {
	Message string `json:"message"`
}

// NewRemoteProvider builds a provider for the given endpoint URL.
func NewRemoteProvider(cfg RemoteConfig) (*RemoteProvider, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, errors.New("assistant: remote chat url is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &RemoteProvider{url: url, httpClient: httpClient}, nil
}

func (p *RemoteProvider) Name() string { return "remote" }

// Reply posts the message and returns the endpoint's answer. Any transport
// error, non-2xx status or empty answer is returned as an error.
func (p *RemoteProvider) Reply(ctx context.Context, req ReplyRequest) (Reply, error) {
	ctx, span := remoteTracer.Start(ctx, "assistant.remote.reply")
	defer span.End()
	span.SetAttributes(attribute.String("clubportal.conversation_id", req.ConversationID))

	payload := remoteRequest{
		Message:        req.Text,
		ConversationID: req.ConversationID,
	}
	if req.UserID != "" {
		userID := req.UserID
		payload.UserID = &userID
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Reply{}, fmt.Errorf("assistant: marshal remote request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return Reply{}, fmt.Errorf("assistant: build remote request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return Reply{}, fmt.Errorf("assistant: remote chat request: %w", err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		span.RecordError(err)
		return Reply{}, fmt.Errorf("assistant: read remote response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		span.SetStatus(codes.Error, "non-success status")
		return Reply{}, fmt.Errorf("%w: %d", ErrRemoteStatus, resp.StatusCode)
	}

	var decoded remoteResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		span.RecordError(err)
		return Reply{}, fmt.Errorf("assistant: decode remote response: %w", err)
	}
	text := strings.TrimSpace(decoded.Message)
	if text == "" {
		return Reply{}, errors.New("assistant: remote response has empty message")
	}
	return Reply{Text: text}, nil
}
