// Package transport contains the outbound side of the chat boundary: it
// pushes view models to the delivery service that owns the actual chat
// protocol. The inbound side is the gateway webhook.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/davomat-bot/internal/dto"
	"github.com/noah-isme/davomat-bot/pkg/config"
)

// HTTPSender delivers outbound messages over HTTP POST. The delivery
// service answers with the message id it assigned, so edited views can be
// addressed later.
type HTTPSender struct {
	url    string
	token  string
	client *http.Client
	logger *zap.Logger
}

// NewHTTPSender constructs the sender from transport config.
func NewHTTPSender(cfg config.TransportConfig, logger *zap.Logger) *HTTPSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSender{
		url:    cfg.SendURL,
		token:  cfg.Token,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type sendResponse struct {
	MessageID int64 `json:"message_id"`
}

func (s *HTTPSender) post(ctx context.Context, out dto.Outbound) (int64, error) {
	body, err := json.Marshal(out)
	if err != nil {
		return 0, fmt.Errorf("encode outbound: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build outbound request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("deliver outbound: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("deliver outbound: status %d: %s", resp.StatusCode, raw)
	}

	var parsed sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		// delivery succeeded, only the id is missing
		s.logger.Warn("outbound response decode failed", zap.Error(err))
		return 0, nil
	}
	return parsed.MessageID, nil
}

// Send delivers a new message and returns its transport message id.
func (s *HTTPSender) Send(ctx context.Context, chatID int64, view dto.View) (int64, error) {
	return s.post(ctx, dto.Outbound{ChatID: chatID, View: view})
}

// Edit replaces a previously sent message in place.
func (s *HTTPSender) Edit(ctx context.Context, chatID, messageID int64, view dto.View) error {
	_, err := s.post(ctx, dto.Outbound{ChatID: chatID, MessageID: messageID, View: view})
	return err
}
