package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/harunnryd/autosend/internal/config"
	"github.com/harunnryd/autosend/internal/errors"
)

// WebhookSender posts messages to an SMS or social gateway that speaks a
// small JSON contract.
type WebhookSender struct {
	url    string
	token  string
	client *http.Client
}

type webhookRequest struct {
	Channel     string `json:"channel"`
	To          string `json:"to"`
	Body        string `json:"body"`
	DraftID     string `json:"draft_id"`
	LeadID      string `json:"lead_id"`
	WorkspaceID string `json:"workspace_id"`
	InReplyTo   string `json:"in_reply_to,omitempty"`
}

type webhookResponse struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error"`
}

func NewWebhookSender(cfg config.WebhookConfig) (*WebhookSender, error) {
	if cfg.URL == "" {
		return nil, errors.InvalidInput("webhook url is required")
	}
	timeout, err := config.DurationOrDefault(cfg.Timeout, config.DefaultWebhookTimeout)
	if err != nil {
		return nil, errors.InvalidInput("invalid webhook timeout: " + err.Error())
	}
	return &WebhookSender{
		url:    cfg.URL,
		token:  cfg.AuthToken,
		client: &http.Client{Timeout: timeout},
	}, nil
}

func (s *WebhookSender) Send(ctx context.Context, out Outbound) (string, error) {
	if out.To == "" {
		return "", errors.InvalidInput("lead has no address for channel " + string(out.Channel))
	}

	payload, err := json.Marshal(webhookRequest{
		Channel:     string(out.Channel),
		To:          out.To,
		Body:        out.Content,
		DraftID:     out.DraftID,
		LeadID:      out.LeadID,
		WorkspaceID: out.WorkspaceID,
		InReplyTo:   out.InReplyTo,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", out.DraftID)
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", errors.Transient("webhook request failed: " + err.Error())
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var parsed webhookResponse
	_ = json.Unmarshal(body, &parsed)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", errors.Transient(fmt.Sprintf("gateway returned %d: %s", resp.StatusCode, parsed.Error))
	case resp.StatusCode >= 300:
		return "", errors.Dispatch(fmt.Sprintf("gateway rejected message with %d: %s", resp.StatusCode, parsed.Error))
	}

	if parsed.MessageID == "" {
		parsed.MessageID = "webhook:" + out.DraftID
	}
	return parsed.MessageID, nil
}
