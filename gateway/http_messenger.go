package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/a23comunicacoes/oregon-flow/logger"
)

// HttpMessenger talks to the messaging-channel service over its REST API.
type HttpMessenger struct {
	baseUrl string
	client  *http.Client
}

var _ Messenger = new(HttpMessenger)

func NewHttpMessenger(baseUrl string) *HttpMessenger {
	return &HttpMessenger{
		baseUrl: baseUrl,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (m *HttpMessenger) Send(ctx context.Context, chatId string, text string) error {
	return m.post(ctx, "/messages/send", map[string]any{"chatId": chatId, "text": text})
}

func (m *HttpMessenger) SendWithMedia(ctx context.Context, chatId string, mediaUrl string, caption string) error {
	return m.post(ctx, "/messages/send-media", map[string]any{
		"chatId":   chatId,
		"mediaUrl": mediaUrl,
		"caption":  caption,
	})
}

func (m *HttpMessenger) RemoveAgentWaitMarker(ctx context.Context, chatId string) error {
	return m.post(ctx, "/chats/remove-agent-wait", map[string]any{"chatId": chatId})
}

func (m *HttpMessenger) ResolveConversationId(ctx context.Context, phone string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseUrl+"/chats/resolve?phone="+phone, nil)
	if err != nil {
		return "", err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}
	var body struct {
		ChatId string `json:"chatId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	return body.ChatId, nil
}

func (m *HttpMessenger) post(ctx context.Context, path string, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseUrl+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := m.client.Do(req)
	if err != nil {
		logger.Error("gateway call failed", zap.String("path", path), zap.Error(err))
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}
	return nil
}
