package records

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

// HttpStore delegates record mutations to the CRM service's REST API.
type HttpStore struct {
	baseUrl string
	client  *http.Client
}

var _ Store = new(HttpStore)

func NewHttpStore(baseUrl string) *HttpStore {
	return &HttpStore{
		baseUrl: baseUrl,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *HttpStore) CreateRecord(ctx context.Context, entity string, fields map[string]any) (string, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/%s", s.baseUrl, entity), bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		logger.Error("record create failed", zap.String("entity", entity), zap.Error(err))
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("crud store returned status %d", resp.StatusCode)
	}
	var body struct {
		Id string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	return body.Id, nil
}

func (s *HttpStore) UpdateRecord(ctx context.Context, entity string, id string, fields map[string]any) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, fmt.Sprintf("%s/%s/%s", s.baseUrl, entity, id), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		logger.Error("record update failed", zap.String("entity", entity), zap.String("id", id), zap.Error(err))
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("crud store returned status %d", resp.StatusCode)
	}
	return nil
}
