// cmd/demo/client.go
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Corphon/LifeBranches/internal/api"
	"github.com/Corphon/LifeBranches/internal/models"
)

// relayClient talks to a running relay.
type relayClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newRelayClient(baseURL, token string) *relayClient {
	return &relayClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type relayResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   *api.APIError   `json:"error"`
}

// relayError is a non-success envelope returned by the relay.
type relayError struct {
	Status  int
	Code    string
	Message string
}

func (e *relayError) Error() string {
	return fmt.Sprintf("relay %d %s: %s", e.Status, e.Code, e.Message)
}

func (c *relayClient) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var envelope relayResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("relay %d: undecodable response: %w", resp.StatusCode, err)
	}
	if !envelope.Success {
		e := &relayError{Status: resp.StatusCode, Message: envelope.Message}
		if envelope.Error != nil {
			e.Code, e.Message = envelope.Error.Code, envelope.Error.Message
		}
		return e
	}
	if out != nil && len(envelope.Data) > 0 {
		return json.Unmarshal(envelope.Data, out)
	}
	return nil
}

// SendEvent schedules an event in the native format.
func (c *relayClient) SendEvent(ctx context.Context, req api.EventRequest) (*models.ScheduledEvent, error) {
	var ev models.ScheduledEvent
	if err := c.do(ctx, http.MethodPost, "/api/event", req, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// SendNarrated schedules an event in the narrated producer format.
func (c *relayClient) SendNarrated(ctx context.Context, text string, data api.RelayPayload) (*models.ScheduledEvent, error) {
	return c.SendEvent(ctx, api.EventRequest{Text: text, Data: &data})
}

// Control triggers one of the /api/controls actions.
func (c *relayClient) Control(ctx context.Context, action string, body interface{}) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/api/controls/"+action, body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *relayClient) State(ctx context.Context) (models.Snapshot, error) {
	var snap models.Snapshot
	err := c.do(ctx, http.MethodGet, "/api/state", nil, &snap)
	return snap, err
}

func (c *relayClient) Commentary(ctx context.Context, limit int) ([]models.Commentary, error) {
	var out []models.Commentary
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/commentary?limit=%d", limit), nil, &out)
	return out, err
}

func (c *relayClient) Export(ctx context.Context) (models.ExportFile, error) {
	var out models.ExportFile
	err := c.do(ctx, http.MethodGet, "/api/export", nil, &out)
	return out, err
}
