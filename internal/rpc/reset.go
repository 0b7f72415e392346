package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ResetRequest is sent to the external reset endpoint.
type ResetRequest struct {
	DestinationURL string `json:"destinationUrl"`
}

type resetResponse struct {
	Success *bool  `json:"success"`
	Error   string `json:"error"`
}

// ResetClient asks an external service to recreate the destination schema
// and reinstall the exec procedures.
type ResetClient struct {
	endpoint   string
	serviceKey string
	http       *http.Client
}

// NewResetClient returns a client for the reset endpoint.
func NewResetClient(endpoint, serviceKey string, h *http.Client) *ResetClient {
	if h == nil {
		h = &http.Client{Timeout: 2 * time.Minute}
	}
	return &ResetClient{endpoint: endpoint, serviceKey: serviceKey, http: h}
}

// Reset calls the endpoint. A 2xx response with "success": false is an error.
func (r *ResetClient) Reset(ctx context.Context, destinationURL string) error {
	if r.endpoint == "" {
		return fmt.Errorf("reset endpoint is not configured")
	}

	payload, err := json.Marshal(ResetRequest{DestinationURL: destinationURL})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build reset request: %w", err)
	}
	setAuth(req, r.serviceKey)

	body, err := do(r.http, req)
	if err != nil {
		return fmt.Errorf("reset failed: %w", err)
	}

	var resp resetResponse
	if len(bytes.TrimSpace(body)) > 0 && json.Unmarshal(body, &resp) == nil {
		if resp.Success != nil && !*resp.Success {
			return fmt.Errorf("reset failed: %s", resp.Error)
		}
	}
	return nil
}
