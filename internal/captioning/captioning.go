// Package captioning calls the external image-to-text inference endpoint
// used by the tagging worker.
package captioning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/KubaBaniak/image-storage/internal/apperr"
)

// Inference images are bounded to keep caption latency predictable.
const (
	MaxInferenceWidth  = 1024
	MaxInferenceHeight = 1024
)

type Captioner interface {
	Caption(ctx context.Context, imageURL string) (string, error)
}

type Client struct {
	endpoint string
	token    string
	http     *http.Client
}

func NewClient(endpoint, token string) *Client {
	return &Client{
		endpoint: endpoint,
		token:    token,
		http:     &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) Caption(ctx context.Context, imageURL string) (string, error) {
	body, _ := json.Marshal(map[string]interface{}{
		"url":       imageURL,
		"maxWidth":  MaxInferenceWidth,
		"maxHeight": MaxInferenceHeight,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", apperr.Wrap(apperr.KindDependencyFailure, "failed to build captioning request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return "", apperr.Wrap(apperr.KindDependencyFailure, "captioning request failed", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", apperr.New(apperr.KindDependencyFailure,
			fmt.Sprintf("captioning service answered %d", res.StatusCode))
	}

	var payload struct {
		Caption string `json:"caption"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return "", apperr.Wrap(apperr.KindDependencyFailure, "malformed captioning response", err)
	}
	if payload.Caption == "" {
		return "", apperr.New(apperr.KindDependencyFailure, "captioning service returned an empty caption")
	}
	return payload.Caption, nil
}
