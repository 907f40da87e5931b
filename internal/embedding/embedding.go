// Package embedding calls the external text-embedding inference endpoint.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/KubaBaniak/image-storage/internal/apperr"
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
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
		http:     &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	body, _ := json.Marshal(map[string]string{"inputs": text})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDependencyFailure, "failed to build embedding request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDependencyFailure, "embedding request failed", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, apperr.New(apperr.KindDependencyFailure,
			fmt.Sprintf("embedding service answered %d", res.StatusCode))
	}

	// The endpoint answers either a bare vector or a single-element batch.
	var raw json.RawMessage
	if err := json.NewDecoder(res.Body).Decode(&raw); err != nil {
		return nil, apperr.Wrap(apperr.KindDependencyFailure, "malformed embedding response", err)
	}

	var vector []float32
	if err := json.Unmarshal(raw, &vector); err == nil {
		return vector, nil
	}

	var batch [][]float32
	if err := json.Unmarshal(raw, &batch); err != nil || len(batch) == 0 {
		return nil, apperr.New(apperr.KindDependencyFailure, "malformed embedding response")
	}
	return batch[0], nil
}
