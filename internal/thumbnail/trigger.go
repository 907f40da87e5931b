// Package thumbnail covers the two-phase thumbnail derivation: a synchronous
// trigger of the external resize function, then polling the object store
// until the derived asset shows up or the poll budget elapses.
package thumbnail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	originalsPrefix  = "originals/"
	thumbnailsPrefix = "thumbnails/"
)

// PathFor maps an original object key to its derived thumbnail key.
func PathFor(storagePath string) string {
	if strings.HasPrefix(storagePath, originalsPrefix) {
		return thumbnailsPrefix + strings.TrimPrefix(storagePath, originalsPrefix)
	}
	return thumbnailsPrefix + storagePath
}

type Trigger interface {
	Trigger(ctx context.Context, objectName string) error
}

type TriggerClient struct {
	endpoint string
	token    string
	bucket   string
	http     *http.Client
	log      *zap.Logger
}

func NewTriggerClient(endpoint, token, bucket string, timeout time.Duration, log *zap.Logger) *TriggerClient {
	return &TriggerClient{
		endpoint: endpoint,
		token:    token,
		bucket:   bucket,
		http:     &http.Client{Timeout: timeout},
		log:      log,
	}
}

// Trigger invokes the derivation function. Any non-2xx answer is a failure.
func (c *TriggerClient) Trigger(ctx context.Context, objectName string) error {
	body, _ := json.Marshal(map[string]interface{}{
		"record": map[string]string{
			"bucket": c.bucket,
			"name":   objectName,
		},
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build thumbnail trigger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("thumbnail trigger request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("thumbnail function answered %d", res.StatusCode)
	}

	c.log.Info("thumbnail derivation triggered", zap.String("object", objectName))
	return nil
}
