package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/montagehq/montage/internal/lib/logger/sl"
	"github.com/montagehq/montage/internal/models"
)

// Client talks to the rendering backend that flattens an export
// job into a delivered video. The backend speaks plain JSON over
// HTTP, so this is a thin retrying wrapper around net/http.
type Client struct {
	log *slog.Logger

	addr         string
	httpClient   *http.Client
	retriesCount int
}

func New(
	log *slog.Logger,
	addr string,
	timeout time.Duration,
	retriesCount int,
) *Client {
	if retriesCount < 1 {
		retriesCount = 1
	}

	return &Client{
		log:          log,
		addr:         addr,
		httpClient:   &http.Client{Timeout: timeout},
		retriesCount: retriesCount,
	}
}

// Render submits the job and waits for the delivered urls.
func (c *Client) Render(ctx context.Context, job models.ExportJob) (models.ExportResult, error) {
	const op = "render.Client.Render"

	log := c.log.With(slog.String("op", op), slog.String("projectID", job.ProjectID))

	body, err := json.Marshal(job)
	if err != nil {
		return models.ExportResult{}, fmt.Errorf("%s: %w", op, err)
	}

	var lastErr error
	for attempt := 0; attempt < c.retriesCount; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return models.ExportResult{}, fmt.Errorf("%s: %w", op, ctx.Err())
			case <-time.After(time.Second << (attempt - 1)):
			}
		}

		res, err := c.post(ctx, body)
		if err == nil {
			return res, nil
		}
		lastErr = err

		log.Warn("render attempt failed", slog.Int("attempt", attempt+1), sl.Err(err))
	}

	return models.ExportResult{}, fmt.Errorf("%s: %w", op, lastErr)
}

func (c *Client) post(ctx context.Context, body []byte) (models.ExportResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.addr+"/render", bytes.NewReader(body))
	if err != nil {
		return models.ExportResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.ExportResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return models.ExportResult{}, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, payload)
	}

	var result models.ExportResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return models.ExportResult{}, err
	}

	return result, nil
}
