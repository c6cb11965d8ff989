// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package classifier

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/moodlog/internal/emotion"
	"github.com/tomtom215/moodlog/internal/logging"
)

// maxResponseBytes bounds the classifier response body.
const maxResponseBytes = 1 << 20

// HTTPClassifier calls a model server exposing POST /classify.
//
// Request:  {"text": "..."}
// Response: {"result_var": [["joy", 0.91], ["sadness", 0.02], ...], "predictions": [...]}
type HTTPClassifier struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClassifier creates a client for the model server at baseURL.
func NewHTTPClassifier(baseURL string, timeout time.Duration) *HTTPClassifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClassifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type classifyRequest struct {
	Text string `json:"text"`
}

type classifyResponse struct {
	ResultVar   []labelScore `json:"result_var"`
	Predictions []emotion.Pair `json:"predictions"`
	Error       string       `json:"error"`
}

// labelScore decodes one ["label", score] tuple.
type labelScore emotion.Pair

func (p *labelScore) UnmarshalJSON(data []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return err
	}
	if len(tuple) != 2 {
		return fmt.Errorf("expected [label, score], got %d elements", len(tuple))
	}
	if err := json.Unmarshal(tuple[0], &p.Label); err != nil {
		return fmt.Errorf("label: %w", err)
	}
	if err := json.Unmarshal(tuple[1], &p.Score); err != nil {
		return fmt.Errorf("score: %w", err)
	}
	return nil
}

// Classify implements Classifier.
func (c *HTTPClassifier) Classify(ctx context.Context, text string) (map[string]float64, error) {
	if err := checkText(text); err != nil {
		return nil, err
	}

	body, err := json.Marshal(classifyRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("encode classify request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/classify", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build classify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	var out classifyResponse
	decodeErr := json.Unmarshal(raw, &out)

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, out.Error)
	case resp.StatusCode == http.StatusBadRequest:
		return nil, fmt.Errorf("classifier rejected request: %s", out.Error)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: unexpected status %d", ErrUnavailable, resp.StatusCode)
	case decodeErr != nil:
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, decodeErr)
	}

	pairs := make([]emotion.Pair, 0, len(out.ResultVar))
	for _, p := range out.ResultVar {
		pairs = append(pairs, emotion.Pair(p))
	}
	if len(pairs) == 0 {
		pairs = out.Predictions
	}

	logging.Ctx(ctx).Debug().
		Int("labels", len(pairs)).
		Dur("duration", time.Since(start)).
		Msg("Classified journal text")
	return emotion.FromPairs(pairs), nil
}
