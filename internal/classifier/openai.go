// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package classifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/sashabaranov/go-openai"

	"github.com/tomtom215/moodlog/internal/logging"
)

// OpenAIClassifier asks a chat model to score the text against a fixed
// label set and return the scores as a JSON object.
type OpenAIClassifier struct {
	client *openai.Client
	model  string
	labels []string
}

type openAIScores struct {
	Emotions map[string]float64 `json:"emotions"`
}

// NewOpenAIClassifier creates a classifier using the public OpenAI API.
func NewOpenAIClassifier(apiKey, model string, labels []string) *OpenAIClassifier {
	return NewOpenAIClassifierWithConfig(openai.DefaultConfig(apiKey), model, labels)
}

// NewOpenAIClassifierWithConfig allows a custom base URL or HTTP client.
func NewOpenAIClassifierWithConfig(cfg openai.ClientConfig, model string, labels []string) *OpenAIClassifier {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIClassifier{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		labels: labels,
	}
}

func (c *OpenAIClassifier) prompt(text string) string {
	return fmt.Sprintf(`Score how strongly the journal entry below expresses each of these emotions: %s.
Every score is a number between 0 and 1. Omit emotions that are absent.

Return only a JSON object with this structure:
{"emotions": {"emotion_name": score, ...}}

Journal entry: %s`, strings.Join(c.labels, ", "), text)
}

// Classify implements Classifier.
func (c *OpenAIClassifier) Classify(ctx context.Context, text string) (map[string]float64, error) {
	if err := checkText(text); err != nil {
		return nil, err
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You are an emotion classifier. You answer with JSON only."},
			{Role: openai.ChatMessageRoleUser, Content: c.prompt(text)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		Temperature:    0,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusBadRequest {
			return nil, fmt.Errorf("classifier rejected request: %s", apiErr.Message)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty completion", ErrUnavailable)
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	var out openAIScores
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("response", content).Msg("Failed to parse classifier completion")
		return nil, fmt.Errorf("%w: malformed completion: %v", ErrUnavailable, err)
	}
	return out.Emotions, nil
}
