// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package classifier

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/sashabaranov/go-openai"

	"github.com/tomtom215/moodlog/internal/config"
	"github.com/tomtom215/moodlog/internal/logging"
)

func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

func TestHTTPClassifier(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    map[string]float64
		wantErr error
	}{
		{
			name:   "result_var tuples",
			status: http.StatusOK,
			body:   `{"text":"x","result_var":[["joy",0.9],["sadness",0.05],["joy",0.2]]}`,
			want:   map[string]float64{"joy": 0.9, "sadness": 0.05},
		},
		{
			name:   "predictions fallback",
			status: http.StatusOK,
			body:   `{"predictions":[{"label":"fear","score":0.7,"confidence":"70.00%"}]}`,
			want:   map[string]float64{"fear": 0.7},
		},
		{
			name:    "server error is unavailable",
			status:  http.StatusInternalServerError,
			body:    `{"error":"model crashed"}`,
			wantErr: ErrUnavailable,
		},
		{
			name:    "malformed body is unavailable",
			status:  http.StatusOK,
			body:    `{"result_var":[["joy"]]}`,
			wantErr: ErrUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/classify" || r.Method != http.MethodPost {
					t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
				}
				var req classifyRequest
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text != "a good day" {
					t.Errorf("request body = %+v, %v", req, err)
				}
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			got, err := NewHTTPClassifier(srv.URL+"/", time.Second).Classify(context.Background(), "a good day")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Classify() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Classify() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHTTPClassifierBadRequestIsNotUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"Text is required"}`)
	}))
	defer srv.Close()

	_, err := NewHTTPClassifier(srv.URL, time.Second).Classify(context.Background(), "x")
	if err == nil || errors.Is(err, ErrUnavailable) {
		t.Errorf("Classify() error = %v, want a non-unavailable error", err)
	}
}

func TestHTTPClassifierUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewHTTPClassifier(url, time.Second).Classify(context.Background(), "x")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Classify() error = %v, want ErrUnavailable", err)
	}
}

func TestEmptyText(t *testing.T) {
	for name, c := range map[string]Classifier{
		"http":   NewHTTPClassifier("http://127.0.0.1:1", time.Second),
		"openai": NewOpenAIClassifier("key", "", nil),
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := c.Classify(context.Background(), "   "); !errors.Is(err, ErrEmptyText) {
				t.Errorf("Classify() error = %v, want ErrEmptyText", err)
			}
		})
	}
}

type stubClassifier struct {
	calls atomic.Int32
	err   error
}

func (s *stubClassifier) Classify(context.Context, string) (map[string]float64, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return map[string]float64{"joy": 1}, nil
}

func TestBreakerOpensOnUnavailable(t *testing.T) {
	stub := &stubClassifier{err: ErrUnavailable}
	b := NewBreakerWithSettings("test-open", stub, BreakerSettings{
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Hour,
		MinRequests:  3,
		FailureRatio: 0.5,
	})

	for i := 0; i < 3; i++ {
		if _, err := b.Classify(context.Background(), "x"); !errors.Is(err, ErrUnavailable) {
			t.Fatalf("call %d error = %v", i, err)
		}
	}
	if b.State() != "open" {
		t.Fatalf("State() = %s, want open", b.State())
	}

	_, err := b.Classify(context.Background(), "x")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("rejected call error = %v, want ErrUnavailable", err)
	}
	if got := stub.calls.Load(); got != 3 {
		t.Errorf("underlying calls = %d, want 3", got)
	}
}

func TestBreakerIgnoresInputErrors(t *testing.T) {
	stub := &stubClassifier{err: ErrEmptyText}
	b := NewBreakerWithSettings("test-input", stub, BreakerSettings{
		MaxRequests: 1, Interval: time.Minute, Timeout: time.Hour, MinRequests: 2, FailureRatio: 0.5,
	})
	for i := 0; i < 5; i++ {
		if _, err := b.Classify(context.Background(), ""); !errors.Is(err, ErrEmptyText) {
			t.Fatalf("error = %v", err)
		}
	}
	if b.State() != "closed" {
		t.Errorf("State() = %s, want closed", b.State())
	}
}

func TestBreakerPassesResults(t *testing.T) {
	b := NewBreaker("test-ok", &stubClassifier{})
	got, err := b.Classify(context.Background(), "x")
	if err != nil || got["joy"] != 1 {
		t.Errorf("Classify() = %v, %v", got, err)
	}
}

func TestOpenAIClassifier(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		gotModel = req.Model
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","created":1,"model":"m",
			"choices":[{"index":0,"message":{"role":"assistant","content":"{\"emotions\":{\"joy\":0.8,\"fear\":0.1}}"},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	c := NewOpenAIClassifierWithConfig(cfg, "", []string{"joy", "fear"})

	got, err := c.Classify(context.Background(), "walked in the sun")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if !reflect.DeepEqual(got, map[string]float64{"joy": 0.8, "fear": 0.1}) {
		t.Errorf("Classify() = %v", got)
	}
	if gotModel != openai.GPT4oMini {
		t.Errorf("model = %q, want default", gotModel)
	}
}

func TestOpenAIClassifierServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"error":{"message":"overloaded","type":"server_error"}}`)
	}))
	defer srv.Close()

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	_, err := NewOpenAIClassifierWithConfig(cfg, "m", nil).Classify(context.Background(), "x")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Classify() error = %v, want ErrUnavailable", err)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.ClassifierConfig
		wantType any
		wantErr  bool
	}{
		{"none", config.ClassifierConfig{Provider: "none"}, Disabled{}, false},
		{"http", config.ClassifierConfig{Provider: "http", URL: "http://x"}, &HTTPClassifier{}, false},
		{"http with breaker", config.ClassifierConfig{Provider: "http", URL: "http://x", BreakerEnabled: true}, &Breaker{}, false},
		{"openai", config.ClassifierConfig{Provider: "openai", OpenAIAPIKey: "k"}, &OpenAIClassifier{}, false},
		{"unknown", config.ClassifierConfig{Provider: "magic"}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.cfg, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v", err)
			}
			if tt.wantErr {
				return
			}
			if reflect.TypeOf(c) != reflect.TypeOf(tt.wantType) {
				t.Errorf("New() = %T, want %T", c, tt.wantType)
			}
		})
	}

	if _, err := (Disabled{}).Classify(context.Background(), "x"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Disabled.Classify() error = %v", err)
	}
}
