// Package llm talks to an OpenAI-compatible chat completions endpoint for
// translation, phonetic transcription and grammar analysis.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/cenkalti/backoff/v5"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

var ErrEmptyResponse = errors.New("model returned no content")

// ServiceError is returned for network, quota and parse failures.
type ServiceError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

type Generator interface {
	Translate(ctx context.Context, text, targetLanguage string) (string, error)
	GeneratePhonetic(ctx context.Context, text, accent string) (string, error)
	AnalyzeGrammar(ctx context.Context, sentence string) (*Grammar, error)
}

type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries uint
}

type Client struct {
	baseURL    string
	apiKey     string
	model      string
	timeout    time.Duration
	maxRetries uint
	httpClient *http.Client
}

func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	retries := cfg.MaxRetries
	if retries == 0 {
		retries = 3
	}

	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 32,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &Client{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		model:      model,
		timeout:    timeout,
		maxRetries: retries,
		httpClient: &http.Client{Transport: tr},
	}, nil
}

// NewWithHTTPClient swaps the transport, mainly for tests.
func NewWithHTTPClient(cfg Config, httpClient *http.Client) (*Client, error) {
	c, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if httpClient != nil {
		c.httpClient = httpClient
	}
	return c, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *Client) Translate(ctx context.Context, text, targetLanguage string) (string, error) {
	out, err := c.chat(ctx, "translate", chatRequest{
		Messages: []chatMessage{
			{Role: "system", Content: fmt.Sprintf("You are a professional translator. Translate the user's text into %s. Reply with the translation only, without any explanation.", targetLanguage)},
			{Role: "user", Content: text},
		},
		Temperature: 0.3,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (c *Client) GeneratePhonetic(ctx context.Context, text, accent string) (string, error) {
	out, err := c.chat(ctx, "phonetic", chatRequest{
		Messages: []chatMessage{
			{Role: "system", Content: fmt.Sprintf("You are an English pronunciation assistant. Give the %s IPA transcription of the user's text. Reply with the transcription only.", accent)},
			{Role: "user", Content: text},
		},
		Temperature: 0.1,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

const grammarPrompt = `Analyse the grammar of the following English sentence and answer in JSON.

Sentence: %s

Return an object with:
1. sentence_structure: simple, compound, complex or compound-complex
2. grammar_points: list of the key grammar points
3. difficult_words: list of {"word", "definition", "phonetic", "part_of_speech"}
4. phrases: list of common phrases
5. explanation: overall explanation

Return JSON only.`

func (c *Client) AnalyzeGrammar(ctx context.Context, sentence string) (*Grammar, error) {
	out, err := c.chat(ctx, "analyze grammar", chatRequest{
		Messages: []chatMessage{
			{Role: "system", Content: "You are an English grammar analysis assistant. Always answer with a JSON object."},
			{Role: "user", Content: fmt.Sprintf(grammarPrompt, sentence)},
		},
		Temperature:    0.3,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return nil, err
	}

	grammar := &Grammar{}
	if err := json.Unmarshal([]byte(stripFence(out)), grammar); err != nil {
		return nil, &ServiceError{Op: "analyze grammar", Err: fmt.Errorf("decode analysis: %w", err)}
	}
	return grammar, nil
}

// chat sends one completion request, retrying transport errors, 429 and 5xx.
func (c *Client) chat(ctx context.Context, op string, req chatRequest) (string, error) {
	req.Model = c.model
	body, err := json.Marshal(req)
	if err != nil {
		return "", &ServiceError{Op: op, Err: err}
	}

	operation := func() (string, error) {
		return c.post(ctx, op, body)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 10 * time.Second
	content, err := backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxTries(c.maxRetries))
	if err != nil {
		var serr *ServiceError
		if errors.As(err, &serr) {
			return "", serr
		}
		return "", &ServiceError{Op: op, Err: err}
	}
	return content, nil
}

func (c *Client) post(ctx context.Context, op string, body []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", backoff.Permanent(&ServiceError{Op: op, Err: err})
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &ServiceError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", &ServiceError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		serr := &ServiceError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(truncate(string(raw), 300))}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return "", serr
		}
		return "", backoff.Permanent(serr)
	}

	var decoded chatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", backoff.Permanent(&ServiceError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)})
	}
	if len(decoded.Choices) == 0 || strings.TrimSpace(decoded.Choices[0].Message.Content) == "" {
		return "", backoff.Permanent(&ServiceError{Op: op, StatusCode: resp.StatusCode, Err: ErrEmptyResponse})
	}
	return decoded.Choices[0].Message.Content, nil
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
