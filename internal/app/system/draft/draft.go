// Package draft asks an OpenAI-compatible chat-completions endpoint for an
// article draft (title, content, tags) on a topic.
package draft

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sociodev/sociodev/internal/app/system/apperr"
	"github.com/sociodev/sociodev/internal/app/system/normalize"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	DefaultModel   = "llama-3.3-70b-versatile"
	defaultTimeout = 30 * time.Second

	// maxResponseBytes caps how much of a completion response is read.
	maxResponseBytes = 1 << 20
)

var (
	// ErrNotConfigured is returned by Generate when no API key is set.
	ErrNotConfigured = errors.New("draft generation is not configured")
	// ErrMalformed is returned when the model's answer lacks a title or content.
	ErrMalformed = errors.New("could not parse generated draft")
)

// Config selects the endpoint. An empty APIKey disables the client.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Draft is a generated article proposal. Nothing is stored.
type Draft struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

type Client struct {
	url   string
	model string
	http  *http.Client
	log   *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Client {
	c := &Client{
		url:   strings.TrimRight(orDefault(cfg.BaseURL, DefaultBaseURL), "/") + "/chat/completions",
		model: orDefault(cfg.Model, DefaultModel),
		log:   logger,
	}
	if cfg.APIKey == "" {
		return c
	}
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.APIKey, TokenType: "Bearer"})
	c.http = oauth2.NewClient(context.Background(), src)
	c.http.Timeout = cfg.Timeout
	if c.http.Timeout <= 0 {
		c.http.Timeout = defaultTimeout
	}
	return c
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// Enabled reports whether an API key was configured.
func (c *Client) Enabled() bool { return c.http != nil }

// Prompt is the instruction sent for topic.
func Prompt(topic string) string {
	return fmt.Sprintf("Generate an article draft based on the topic: %q. "+
		"Provide a suitable title, a short article content (around 100-150 words), "+
		"and 3-5 relevant comma-separated tags. Format the output exactly like this, "+
		"with each part on a new line and no extra characters or formatting like asterisks or markdown:\n"+
		"Title: [Generated Title]\nContent: [Generated Content]\nTags: [tag1, tag2, tag3]", topic)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generate returns a draft for topic.
func (c *Client) Generate(ctx context.Context, topic string) (Draft, error) {
	if !c.Enabled() {
		return Draft{}, ErrNotConfigured
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return Draft{}, fmt.Errorf("topic is required: %w", apperr.ErrInvalid)
	}

	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: Prompt(topic)}},
	})
	if err != nil {
		return Draft{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Draft{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Draft{}, errors.Join(apperr.ErrUnavailable, fmt.Errorf("draft request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("draft endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return Draft{}, errors.Join(apperr.ErrUnavailable, err)
		}
		return Draft{}, err
	}

	var out chatResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return Draft{}, fmt.Errorf("%w: decode response: %v", ErrMalformed, err)
	}
	if len(out.Choices) == 0 {
		return Draft{}, ErrMalformed
	}

	text := out.Choices[0].Message.Content
	d, err := Parse(text)
	if err != nil {
		c.log.Warn("unparseable draft", zap.String("topic", topic), zap.String("raw", text))
		return Draft{}, err
	}
	return d, nil
}

// Parse extracts a Draft from text laid out as "Title:", "Content:" and
// "Tags:" lines. Labels match case-insensitively, markdown emphasis is
// ignored, and unlabelled lines after Content are kept as further
// paragraphs. Tags are optional.
func Parse(text string) (Draft, error) {
	var (
		d       Draft
		content []string
		inBody  bool
	)
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(strings.ReplaceAll(raw, "**", ""))
		line = strings.TrimLeft(line, "#*_ ")

		label, rest, ok := strings.Cut(line, ":")
		if ok {
			rest = strings.TrimSpace(rest)
			switch strings.ToLower(strings.TrimSpace(label)) {
			case "title":
				d.Title = strings.Trim(rest, `"`)
				inBody = false
				continue
			case "content":
				content = append(content[:0], rest)
				inBody = true
				continue
			case "tags":
				d.Tags = parseTags(rest)
				inBody = false
				continue
			}
		}
		if inBody {
			content = append(content, line)
		}
	}

	d.Content = strings.TrimSpace(strings.Join(content, "\n"))
	if d.Title == "" || d.Content == "" {
		return Draft{}, ErrMalformed
	}
	if d.Tags == nil {
		d.Tags = []string{}
	}
	return d, nil
}

func parseTags(s string) []string {
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	tags := normalize.SplitTags(s)
	for i, t := range tags {
		tags[i] = strings.TrimLeft(t, "#")
	}
	return normalize.Tags(tags)
}
