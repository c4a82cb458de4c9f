package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"subforge-go/internal/types"
)

type Options struct {
	APIKey            string
	Model             string
	RequestsPerMinute int
	Timeout           time.Duration
	Log               *logrus.Entry
}

// Client adapts the Gemini API to JSON-array producing requests.
type Client struct {
	client  *genai.Client
	model   string
	limiter *rate.Limiter
	timeout time.Duration
	log     *logrus.Entry
}

func New(ctx context.Context, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("gemini api key is not configured")
	}
	c, err := genai.NewClient(ctx, option.WithAPIKey(opts.APIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Client{
		client:  c,
		model:   opts.Model,
		limiter: newLimiter(opts.RequestsPerMinute),
		timeout: opts.Timeout,
		log:     opts.Log,
	}, nil
}

func (c *Client) Close() error { return c.client.Close() }

// Generate sends the conversation in req and returns the concatenated text of the first
// candidate. Output cut off by the token limit is returned as-is.
func (c *Client) Generate(ctx context.Context, req types.GenerateRequest) (string, error) {
	if len(req.History) == 0 {
		return "", fmt.Errorf("gemini: empty conversation")
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	name := req.Model
	if name == "" {
		name = c.model
	}
	model := c.client.GenerativeModel(name)
	configureModel(model, req)

	history := toContents(req.History)
	last := history[len(history)-1]
	cs := model.StartChat()
	cs.History = history[:len(history)-1]

	start := time.Now()
	resp, err := cs.SendMessage(ctx, last.Parts...)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	text, finish := responseText(resp)
	if c.log != nil {
		c.log.WithFields(logrus.Fields{
			"model":         name,
			"schema":        string(req.Schema),
			"turns":         len(req.History),
			"finish_reason": finish.String(),
			"chars":         len(text),
			"elapsed_ms":    time.Since(start).Milliseconds(),
		}).Debug("gemini response")
	}
	if text == "" && finish != genai.FinishReasonMaxTokens {
		return "", fmt.Errorf("gemini: empty response (finish reason %s)", finish.String())
	}
	return text, nil
}

func configureModel(model *genai.GenerativeModel, req types.GenerateRequest) {
	model.SetTemperature(0.2)
	if req.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}
	if s := schemaFor(req.Schema); s != nil {
		model.ResponseMIMEType = "application/json"
		model.ResponseSchema = s
	}
}

func toContents(msgs []types.Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		c := &genai.Content{Role: string(m.Role)}
		for _, p := range m.Parts {
			if len(p.Data) > 0 {
				c.Parts = append(c.Parts, genai.Blob{MIMEType: p.MIMEType, Data: p.Data})
				continue
			}
			c.Parts = append(c.Parts, genai.Text(p.Text))
		}
		out = append(out, c)
	}
	return out
}

func responseText(resp *genai.GenerateContentResponse) (string, genai.FinishReason) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", genai.FinishReasonUnspecified
	}
	cand := resp.Candidates[0]
	var b strings.Builder
	if cand.Content != nil {
		for _, p := range cand.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
	}
	return b.String(), cand.FinishReason
}

func newLimiter(rpm int) *rate.Limiter {
	if rpm <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1)
}

// IsTransient reports rate-limit and overload failures worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"resource_exhausted", "resource exhausted", "unavailable", "overloaded", "429", "503"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
