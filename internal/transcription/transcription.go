package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"subforge-go/internal/types"
)

type Options struct {
	APIKey            string
	BaseURL           string
	Model             string
	Language          string
	RequestsPerMinute int
	Timeout           time.Duration
	Log               *logrus.Entry
}

// Client transcribes WAV slices with an OpenAI-compatible speech-to-text endpoint.
type Client struct {
	client   openai.Client
	model    string
	language string
	limiter  *rate.Limiter
	log      *logrus.Entry
}

func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("whisper api key is not configured")
	}
	clientOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		// retries are driven by the caller's policy
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.Timeout > 0 {
		clientOpts = append(clientOpts, option.WithRequestTimeout(opts.Timeout))
	}
	model := opts.Model
	if model == "" {
		model = string(openai.AudioModelWhisper1)
	}
	var limiter *rate.Limiter
	if opts.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}
	return &Client{
		client:   openai.NewClient(clientOpts...),
		model:    model,
		language: opts.Language,
		limiter:  limiter,
		log:      opts.Log,
	}, nil
}

// verboseResponse is the subset of verbose_json we read.
type verboseResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// Transcribe returns chunk-relative segments for one WAV slice.
func (c *Client) Transcribe(ctx context.Context, wav []byte) ([]types.Segment, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	params := openai.AudioTranscriptionNewParams{
		File:                   openai.File(bytes.NewReader(wav), "chunk.wav", "audio/wav"),
		Model:                  openai.AudioModel(c.model),
		ResponseFormat:         openai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []string{"segment"},
	}
	if lang := strings.TrimSpace(c.language); lang != "" && lang != "auto" {
		params.Language = openai.String(lang)
	}

	start := time.Now()
	resp, err := c.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("whisper transcribe: %w", err)
	}
	segs, err := parseVerbose(resp.RawJSON())
	if err != nil {
		return nil, err
	}
	if c.log != nil {
		c.log.WithFields(logrus.Fields{
			"segments":   len(segs),
			"bytes":      len(wav),
			"elapsed_ms": time.Since(start).Milliseconds(),
		}).Debug("whisper response")
	}
	return segs, nil
}

func parseVerbose(raw string) ([]types.Segment, error) {
	var v verboseResponse
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("whisper response decode: %w", err)
	}
	out := make([]types.Segment, 0, len(v.Segments))
	for _, s := range v.Segments {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		out = append(out, types.Segment{Start: s.Start, End: s.End, Text: text})
	}
	// some compatible servers return only text
	if len(out) == 0 && strings.TrimSpace(v.Text) != "" {
		return nil, fmt.Errorf("whisper response has text but no segments")
	}
	return out, nil
}

// IsTransient reports rate-limit and server-side failures worth retrying.
func IsTransient(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "overloaded")
}
