package transcription

import (
	"errors"
	"testing"

	"github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subforge-go/internal/types"
)

func TestParseVerbose(t *testing.T) {
	raw := `{"text":"hi there","language":"english","segments":[
		{"id":0,"start":0.0,"end":1.2,"text":" hi "},
		{"id":1,"start":1.2,"end":1.4,"text":"  "},
		{"id":2,"start":1.4,"end":2.9,"text":"there"}]}`
	got, err := parseVerbose(raw)
	require.NoError(t, err)
	assert.Equal(t, []types.Segment{
		{Start: 0, End: 1.2, Text: "hi"},
		{Start: 1.4, End: 2.9, Text: "there"},
	}, got)
}

func TestParseVerboseSilence(t *testing.T) {
	got, err := parseVerbose(`{"text":"","segments":[]}`)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestParseVerboseRejectsTextOnly(t *testing.T) {
	_, err := parseVerbose(`{"text":"hello"}`)
	assert.Error(t, err)

	_, err = parseVerbose(`not json`)
	assert.Error(t, err)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(&openai.Error{StatusCode: 429}))
	assert.True(t, IsTransient(&openai.Error{StatusCode: 503}))
	assert.False(t, IsTransient(&openai.Error{StatusCode: 401}))
	assert.False(t, IsTransient(errors.New("bad file")))
	assert.False(t, IsTransient(nil))
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)

	c, err := New(Options{APIKey: "k", Language: "en", RequestsPerMinute: 60})
	require.NoError(t, err)
	assert.Equal(t, "whisper-1", c.model)
	assert.NotNil(t, c.limiter)
}
