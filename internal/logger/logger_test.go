package logger

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, logrus.WarnLevel, parseLevel("warn"))
	assert.Equal(t, logrus.ErrorLevel, parseLevel("error"))
	assert.Equal(t, logrus.InfoLevel, parseLevel(""))
}

func TestNewUsesJSONOutsideLocal(t *testing.T) {
	l := New(Options{Environment: "production", Level: "warn"})
	_, ok := l.Logger.Formatter.(*logrus.JSONFormatter)
	assert.True(t, ok)
	assert.Equal(t, logrus.WarnLevel, l.Logger.GetLevel())
}

func TestWithRequestKeepsIncomingID(t *testing.T) {
	l := New(Options{})
	r := httptest.NewRequest("POST", "/generate", nil)
	r.Header.Set("X-Request-ID", "abc")
	e := l.WithRequest(r)
	assert.Equal(t, "abc", e.Data["req_id"])
	assert.Equal(t, "/generate", e.Data["path"])
}

func TestWithError(t *testing.T) {
	l := New(Options{})
	assert.Equal(t, "boom", l.WithError(errors.New("boom")).Data["error"])
	assert.Equal(t, l.Entry, l.WithError(nil))
}
