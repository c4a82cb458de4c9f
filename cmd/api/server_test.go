package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subforge-go/internal/audio"
	"subforge-go/internal/logger"
	"subforge-go/internal/processor"
	"subforge-go/internal/types"
)

type fakeRunner struct {
	err     error
	gotReq  processor.Request
	gotSrc  audio.Source
	gotItem []types.SubtitleItem
}

func (f *fakeRunner) Generate(_ context.Context, src audio.Source, _ processor.Hooks) (processor.Result, error) {
	f.gotSrc = src
	return processor.Result{RunID: "run-1", Items: []types.SubtitleItem{{ID: 1, Original: "hi"}}}, f.err
}

func (f *fakeRunner) Regenerate(_ context.Context, items []types.SubtitleItem, req processor.Request, src audio.Source, _ processor.Hooks) (processor.Result, error) {
	f.gotReq, f.gotSrc, f.gotItem = req, src, items
	return processor.Result{RunID: "run-2", Items: items}, f.err
}

type silence struct{}

func (silence) Duration() float64                 { return 1 }
func (silence) Slice(_, _ float64) ([]byte, error) { return nil, nil }

func newTestServer(run runner) http.Handler {
	return newRootedServer(run, "", nil)
}

// newRootedServer records every path handed to the decoder in decoded.
func newRootedServer(run runner, root string, decoded *[]string) http.Handler {
	decode := func(_ context.Context, path string) (audio.Source, error) {
		if decoded != nil {
			*decoded = append(*decoded, path)
		}
		if path == "missing.mp4" {
			return nil, errors.New("no such file")
		}
		return silence{}, nil
	}
	log := logger.New(logger.Options{Environment: "test", Level: "error"})
	return newServer(run, decode, root, prometheus.NewRegistry(), log).routes()
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, runResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	var out runResponse
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestHealthz(t *testing.T) {
	rec, _ := do(t, newTestServer(&fakeRunner{}), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestGenerate(t *testing.T) {
	run := &fakeRunner{}
	rec, out := do(t, newTestServer(run), http.MethodPost, "/generate", `{"media_path":"talk.mp4"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "run-1", out.RunID)
	assert.Len(t, out.Items, 1)
	assert.NotNil(t, run.gotSrc)
}

func TestGenerateValidation(t *testing.T) {
	h := newTestServer(&fakeRunner{})
	rec, _ := do(t, h, http.MethodPost, "/generate", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, out := do(t, h, http.MethodPost, "/generate", `{"media_path":"missing.mp4"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, out.Error, "no such file")
}

func TestGeneratePartialStillAnswersItems(t *testing.T) {
	run := &fakeRunner{err: &processor.PartialError{Failed: []int{1}, Err: errors.New("400 unsupported audio")}}
	rec, out := do(t, newTestServer(run), http.MethodPost, "/generate", `{"media_path":"talk.mp4"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, out.Items, 1)
	assert.Contains(t, out.Error, "unsupported audio")
}

func TestMediaRootConfinesPaths(t *testing.T) {
	root := filepath.Join(t.TempDir(), "media")
	var decoded []string
	h := newRootedServer(&fakeRunner{}, root, &decoded)

	for _, p := range []string{"../etc/passwd", "/etc/passwd", filepath.Join(root, "..", "x.mp4")} {
		rec, _ := do(t, h, http.MethodPost, "/generate", fmt.Sprintf(`{"media_path":%q}`, p))
		assert.Equal(t, http.StatusBadRequest, rec.Code, p)
	}
	rec, _ := do(t, h, http.MethodPost, "/regenerate", `{"media_path":"../x.mp4","mode":"retime","items":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, decoded)

	rec, _ = do(t, h, http.MethodPost, "/generate", `{"media_path":"talks/a.mp4"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = do(t, h, http.MethodPost, "/generate", fmt.Sprintf(`{"media_path":%q}`, filepath.Join(root, "b.mp4")))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{filepath.Join(root, "talks", "a.mp4"), filepath.Join(root, "b.mp4")}, decoded)
}

func TestRegenerateWithoutMedia(t *testing.T) {
	run := &fakeRunner{}
	body := `{"mode":"retranslate","batches":[0,2],"comments":{"2":"formal tone"},"items":[{"id":1,"start":"00:00:00,000","end":"00:00:01,000","text_original":"a","text_translated":"b"}]}`
	rec, out := do(t, newTestServer(run), http.MethodPost, "/regenerate", body)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "run-2", out.RunID)
	assert.Equal(t, types.ModeRetranslate, run.gotReq.Mode)
	assert.Equal(t, []int{0, 2}, run.gotReq.Batches)
	assert.Equal(t, "formal tone", run.gotReq.Comments[2])
	assert.Nil(t, run.gotSrc)
	assert.Len(t, run.gotItem, 1)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{&processor.PartialError{Failed: []int{0}}, http.StatusOK},
		{fmt.Errorf("%w: unknown mode", processor.ErrInvalidRequest), http.StatusBadRequest},
		{context.Canceled, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, statusFor(c.err), "%v", c.err)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	rec, _ := do(t, newTestServer(&fakeRunner{}), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
