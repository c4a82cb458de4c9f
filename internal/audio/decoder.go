package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// commandResult is a finished process execution.
type commandResult struct {
	Stdout   []byte
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

type execRunner struct{}

func (r *execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{Stdout: stdout.Bytes(), Stderr: stderr.String()}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}
	return result, nil
}

// Decoder turns any media file ffmpeg understands into an in-memory Buffer.
type Decoder struct {
	ffmpegPath string
	runner     commandRunner
	log        *logrus.Entry
}

func NewDecoder(ffmpegPath string, log *logrus.Entry) *Decoder {
	if strings.TrimSpace(ffmpegPath) == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Decoder{ffmpegPath: ffmpegPath, runner: &execRunner{}, log: log}
}

func (d *Decoder) Decode(ctx context.Context, path string) (*Buffer, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("media path is required")
	}
	args := []string{
		"-nostdin", "-hide_banner", "-v", "error",
		"-i", path,
		"-vn", "-ac", "1", "-ar", fmt.Sprint(SampleRate),
		"-f", "s16le", "-acodec", "pcm_s16le",
		"pipe:1",
	}
	res, err := d.runner.Run(ctx, d.ffmpegPath, args...)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg decode %s (exit %d): %w: %s", path, res.ExitCode, err, strings.TrimSpace(res.Stderr))
	}
	if len(res.Stdout) < bytesPerSample {
		return nil, fmt.Errorf("ffmpeg decode %s: no audio samples", path)
	}
	buf := NewBuffer(res.Stdout)
	if d.log != nil {
		d.log.WithFields(logrus.Fields{"path": path, "duration_sec": buf.Duration()}).Info("audio decoded")
	}
	return buf, nil
}
