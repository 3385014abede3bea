package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Prober reads duration and still frames from a local video file.
type Prober interface {
	Duration(ctx context.Context, path string) (int, error)
	ExtractFrame(ctx context.Context, path string, offset time.Duration, out string) error
}

// FFmpegProber shells out to ffprobe/ffmpeg.
type FFmpegProber struct {
	ffmpegPath  string
	ffprobePath string
	timeout     time.Duration
}

// NewFFmpegProber creates a prober. An empty ffprobePath is derived from ffmpegPath.
func NewFFmpegProber(ffmpegPath, ffprobePath string, timeout time.Duration) *FFmpegProber {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = strings.Replace(ffmpegPath, "ffmpeg", "ffprobe", 1)
	}
	return &FFmpegProber{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath, timeout: timeout}
}

// ffprobeOutput defines the structure for ffprobe JSON output.
type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Duration returns the container duration in whole seconds (truncated).
func (p *FFmpegProber) Duration(ctx context.Context, path string) (int, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "json",
		path,
	}
	out, err := p.run(ctx, p.ffprobePath, args)
	if err != nil {
		return 0, err
	}
	return parseDuration(out, path)
}

func parseDuration(out []byte, path string) (int, error) {
	var probeData ffprobeOutput
	if err := json.Unmarshal(out, &probeData); err != nil {
		return 0, fmt.Errorf("failed to unmarshal ffprobe output for %s: %w", path, err)
	}
	if probeData.Format.Duration == "" || probeData.Format.Duration == "N/A" {
		return 0, fmt.Errorf("duration not found in ffprobe output for %s", path)
	}
	seconds, err := strconv.ParseFloat(probeData.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration string %q for %s: %w", probeData.Format.Duration, path, err)
	}
	if seconds < 0 {
		return 0, fmt.Errorf("negative duration %q for %s", probeData.Format.Duration, path)
	}
	return int(seconds), nil
}

// ExtractFrame writes a single JPEG frame taken at offset into out.
func (p *FFmpegProber) ExtractFrame(ctx context.Context, path string, offset time.Duration, out string) error {
	args := []string{
		"-v", "error",
		"-ss", strconv.FormatFloat(offset.Seconds(), 'f', 3, 64),
		"-i", path,
		"-frames:v", "1",
		"-q:v", "2",
		"-y", out,
	}
	_, err := p.run(ctx, p.ffmpegPath, args)
	return err
}

func (p *FFmpegProber) run(ctx context.Context, bin string, args []string) ([]byte, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s timed out: %w", bin, ctx.Err())
		}
		return nil, fmt.Errorf("%s execution failed: %w\nstderr: %s", bin, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// ThumbnailOffset picks the still for a video of the given length:
// 20% in, never earlier than one second.
func ThumbnailOffset(durationSeconds int) time.Duration {
	offset := time.Duration(durationSeconds) * time.Second / 5
	if offset < time.Second {
		return time.Second
	}
	return offset
}
