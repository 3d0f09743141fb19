package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ja38055/TechFataFat/internal/logger"
	"github.com/ja38055/TechFataFat/internal/models"
	"go.uber.org/zap"
)

// Output / rendering constants. Shorts are 1080x1920 portrait at 30fps.
const (
	OutputWidth  = 1080
	OutputHeight = 1920
	videoFPS     = 30

	audioSampleRate = 44100
	stderrTailBytes = 2048
)

// ---------------------------------------------------------------------------
// FFmpegService
// ---------------------------------------------------------------------------

type FFmpegService struct {
	ffmpegPath  string
	ffprobePath string
	log         *zap.Logger
}

func NewFFmpegService(ffmpegPath, ffprobePath string, log *zap.Logger) *FFmpegService {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpegService{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		log:         logger.Named(log, "ffmpeg"),
	}
}

// CommandError is returned when ffmpeg or ffprobe exits unsuccessfully. Stderr
// holds the tail of the tool's diagnostic output.
type CommandError struct {
	Tool     string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s exited with code %d: %s", e.Tool, e.ExitCode, e.Stderr)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// StillRenderJob describes one still-image video render.
type StillRenderJob struct {
	ImagePath    string
	AudioPath    string
	SubtitlePath string  // optional ASS file burned into the video
	Duration     float64 // exact output length in seconds
	PadAudio     bool    // pad the audio with trailing silence up to Duration
	OutputPath   string
}

// RenderStill loops a single image for the job's duration under the audio
// track. Short audio is padded with silence (apad) when PadAudio is set and
// long audio is cut at Duration (-t); narration is never looped.
func (s *FFmpegService) RenderStill(ctx context.Context, job StillRenderJob) error {
	args := buildStillRenderArgs(job)
	s.log.Info("rendering still video",
		zap.String("output", job.OutputPath),
		zap.Float64("duration", job.Duration),
		zap.Bool("pad_audio", job.PadAudio))

	if err := s.run(ctx, s.ffmpegPath, args...); err != nil {
		return fmt.Errorf("ffmpeg render still failed: %w", err)
	}
	return nil
}

func buildStillRenderArgs(job StillRenderJob) []string {
	args := []string{
		"-loop", "1",
		"-framerate", strconv.Itoa(videoFPS),
		"-i", job.ImagePath,
		"-i", job.AudioPath,
		"-map", "0:v",
		"-map", "1:a",
	}

	vf := fmt.Sprintf("scale=%d:%d,format=yuv420p", OutputWidth, OutputHeight)
	if job.SubtitlePath != "" {
		vf += fmt.Sprintf(",ass='%s'", escapeFFmpegFilterPath(job.SubtitlePath))
	}
	args = append(args, "-vf", vf)

	if job.PadAudio {
		args = append(args, "-af", "apad")
	}

	args = append(args,
		"-t", models.SecondsString(job.Duration),
		"-c:v", "libx264",
		"-tune", "stillimage",
		"-c:a", "aac",
		"-b:a", "192k",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		"-y",
		job.OutputPath,
	)
	return args
}

// escapeFFmpegFilterPath escapes special characters in file paths for FFmpeg filter syntax.
// FFmpeg filter strings treat colons, backslashes, and single quotes specially.
func escapeFFmpegFilterPath(path string) string {
	path = strings.ReplaceAll(path, "\\", "\\\\")
	path = strings.ReplaceAll(path, ":", "\\:")
	path = strings.ReplaceAll(path, "'", "'\\''")
	return path
}

// ConcatAudio joins audio files in order into one PCM WAV file. Inputs are
// resampled to a common rate and layout so clips from different providers
// join without gaps.
func (s *FFmpegService) ConcatAudio(ctx context.Context, inputPaths []string, outputPath string) error {
	if len(inputPaths) == 0 {
		return fmt.Errorf("no audio to concatenate")
	}

	args := buildConcatArgs(inputPaths, outputPath)
	s.log.Debug("concatenating audio", zap.Int("inputs", len(inputPaths)), zap.String("output", outputPath))

	if err := s.run(ctx, s.ffmpegPath, args...); err != nil {
		return fmt.Errorf("ffmpeg concatenate failed: %w", err)
	}
	return nil
}

func buildConcatArgs(inputPaths []string, outputPath string) []string {
	var args []string
	var filter strings.Builder
	for i, p := range inputPaths {
		args = append(args, "-i", p)
		fmt.Fprintf(&filter, "[%d:a]aresample=%d,aformat=channel_layouts=stereo[a%d];", i, audioSampleRate, i)
	}
	for i := range inputPaths {
		fmt.Fprintf(&filter, "[a%d]", i)
	}
	fmt.Fprintf(&filter, "concat=n=%d:v=0:a=1[aout]", len(inputPaths))

	args = append(args,
		"-filter_complex", filter.String(),
		"-map", "[aout]",
		"-c:a", "pcm_s16le",
		"-y",
		outputPath,
	)
	return args
}

// MixBed mixes a looping background bed under the narration. The bed loops
// if shorter than the narration and is cut when the narration ends
// (amix duration=first), so the mixed track keeps the narration's length.
func (s *FFmpegService) MixBed(ctx context.Context, narrationPath, bedPath, outputPath string, volume float64) error {
	if volume <= 0 {
		volume = 0.12
	}

	// [0:a] = narration (full volume), [1:a] = bed (attenuated)
	// dropout_transition=3: 3-second fade when the bed input ends
	filterComplex := fmt.Sprintf(
		"[0:a]volume=1.0[narration];[1:a]volume=%.2f[music];[narration][music]amix=inputs=2:duration=first:dropout_transition=3[aout]",
		volume,
	)

	args := []string{
		"-i", narrationPath,
		"-stream_loop", "-1",
		"-i", bedPath,
		"-filter_complex", filterComplex,
		"-map", "[aout]",
		"-c:a", "pcm_s16le",
		"-ar", strconv.Itoa(audioSampleRate),
		"-y",
		outputPath,
	}

	s.log.Debug("mixing background bed", zap.String("bed", bedPath), zap.Float64("volume", volume))

	if err := s.run(ctx, s.ffmpegPath, args...); err != nil {
		return fmt.Errorf("ffmpeg mix background bed failed: %w", err)
	}
	return nil
}

// GenerateSilence writes a silent stereo WAV of the given length.
func (s *FFmpegService) GenerateSilence(ctx context.Context, seconds float64, outputPath string) error {
	args := []string{
		"-f", "lavfi",
		"-i", fmt.Sprintf("anullsrc=r=%d:cl=stereo", audioSampleRate),
		"-t", models.SecondsString(seconds),
		"-c:a", "pcm_s16le",
		"-y",
		outputPath,
	}

	if err := s.run(ctx, s.ffmpegPath, args...); err != nil {
		return fmt.Errorf("ffmpeg generate silence failed: %w", err)
	}
	return nil
}

// GetAudioDuration returns the duration of a media file in seconds
func (s *FFmpegService) GetAudioDuration(ctx context.Context, path string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}

	cmd := exec.CommandContext(ctx, s.ffprobePath, args...)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	return parseDuration(string(output))
}

func parseDuration(output string) (float64, error) {
	durationSec, err := strconv.ParseFloat(strings.TrimSpace(output), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration %q: %w", strings.TrimSpace(output), err)
	}
	if durationSec < 0 {
		return 0, fmt.Errorf("negative duration %v", durationSec)
	}
	return durationSec, nil
}

// run executes a tool and captures its stderr so failures carry the
// encoder's own diagnostics.
func (s *FFmpegService) run(ctx context.Context, tool string, args ...string) error {
	cmd := exec.CommandContext(ctx, tool, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}

	exitCode := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	}
	return &CommandError{
		Tool:     filepath.Base(tool),
		ExitCode: exitCode,
		Stderr:   tail(stderr.String(), stderrTailBytes),
		Err:      err,
	}
}

// tail keeps the last n bytes of s, which is where ffmpeg reports the error.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
