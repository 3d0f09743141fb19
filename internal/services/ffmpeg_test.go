package services

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func argValue(args []string, flag string) (string, bool) {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1], true
		}
	}
	return "", false
}

func TestBuildStillRenderArgs(t *testing.T) {
	args := buildStillRenderArgs(StillRenderJob{
		ImagePath:  "/w/visual.png",
		AudioPath:  "/w/track.wav",
		Duration:   30,
		PadAudio:   true,
		OutputPath: "/w/short.mp4",
	})

	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-loop 1")
	assert.Contains(t, joined, "-i /w/visual.png -i /w/track.wav")
	assert.Contains(t, joined, "-tune stillimage")
	assert.Contains(t, joined, "-pix_fmt yuv420p")

	d, ok := argValue(args, "-t")
	require.True(t, ok)
	assert.Equal(t, "30.000", d)

	af, ok := argValue(args, "-af")
	require.True(t, ok)
	assert.Equal(t, "apad", af)

	vf, _ := argValue(args, "-vf")
	assert.Equal(t, "scale=1080:1920,format=yuv420p", vf)
	assert.Equal(t, "/w/short.mp4", args[len(args)-1])
}

func TestBuildStillRenderArgsNoPadWithCaptions(t *testing.T) {
	args := buildStillRenderArgs(StillRenderJob{
		ImagePath:    "v.png",
		AudioPath:    "a.wav",
		SubtitlePath: "/tmp/run:1/captions.ass",
		Duration:     60,
		OutputPath:   "o.mp4",
	})

	_, hasAF := argValue(args, "-af")
	assert.False(t, hasAF, "long audio must be cut, not padded")

	vf, _ := argValue(args, "-vf")
	assert.Contains(t, vf, `ass='/tmp/run\:1/captions.ass'`)

	d, _ := argValue(args, "-t")
	assert.Equal(t, "60.000", d)
}

func TestBuildConcatArgsPreservesOrder(t *testing.T) {
	args := buildConcatArgs([]string{"c0.mp3", "c1.mp3", "c2.mp3"}, "out.wav")

	var inputs []string
	for i := 0; i < len(args)-1; i++ {
		if args[i] == "-i" {
			inputs = append(inputs, args[i+1])
		}
	}
	assert.Equal(t, []string{"c0.mp3", "c1.mp3", "c2.mp3"}, inputs)

	fc, ok := argValue(args, "-filter_complex")
	require.True(t, ok)
	assert.Contains(t, fc, "[a0][a1][a2]concat=n=3:v=0:a=1[aout]")
	assert.Equal(t, "out.wav", args[len(args)-1])
}

func TestParseDuration(t *testing.T) {
	d, err := parseDuration("12.345000\n")
	require.NoError(t, err)
	assert.InDelta(t, 12.345, d, 1e-9)

	_, err = parseDuration("N/A")
	assert.Error(t, err)

	_, err = parseDuration("-1")
	assert.Error(t, err)
}

func TestTail(t *testing.T) {
	assert.Equal(t, "short", tail("  short \n", 10))
	assert.Equal(t, "...6789", tail("0123456789", 4))
}

func TestEscapeFFmpegFilterPath(t *testing.T) {
	assert.Equal(t, `C\:\\x`, escapeFFmpegFilterPath(`C:\x`))
	assert.Equal(t, `it'\''s`, escapeFFmpegFilterPath(`it's`))
}

func TestRunReportsCommandError(t *testing.T) {
	s := NewFFmpegService("", "", zap.NewNop())
	err := s.run(context.Background(), "false")
	require.Error(t, err)

	var cmdErr *CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, "false", cmdErr.Tool)
	assert.Equal(t, 1, cmdErr.ExitCode)
}

func TestGetAudioDurationMissingProbe(t *testing.T) {
	s := NewFFmpegService("", filepath.Join(t.TempDir(), "no-ffprobe"), zap.NewNop())
	_, err := s.GetAudioDuration(context.Background(), "x.mp3")
	assert.Error(t, err)
}

func TestConcatAudioRejectsEmpty(t *testing.T) {
	s := NewFFmpegService("", "", zap.NewNop())
	assert.Error(t, s.ConcatAudio(context.Background(), nil, "out.wav"))
}
