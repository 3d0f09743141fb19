package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/ja38055/TechFataFat/internal/logger"
	"github.com/ja38055/TechFataFat/internal/models"
	"go.uber.org/zap"
)

// LocalSink "publishes" into a directory tree. Used for dry runs and when no
// remote target is configured.
type LocalSink struct {
	dir string
	log *zap.Logger
	now func() time.Time
}

func NewLocalSink(dir string, log *zap.Logger) *LocalSink {
	return &LocalSink{dir: dir, log: logger.Named(log, "local-sink"), now: time.Now}
}

func (l *LocalSink) Name() string { return "local" }

// Publish copies the artifact to <dir>/<channel>/<date>/<id>.mp4 next to a
// metadata sidecar and returns the video path.
func (l *LocalSink) Publish(ctx context.Context, artifact models.Artifact) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	base := filepath.Join(l.dir, filepath.FromSlash(ObjectPath(artifact.Metadata.Channel, l.now(), uuid.New())))
	if err := os.MkdirAll(filepath.Dir(base), 0o755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}

	dst := base + ".mp4"
	if err := copyFile(artifact.Path, dst); err != nil {
		return "", err
	}

	sidecar, err := json.MarshalIndent(artifact.Metadata, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(base+".json", sidecar, 0o644); err != nil {
		return "", fmt.Errorf("failed to write metadata: %w", err)
	}

	l.log.Info("short written", zap.String("path", dst))
	return dst, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open artifact: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("failed to copy artifact: %w", err)
	}
	return out.Close()
}
