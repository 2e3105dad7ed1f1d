package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/CZERTAINLY/Brewer/internal/model"
)

func exporters(_ context.Context, cfg model.Service) ([]model.Exporter, error) {
	if cfg.Dir == "" {
		return []model.Exporter{NewWriteExporter(os.Stdout)}, nil
	}
	e, err := NewDirExporter(cfg.Dir)
	if err != nil {
		return nil, err
	}
	return []model.Exporter{e}, nil
}

type WriteExporter struct {
	w io.Writer
}

func NewWriteExporter(w io.Writer) WriteExporter {
	return WriteExporter{w: w}
}

func (e WriteExporter) Export(_ context.Context, raw []byte) error {
	if e.w == nil {
		e.w = os.Stdout
	}
	_, err := e.w.Write(raw)
	return err
}

// DirExporter writes every snapshot into a new timestamped file inside a
// directory.
type DirExporter struct {
	root *os.Root
	now  func() time.Time
}

func NewDirExporter(path string) (*DirExporter, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating snapshot directory: %w", err)
	}
	root, err := os.OpenRoot(path)
	if err != nil {
		return nil, err
	}
	return &DirExporter{root: root, now: time.Now}, nil
}

func (e *DirExporter) Export(ctx context.Context, b []byte) error {
	if e.root == nil {
		return errors.New("exporter already closed")
	}

	path := "brewer-" + e.now().UTC().Format("2006-01-02-15-04-05.000") + ".json"

	f, err := e.root.Create(path)
	if err != nil {
		return fmt.Errorf("creating snapshot: %w", err)
	}
	_, err = f.Write(b)
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("saving snapshot: %w", err)
	}
	err = f.Close()
	if err != nil {
		return fmt.Errorf("closing snapshot: %w", err)
	}
	slog.InfoContext(ctx, "snapshot saved", "dir", e.root.Name(), "path", path)
	return nil
}

func (e *DirExporter) Close() error {
	if e.root == nil {
		return errors.New("exporter already closed")
	}
	err := e.root.Close()
	e.root = nil
	return err
}
