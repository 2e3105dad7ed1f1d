package model

import "context"

// Exporter stores a serialized package snapshot.
type Exporter interface {
	Export(ctx context.Context, raw []byte) error
}

type ExportCloser interface {
	Exporter
	Close() error
}
