// Package payloads keeps audit copies of documents sent to the archive.
package payloads

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Store stores payloads. Keys are slash separated paths.
type Store interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

// Key returns a key of a payload: "<table>/<identity>/<timestamp>/<name>".
func Key(table string, identity string, at time.Time, name string) string {
	return strings.Join([]string{
		table,
		strings.ReplaceAll(identity, "/", "_"),
		at.UTC().Format("20060102T150405.000000000Z"),
		name,
	}, "/")
}

// None drops payloads.
type None struct{}

func (None) Put(context.Context, string, []byte, string) error {
	return nil
}

// FS stores payloads as files under Dir.
type FS struct {
	Dir string
}

func (f FS) Put(_ context.Context, key string, body []byte, _ string) error {
	dest := filepath.Join(f.Dir, filepath.FromSlash(key))
	if !strings.HasPrefix(dest, filepath.Clean(f.Dir)+string(filepath.Separator)) {
		return fmt.Errorf("payload key escapes the directory: %s", key)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dest, body, 0o644)
}
