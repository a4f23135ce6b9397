package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vocdoni/amaci-witness/log"
)

// WriteArtifact encodes the artifact and writes it to path. The data is
// first written to a temporary file in the same directory and then renamed,
// so readers never observe a partial file.
func WriteArtifact(path string, a any, encoding ArtifactEncoding) error {
	data, err := EncodeArtifact(a, encoding)
	if err != nil {
		return fmt.Errorf("encode %s artifact: %w", encoding, err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err := os.Remove(tmp.Name()); err != nil && !os.IsNotExist(err) {
			log.Warnw("could not remove temp artifact", "path", tmp.Name(), "error", err)
		}
	}()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename artifact: %w", err)
	}
	log.Debugw("artifact written", "path", path, "encoding", encoding.String(), "size", len(data))
	return nil
}

// ReadArtifact reads the file at path and decodes it into out.
func ReadArtifact(path string, out any, encoding ArtifactEncoding) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read artifact: %w", err)
	}
	if err := DecodeArtifact(data, out, encoding); err != nil {
		return fmt.Errorf("decode %s artifact %s: %w", encoding, path, err)
	}
	return nil
}
