// Package tissuedge holds the input helpers shared by the pipeline packages:
// opening local or gs:// tables, transparent decompression, and delimiter
// sniffing.
package tissuedge

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/carbocation/pfx"
)

// IsGoogleStoragePath reports whether p names a Google Storage object.
func IsGoogleStoragePath(p string) bool {
	return strings.HasPrefix(p, "gs://")
}

// JoinPath joins a stage directory and a file name, treating gs:// locations
// as URLs rather than local paths.
func JoinPath(dir, name string) string {
	if IsGoogleStoragePath(dir) {
		return "gs://" + path.Join(strings.TrimPrefix(dir, "gs://"), name)
	}

	return filepath.Join(ExpandHome(dir), name)
}

// splitGoogleStoragePath returns the bucket and object names of a gs:// path.
func splitGoogleStoragePath(p string) (bucket, object string, err error) {
	pathParts := strings.SplitN(strings.TrimPrefix(p, "gs://"), "/", 2)
	if len(pathParts) != 2 || pathParts[0] == "" || pathParts[1] == "" {
		return "", "", fmt.Errorf("Tried to split your google storage path into 2 parts, but got %d: %v", len(pathParts), pathParts)
	}

	return pathParts[0], pathParts[1], nil
}

type decompressingReadCloser struct {
	io.Reader
	underlying io.Closer
}

func (d *decompressingReadCloser) Close() error {
	if c, ok := d.Reader.(io.Closer); ok {
		if err := c.Close(); err != nil {
			d.underlying.Close()
			return err
		}
	}

	return d.underlying.Close()
}

// Open opens a local file or, when client is non-nil and the path begins
// with gs://, a Google Storage object. Compressed inputs are transparently
// decompressed.
func Open(ctx context.Context, p string, client *storage.Client) (io.ReadCloser, error) {
	var raw io.ReadCloser

	if IsGoogleStoragePath(p) {
		if client == nil {
			return nil, pfx.Err(fmt.Errorf("%s: a storage client is required for gs:// paths", p))
		}

		bucketName, objectName, err := splitGoogleStoragePath(p)
		if err != nil {
			return nil, pfx.Err(err)
		}

		rdr, err := client.Bucket(bucketName).Object(objectName).NewReader(ctx)
		if err != nil {
			return nil, pfx.Err(fmt.Errorf("%s: %w", p, err))
		}
		raw = rdr
	} else {
		f, err := os.Open(ExpandHome(p))
		if err != nil {
			return nil, pfx.Err(err)
		}
		raw = f
	}

	r, _, err := MaybeDecompressReader(raw)
	if err != nil {
		raw.Close()
		return nil, pfx.Err(fmt.Errorf("%s: %w", p, err))
	}

	return &decompressingReadCloser{Reader: r, underlying: raw}, nil
}

// Exists reports whether a local path exists. Object storage paths are
// assumed to exist; opening them reports the error instead.
func Exists(p string) bool {
	if IsGoogleStoragePath(p) {
		return true
	}

	_, err := os.Stat(ExpandHome(p))
	return err == nil
}
