// Package artifact stores calibration outputs (spoof models, threshold
// reports) as named YAML documents on local disk or in an S3-compatible
// bucket, so that offline calibration can hand its results to the
// verification engine.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/goccy/go-yaml"
)

// ErrNotFound is returned when an artifact does not exist.
var ErrNotFound = errors.New("artifact: not found")

// Store holds artifacts by name. Names are forward-slash separated
// relative paths such as "spoof/model.yaml".
//
// Implementations must be safe for concurrent use.
type Store interface {
	Put(ctx context.Context, name string, data []byte) error
	// Get returns ErrNotFound for missing artifacts.
	Get(ctx context.Context, name string) ([]byte, error)
	// List returns the names under prefix in lexicographic order.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Save encodes v as YAML and stores it under name.
func Save[T any](ctx context.Context, s Store, name string, v T) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("artifact: encode %s: %w", name, err)
	}
	return s.Put(ctx, name, data)
}

// Load reads the YAML artifact name into a new T.
func Load[T any](ctx context.Context, s Store, name string) (T, error) {
	var v T
	data, err := s.Get(ctx, name)
	if err != nil {
		return v, err
	}
	if err := yaml.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("artifact: decode %s: %w", name, err)
	}
	return v, nil
}

// Location is a parsed artifact location: a local directory or an S3
// bucket with an optional key prefix.
type Location struct {
	Bucket string // empty for local
	Prefix string // key prefix within the bucket
	Dir    string // local directory
}

// IsS3 reports whether the location names a bucket.
func (l Location) IsS3() bool { return l.Bucket != "" }

// ParseLocation accepts "s3://bucket/prefix" or a filesystem path.
func ParseLocation(loc string) (Location, error) {
	rest, ok := strings.CutPrefix(loc, "s3://")
	if !ok {
		if loc == "" {
			return Location{}, errors.New("artifact: empty location")
		}
		return Location{Dir: loc}, nil
	}
	bucket, prefix, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return Location{}, fmt.Errorf("artifact: missing bucket in %q", loc)
	}
	return Location{Bucket: bucket, Prefix: strings.Trim(prefix, "/")}, nil
}

func cleanName(name string) (string, error) {
	clean := path.Clean("/" + name)[1:]
	if clean == "" || clean != name {
		return "", fmt.Errorf("artifact: invalid name %q", name)
	}
	return clean, nil
}
