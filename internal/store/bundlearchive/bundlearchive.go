// Package bundlearchive mirrors a proof bundle directory
// (internal/proofbundle.Builder's output) off-box to Supabase Storage, so
// a JobProofBundle.v1/InvoiceBundle.v1 survives past local disk retention.
// This is archival only; internal/proofbundle/verify.go always verifies
// against the local filesystem copy; the archive is never read back into
// the verification path. Talks to the Supabase Storage sub-client
// directly (object blobs, not rows).
package bundlearchive

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	supabase "github.com/supabase-community/supabase-go"
)

// Archive uploads proof-bundle directories to a single Supabase Storage
// bucket, one object per file, keyed by the bundle's relative path.
type Archive struct {
	client *supabase.Client
	bucket string
	log    *slog.Logger
}

// New connects to the given Supabase project (service-role key required
// for Storage writes) and targets bucket for every subsequent Upload.
func New(projectURL, serviceKey, bucket string, log *slog.Logger) (*Archive, error) {
	client, err := supabase.NewClient(projectURL, serviceKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("bundlearchive: new supabase client: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Archive{client: client, bucket: bucket, log: log.With("component", "bundlearchive")}, nil
}

// Upload walks localDir (a bundle directory produced by proofbundle.Builder)
// and stores every regular file under objectPrefix/<relative path> in the
// configured bucket. Returns the list of object keys written, in walk
// order, so a caller can record them (e.g. alongside the manifest hash).
func (a *Archive) Upload(ctx context.Context, localDir, objectPrefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(localDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(localDir, path)
		if err != nil {
			return err
		}
		key := strings.TrimPrefix(objectPrefix+"/"+filepath.ToSlash(rel), "/")

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("bundlearchive: read %s: %w", path, err)
		}
		if _, err := a.client.Storage.UpdateFile(a.bucket, key, strings.NewReader(string(data))); err != nil {
			// UpdateFile fails on a key that doesn't exist yet; fall back
			// to a fresh upload before giving up.
			if _, err2 := a.client.Storage.UploadFile(a.bucket, key, strings.NewReader(string(data))); err2 != nil {
				return fmt.Errorf("bundlearchive: upload %s: %w", key, err2)
			}
		}
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return nil, err
	}
	a.log.Info("archived proof bundle", "localDir", localDir, "bucket", a.bucket, "objectCount", len(keys))
	return keys, nil
}
