// Package gcp adapts the teacher's GCP VM-provisioning integration
// (internal/cloud/gcp, internal/provisioner/gcp.go) to a narrower concern:
// mirroring the local registry and a project's beads database to a GCS
// bucket so a tracker database can be shared across machines (spec.md
// §4.5's "optional alternative database path" is local-path only; this
// is the multi-machine extension of that idea). Secret Manager access
// (secrets.go, unmodified from the teacher) resolves the bucket name when
// it is kept out of the config file.
package gcp

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"google.golang.org/api/option"
	storage "google.golang.org/api/storage/v1"
)

// ObjectStore is the subset of the GCS JSON API the syncer needs,
// narrowed to an interface so Syncer can be tested without real network
// access.
type ObjectStore interface {
	Upload(ctx context.Context, bucket, object string, data io.Reader) error
	Download(ctx context.Context, bucket, object string) (io.ReadCloser, error)
}

// storageService wraps the real google.golang.org/api/storage/v1 client.
type storageService struct {
	svc *storage.Service
}

// NewObjectStore returns the production ObjectStore backed by the GCS
// JSON API.
func NewObjectStore(ctx context.Context, opts ...option.ClientOption) (ObjectStore, error) {
	svc, err := storage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage service: %w", err)
	}
	return &storageService{svc: svc}, nil
}

func (s *storageService) Upload(ctx context.Context, bucket, object string, data io.Reader) error {
	_, err := s.svc.Objects.Insert(bucket, &storage.Object{Name: object}).Media(data).Context(ctx).Do()
	return err
}

func (s *storageService) Download(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	resp, err := s.svc.Objects.Get(bucket, object).Context(ctx).Download()
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// SyncConfig names the bucket and object prefix a Syncer mirrors
// registry/beads snapshots under.
type SyncConfig struct {
	Bucket           string
	ObjectPrefix     string        // e.g. "orch/<project>"
	BucketSecretName string        // optional Secret Manager secret holding the bucket name
	Timeout          time.Duration // per-object operation timeout, default 30s
}

// Syncer mirrors local files to and from a GCS bucket (spec.md §4.5
// extension, SPEC_FULL.md §11).
type Syncer struct {
	Store  ObjectStore
	Config SyncConfig
}

// NewSyncer returns a Syncer, resolving cfg.Bucket from Secret Manager via
// secrets when cfg.Bucket is empty and BucketSecretName is set.
func NewSyncer(ctx context.Context, store ObjectStore, secrets SecretFetcher, cfg SyncConfig) (*Syncer, error) {
	if cfg.Bucket == "" && cfg.BucketSecretName != "" {
		if secrets == nil {
			return nil, fmt.Errorf("bucket secret %q requested but no secret fetcher configured", cfg.BucketSecretName)
		}
		bucket, err := secrets.FetchSecret(ctx, cfg.BucketSecretName)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve bucket name from secret %q: %w", cfg.BucketSecretName, err)
		}
		cfg.Bucket = bucket
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("sync requires a bucket, either directly or via bucket_secret_name")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Syncer{Store: store, Config: cfg}, nil
}

func (s *Syncer) objectName(localName string) string {
	if s.Config.ObjectPrefix == "" {
		return localName
	}
	return s.Config.ObjectPrefix + "/" + localName
}

// Push uploads localPath to the bucket under name, overwriting any
// existing object (registry and beads snapshots have no versioning
// requirement beyond "latest wins", matching the registry's own
// max-updated_at merge philosophy).
func (s *Syncer) Push(ctx context.Context, localPath, name string) error {
	ctx, cancel := context.WithTimeout(ctx, s.Config.Timeout)
	defer cancel()

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %q for upload: %w", localPath, err)
	}
	defer f.Close()

	if err := s.Store.Upload(ctx, s.Config.Bucket, s.objectName(name), f); err != nil {
		return fmt.Errorf("failed to upload %q to gs://%s/%s: %w", localPath, s.Config.Bucket, s.objectName(name), err)
	}
	return nil
}

// Pull downloads name from the bucket into localPath, creating parent
// directories as needed.
func (s *Syncer) Pull(ctx context.Context, localPath, name string) error {
	ctx, cancel := context.WithTimeout(ctx, s.Config.Timeout)
	defer cancel()

	rc, err := s.Store.Download(ctx, s.Config.Bucket, s.objectName(name))
	if err != nil {
		return fmt.Errorf("failed to download gs://%s/%s: %w", s.Config.Bucket, s.objectName(name), err)
	}
	defer rc.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("failed to create parent directory for %q: %w", localPath, err)
	}

	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create %q for download: %w", localPath, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, rc); err != nil {
		return fmt.Errorf("failed to write downloaded object to %q: %w", localPath, err)
	}
	return nil
}

// PushSnapshot uploads both the registry file and a project's beads
// database as a pair of named objects.
func (s *Syncer) PushSnapshot(ctx context.Context, registryPath, beadsDBPath string) error {
	if err := s.Push(ctx, registryPath, "agent-registry.json"); err != nil {
		return err
	}
	if beadsDBPath == "" {
		return nil
	}
	return s.Push(ctx, beadsDBPath, "beads.db")
}

// PullSnapshot downloads both the registry file and a project's beads
// database from their named objects.
func (s *Syncer) PullSnapshot(ctx context.Context, registryPath, beadsDBPath string) error {
	if err := s.Pull(ctx, registryPath, "agent-registry.json"); err != nil {
		return err
	}
	if beadsDBPath == "" {
		return nil
	}
	return s.Pull(ctx, beadsDBPath, "beads.db")
}
