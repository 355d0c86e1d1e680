package cli

import (
	"context"
	"fmt"

	"github.com/dconlin/orch/internal/cloud/gcp"
	"github.com/spf13/cobra"
)

var (
	syncBucket       string
	syncBucketSecret string
	syncPrefix       string
	syncBeadsDB      string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Mirror the registry and a project's beads database to GCS",
	Long: `sync uploads or downloads the local agent registry (and, when
--beads-db is given, a project's beads database) to a GCS bucket, for
sharing state across machines running orch against the same project.`,
}

var syncPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Upload the local registry (and beads db) snapshot to the bucket",
	RunE:  runSyncPush,
}

var syncPullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Download the registry (and beads db) snapshot from the bucket",
	RunE:  runSyncPull,
}

func init() {
	syncCmd.PersistentFlags().StringVar(&syncBucket, "bucket", "", "GCS bucket name")
	syncCmd.PersistentFlags().StringVar(&syncBucketSecret, "bucket-secret", "", "Secret Manager secret holding the bucket name, used when --bucket is omitted")
	syncCmd.PersistentFlags().StringVar(&syncPrefix, "prefix", "", "object prefix under the bucket, e.g. orch/<project>")
	syncCmd.PersistentFlags().StringVar(&syncBeadsDB, "beads-db", "", "path to the project's beads database; omit to sync the registry only")
	syncCmd.AddCommand(syncPushCmd, syncPullCmd)
	rootCmd.AddCommand(syncCmd)
}

func newSyncer(ctx context.Context, a *app) (*gcp.Syncer, error) {
	store, err := gcp.NewObjectStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to construct GCS client: %w", err)
	}

	var secrets gcp.SecretFetcher
	if syncBucketSecret != "" {
		sm, err := gcp.NewSecretManagerClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to construct Secret Manager client: %w", err)
		}
		secrets = sm
	}

	return gcp.NewSyncer(ctx, store, secrets, gcp.SyncConfig{
		Bucket:           syncBucket,
		ObjectPrefix:     syncPrefix,
		BucketSecretName: syncBucketSecret,
	})
}

func runSyncPush(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := newSyncer(ctx, a)
	if err != nil {
		return err
	}
	if err := s.PushSnapshot(ctx, a.Config.Registry.Path, syncBeadsDB); err != nil {
		return err
	}
	fmt.Println("snapshot pushed")
	return nil
}

func runSyncPull(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := newSyncer(ctx, a)
	if err != nil {
		return err
	}
	if err := s.PullSnapshot(ctx, a.Config.Registry.Path, syncBeadsDB); err != nil {
		return err
	}
	fmt.Println("snapshot pulled")
	return nil
}
