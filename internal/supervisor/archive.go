package supervisor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/lyraworks/qdc/internal/config"
	"github.com/lyraworks/qdc/internal/embedding"
)

// archiver periodically snapshots the local embedding index and uploads the
// snapshot+sidecar pair to S3, grounded on
// internal/objectstore/s3.go's client construction (reduced here to the
// single Put operation this package needs).
type archiver struct {
	client   *s3.Client
	bucket   string
	local    *embedding.Local
	interval time.Duration
}

func newArchiver(cfg config.Config, local *embedding.Local) (*archiver, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	interval := time.Duration(cfg.Embedding.S3ArchiveIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &archiver{
		client:   s3.NewFromConfig(awsCfg),
		bucket:   cfg.Embedding.S3ArchiveBucket,
		local:    local,
		interval: interval,
	}, nil
}

func (a *archiver) run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.archiveOnce(ctx); err != nil {
				log.Warn().Err(err).Msg("embedding snapshot archival failed")
			}
		}
	}
}

func (a *archiver) archiveOnce(ctx context.Context) error {
	if err := a.local.Snapshot(); err != nil {
		return fmt.Errorf("snapshot before archival: %w", err)
	}
	snapshotPath, sidecarPath := a.local.SnapshotPaths()
	for _, path := range []string{snapshotPath, sidecarPath} {
		if err := a.upload(ctx, path); err != nil {
			return err
		}
	}
	return nil
}

func (a *archiver) upload(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	key := "embedding/" + filepath.Base(path)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}
