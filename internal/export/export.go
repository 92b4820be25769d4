// Package export writes exam results to a file, stdout or object storage.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/ianlabicani/lan-exam-web-sub000/internal/model"
)

// S3Config locates the object store used for s3:// destinations.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Secure    bool
}

// Marshal renders an export as indented JSON with a trailing newline.
func Marshal(exp model.ExamExport) ([]byte, error) {
	data, err := json.MarshalIndent(exp, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal JSON: %w", err)
	}
	return append(data, '\n'), nil
}

// ParseS3 splits an s3://bucket/key destination.
func ParseS3(dest string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(dest, "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}

// Write stores exp at dest: "-" or "" for stdout, s3://bucket/key for object
// storage, anything else is a file path.
func Write(ctx context.Context, dest string, exp model.ExamExport, s3 S3Config, stdout io.Writer) error {
	data, err := Marshal(exp)
	if err != nil {
		return err
	}

	switch {
	case dest == "" || dest == "-":
		_, err := stdout.Write(data)
		return err
	case strings.HasPrefix(dest, "s3://"):
		bucket, key, ok := ParseS3(dest)
		if !ok {
			return fmt.Errorf("invalid destination %q: want s3://bucket/key", dest)
		}
		return upload(ctx, s3, bucket, key, data)
	}

	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	slog.Info("exported results", "path", dest, "results", len(exp.Results))
	return nil
}

func upload(ctx context.Context, cfg S3Config, bucket, key string, data []byte) error {
	if cfg.Endpoint == "" {
		return fmt.Errorf("s3 endpoint is required for %s/%s", bucket, key)
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return fmt.Errorf("create s3 client: %w", err)
	}
	info, err := client.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("upload %s/%s: %w", bucket, key, err)
	}
	slog.Info("exported results", "bucket", bucket, "key", key, "size", info.Size)
	return nil
}
