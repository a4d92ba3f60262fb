package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// BatchWriter persists a batch of records and returns where it was written.
type BatchWriter interface {
	WriteBatch(ctx context.Context, records []*EventRecord) (string, error)
}

// S3WriterConfig configures the S3 archive target.
type S3WriterConfig struct {
	Bucket  string
	Region  string
	Prefix  string
	PodName string

	// Endpoint overrides the S3 endpoint (MinIO, localstack). Enables path-style addressing.
	Endpoint string

	// Static credentials. When empty the default AWS credential chain is used.
	AccessKeyID     string
	SecretAccessKey string
}

// S3Writer handles writing batches of event records to S3
type S3Writer struct {
	client  *s3.Client
	bucket  string
	prefix  string
	podName string
	logger  *Logger
}

// NewS3Writer creates a new S3 writer
func NewS3Writer(ctx context.Context, cfg S3WriterConfig) (*S3Writer, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("S3 bucket is required")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Writer{
		client:  client,
		bucket:  cfg.Bucket,
		prefix:  cfg.Prefix,
		podName: cfg.PodName,
		logger:  NewLogger("s3-writer"),
	}, nil
}

// ObjectKey builds the archive key for a batch written at now.
// Format: events/2025/11/30/evaluator-0-20251130-143022-123456789.jsonl
func ObjectKey(prefix, podName string, now time.Time) string {
	return fmt.Sprintf("%s%04d/%02d/%02d/%s-%s-%d.jsonl",
		prefix,
		now.Year(),
		now.Month(),
		now.Day(),
		podName,
		now.Format("20060102-150405"),
		now.Nanosecond(),
	)
}

// EncodeJSONLines renders records one JSON object per line. Records that
// fail to encode are skipped and counted.
func EncodeJSONLines(records []*EventRecord) ([]byte, int) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	skipped := 0
	for _, record := range records {
		if err := encoder.Encode(record); err != nil {
			skipped++
		}
	}
	return buf.Bytes(), skipped
}

// WriteBatch writes a batch of records to S3 as a JSON Lines file
// Returns the S3 key where the data was written
func (w *S3Writer) WriteBatch(ctx context.Context, records []*EventRecord) (string, error) {
	if len(records) == 0 {
		return "", nil
	}

	key := ObjectKey(w.prefix, w.podName, time.Now().UTC())

	body, skipped := EncodeJSONLines(records)
	if skipped > 0 {
		w.logger.Error("Failed to encode records", "skipped", skipped)
	}

	_, err := w.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	w.logger.Info("Wrote batch to S3", "key", key, "count", len(records), "bytes", len(body))
	return key, nil
}
