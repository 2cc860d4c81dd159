package audit

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/platinummonkey/warden/pkg/observability"
)

// S3Config holds the object storage settings for the exporter.
type S3Config struct {
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// S3Exporter moves aged operation log entries out of PostgreSQL into object
// storage as newline-delimited JSON, one object per export run.
type S3Exporter struct {
	db     *sql.DB
	client *s3.Client
	bucket string
	logger *observability.Logger
}

// NewS3Exporter creates an exporter from object storage configuration
func NewS3Exporter(ctx context.Context, db *sql.DB, cfg S3Config, logger *observability.Logger) (*S3Exporter, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	var awsConfig aws.Config
	var err error
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		// Static credentials (MinIO or AWS with explicit keys)
		awsConfig, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKey,
				cfg.SecretKey,
				"",
			)),
		)
	} else {
		// Default credential chain (IAM roles, env vars, etc.)
		awsConfig, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.UsePathStyle {
			o.UsePathStyle = true
		}
	})

	return &S3Exporter{
		db:     db,
		client: client,
		bucket: cfg.Bucket,
		logger: logger,
	}, nil
}

// ExportOlderThan uploads every entry recorded before the cutoff and deletes
// the exported rows. Returns the number of entries exported. The delete only
// runs after a successful upload, so a failed run re-exports the same rows.
func (e *S3Exporter) ExportOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	entries, err := e.loadOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	payload, err := encodeNDJSON(entries)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	key := fmt.Sprintf("operation-logs/%s/%s.ndjson", now.Format("2006/01/02"), uuid.NewString())

	_, err = e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to upload export: %w", err)
	}

	if _, err := e.db.ExecContext(ctx,
		`DELETE FROM operation_logs WHERE recorded_at < $1`, cutoff.UTC()); err != nil {
		return 0, fmt.Errorf("failed to delete exported entries: %w", err)
	}

	e.logger.Infof("exported %d operation log entries to s3://%s/%s", len(entries), e.bucket, key)
	return len(entries), nil
}

func (e *S3Exporter) loadOlderThan(ctx context.Context, cutoff time.Time) ([]Entry, error) {
	query := `
		SELECT id, operation, business_key, description, actor_id, request_id, recorded_at
		FROM operation_logs WHERE recorded_at < $1 ORDER BY recorded_at ASC`
	rows, err := e.db.QueryContext(ctx, query, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to load entries for export: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		if err := rows.Scan(&entry.ID, &entry.Operation, &entry.BusinessKey,
			&entry.Description, &entry.ActorID, &entry.RequestID, &entry.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan entry for export: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// encodeNDJSON encodes entries as newline-delimited JSON
func encodeNDJSON(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	for _, entry := range entries {
		if err := encoder.Encode(entry); err != nil {
			return nil, fmt.Errorf("failed to encode entry: %w", err)
		}
	}
	return buf.Bytes(), nil
}
