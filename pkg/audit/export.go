package audit

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/slucerodev/admo-core/pkg/canonicalize"
)

var (
	// ErrEmptyTenantID is returned when an export request has no tenant.
	ErrEmptyTenantID = errors.New("audit: tenant_id must not be empty")
	// ErrInvalidTimeRange is returned when start is after end.
	ErrInvalidTimeRange = errors.New("audit: start_time must be before end_time")
)

// ExportRequest scopes an evidence pack export ("compliance
// teams pull a bounded window of the audit trail, not the whole log").
type ExportRequest struct {
	TenantID  string
	StartTime time.Time
	EndTime   time.Time
}

// EvidencePack is the exported bundle: the matching records plus a
// manifest binding them to the chain head at export time, so a verifier
// can confirm the window was not cherry-picked mid-chain.
type EvidencePack struct {
	TenantID    string
	GeneratedAt time.Time
	ChainHead   string
	RecordCount int
	Checksum    string
}

// Exporter builds evidence packs from a Log, adapted from
// pkg/audit/export.go's zip-bundle shape, generalized from its fixed
// EntryType/Subject filter to QueryFilter.
type Exporter struct {
	log *Log
}

// NewExporter returns an Exporter reading from log.
func NewExporter(log *Log) *Exporter {
	return &Exporter{log: log}
}

// GeneratePack builds a zip evidence pack (events.json + manifest.json)
// and returns its bytes alongside the parsed EvidencePack summary.
func (e *Exporter) GeneratePack(now time.Time, req ExportRequest) ([]byte, EvidencePack, error) {
	if req.TenantID == "" {
		return nil, EvidencePack{}, ErrEmptyTenantID
	}
	if !req.StartTime.IsZero() && !req.EndTime.IsZero() && req.StartTime.After(req.EndTime) {
		return nil, EvidencePack{}, ErrInvalidTimeRange
	}

	filter := QueryFilter{TenantID: req.TenantID, Since: req.StartTime, Until: req.EndTime}
	records := e.log.Query(filter)

	eventsJSON, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, EvidencePack{}, fmt.Errorf("audit: marshal events: %w", err)
	}

	pack := EvidencePack{
		TenantID:    req.TenantID,
		GeneratedAt: now,
		ChainHead:   e.log.ChainHead(),
		RecordCount: len(records),
	}
	manifestJSON, err := json.MarshalIndent(pack, "", "  ")
	if err != nil {
		return nil, EvidencePack{}, fmt.Errorf("audit: marshal manifest: %w", err)
	}

	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)
	if f, err := w.Create("events.json"); err != nil {
		return nil, EvidencePack{}, err
	} else if _, err := f.Write(eventsJSON); err != nil {
		return nil, EvidencePack{}, err
	}
	if f, err := w.Create("manifest.json"); err != nil {
		return nil, EvidencePack{}, err
	} else if _, err := f.Write(manifestJSON); err != nil {
		return nil, EvidencePack{}, err
	}
	if err := w.Close(); err != nil {
		return nil, EvidencePack{}, err
	}

	zipBytes := buf.Bytes()
	pack.Checksum = "sha256:" + canonicalize.HashBytes(zipBytes)
	return zipBytes, pack, nil
}

// S3Sink uploads evidence packs to an S3-compatible bucket, keyed by
// content hash so uploading the same pack bytes twice is a no-op; a
// re-export of the same window carries a new GeneratedAt in its
// manifest and so uploads under a new key. Grounded
// on pkg/artifacts/s3_store.go's config/client/HeadObject-then-PutObject
// idempotent-upload shape.
type S3Sink struct {
	client *s3.Client
	bucket string
	prefix string
}

// S3SinkConfig configures an S3Sink.
type S3SinkConfig struct {
	Bucket   string
	Region   string
	Endpoint string
	Prefix   string
}

// NewS3Sink constructs an S3Sink from cfg.
func NewS3Sink(ctx context.Context, cfg S3SinkConfig) (*S3Sink, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("audit: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Sink{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Upload stores packBytes under a content-hash key, skipping the upload
// if the object already exists.
func (s *S3Sink) Upload(ctx context.Context, pack EvidencePack, packBytes []byte) (string, error) {
	hash := canonicalize.HashBytes(packBytes)
	key := fmt.Sprintf("%sevidence/%s/%s.zip", s.prefix, pack.TenantID, hash)

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err == nil {
		return key, nil
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(packBytes),
		ContentType: aws.String("application/zip"),
	})
	if err != nil {
		return "", fmt.Errorf("audit: s3 upload: %w", err)
	}
	return key, nil
}
