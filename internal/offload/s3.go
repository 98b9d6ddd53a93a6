package offload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/audiolibrelab/recstore/internal/config"
	"github.com/audiolibrelab/recstore/internal/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ErrNotConfigured is returned when no bucket is configured
var ErrNotConfigured = errors.New("offload bucket not configured")

// S3API defines the subset of the S3 client used by Uploader, enabling test mocking.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// RecordReader is the read side of an open recording
type RecordReader interface {
	ReadRecord(buf []float32) (int, error)
}

// Result describes one uploaded recording
type Result struct {
	Name    string `json:"name"`
	Key     string `json:"key"`
	Records int    `json:"records"`
	Bytes   int64  `json:"bytes"`
}

// Uploader copies recordings to an S3-compatible object store.
type Uploader struct {
	client   S3API
	bucket   string
	prefix   string
	deviceID string
}

// New creates an Uploader configured from AWS defaults and the offload
// section. An empty endpoint uses the standard AWS S3 endpoint; a non-empty
// endpoint targets MinIO or another S3-compatible service.
func New(ctx context.Context, cfg config.OffloadConfig) (*Uploader, error) {
	if cfg.Bucket == "" {
		return nil, ErrNotConfigured
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // required for MinIO
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)
	return NewWithClient(client, cfg.Bucket, cfg.Prefix, cfg.DeviceID), nil
}

// NewWithClient creates an Uploader with an injected S3API client.
func NewWithClient(client S3API, bucket, prefix, deviceID string) *Uploader {
	return &Uploader{
		client:   client,
		bucket:   bucket,
		prefix:   prefix,
		deviceID: deviceID,
	}
}

// Key returns the object key a recording is uploaded to
func (u *Uploader) Key(name string) string {
	return path.Join(u.prefix, u.deviceID, name+storage.Extension)
}

// Upload drains an open recording and stores it as one object in the
// on-medium record format.
func (u *Uploader) Upload(ctx context.Context, name string, r RecordReader) (*Result, error) {
	var body bytes.Buffer
	records := 0
	buf := make([]float32, storage.MaxRecordLen+1)

	for {
		n, err := r.ReadRecord(buf)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read recording %s: %w", name, err)
		}

		data, err := storage.EncodeRecord(buf[:n])
		if err != nil {
			return nil, err
		}
		body.Write(data)
		records++
	}

	key := u.Key(name)
	size := int64(body.Len())
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body.Bytes()),
		ContentLength: aws.Int64(size),
		ContentType:   aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"device-id": u.deviceID,
			"records":   fmt.Sprint(records),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload recording to S3: %w", err)
	}

	return &Result{Name: name, Key: key, Records: records, Bytes: size}, nil
}
