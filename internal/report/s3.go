package report

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// PutObjectAPI is the part of the S3 client the uploader needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader stores JSON summaries under an s3://bucket/prefix.
type S3Uploader struct {
	client PutObjectAPI
	bucket string
	prefix string
}

// ParseS3URI splits s3://bucket/prefix. The prefix may be empty.
func ParseS3URI(uri string) (bucket, prefix string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("invalid S3 URI %q: missing s3:// scheme", uri)
	}
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("invalid S3 URI %q: missing bucket", uri)
	}
	return bucket, strings.Trim(prefix, "/"), nil
}

// NewS3Uploader creates an uploader using the default AWS credential
// chain. A non-empty endpoint targets an S3-compatible store with
// path-style addressing.
func NewS3Uploader(ctx context.Context, uri, endpoint string) (*S3Uploader, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3UploaderWithClient(client, uri)
}

// NewS3UploaderWithClient creates an uploader on an existing client.
func NewS3UploaderWithClient(client PutObjectAPI, uri string) (*S3Uploader, error) {
	bucket, prefix, err := ParseS3URI(uri)
	if err != nil {
		return nil, err
	}
	return &S3Uploader{client: client, bucket: bucket, prefix: prefix}, nil
}

// Key returns the object key for a summary: <prefix>/<run id>.json, or
// the start time when the run has no id.
func (u *S3Uploader) Key(s *Summary) string {
	name := s.RunID
	if name == "" {
		name = s.StartTime.UTC().Format("20060102T150405Z")
	}
	return path.Join(u.prefix, name+".json")
}

// Upload stores the summary as JSON and returns its s3:// location.
func (u *S3Uploader) Upload(ctx context.Context, s *Summary) (string, error) {
	data, err := Marshal(s, FormatJSON)
	if err != nil {
		return "", err
	}

	key := u.Key(s)
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s/%s: %w", u.bucket, key, err)
	}
	return "s3://" + u.bucket + "/" + key, nil
}
