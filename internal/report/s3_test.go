package report

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	if params.Body != nil {
		f.body, _ = io.ReadAll(params.Body)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestParseS3URI(t *testing.T) {
	tests := []struct {
		uri        string
		wantBucket string
		wantPrefix string
		wantErr    bool
	}{
		{uri: "s3://results", wantBucket: "results"},
		{uri: "s3://results/", wantBucket: "results"},
		{uri: "s3://results/infra/load/", wantBucket: "results", wantPrefix: "infra/load"},
		{uri: "results/infra", wantErr: true},
		{uri: "s3:///infra", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, prefix, err := ParseS3URI(tt.uri)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBucket, bucket)
			assert.Equal(t, tt.wantPrefix, prefix)
		})
	}
}

func TestS3Uploader_Upload(t *testing.T) {
	client := &fakeS3{}
	u, err := NewS3UploaderWithClient(client, "s3://results/infraload")
	require.NoError(t, err)

	loc, err := u.Upload(context.Background(), exportSummary())
	require.NoError(t, err)
	assert.Equal(t, "s3://results/infraload/run-1.json", loc)

	require.NotNil(t, client.input)
	assert.Equal(t, "results", aws.ToString(client.input.Bucket))
	assert.Equal(t, "infraload/run-1.json", aws.ToString(client.input.Key))
	assert.Equal(t, "application/json", aws.ToString(client.input.ContentType))

	var raw map[string]any
	require.NoError(t, json.Unmarshal(client.body, &raw))
	assert.Equal(t, "run-1", raw["runId"])
}

func TestS3Uploader_KeyWithoutRunID(t *testing.T) {
	u, err := NewS3UploaderWithClient(&fakeS3{}, "s3://results")
	require.NoError(t, err)

	s := &Summary{StartTime: time.Date(2026, 3, 1, 12, 30, 5, 0, time.UTC)}
	assert.Equal(t, "20260301T123005Z.json", u.Key(s))
}

func TestS3Uploader_PutError(t *testing.T) {
	u, err := NewS3UploaderWithClient(&fakeS3{err: errors.New("access denied")}, "s3://results")
	require.NoError(t, err)

	_, err = u.Upload(context.Background(), exportSummary())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "put object results/run-1.json")
	assert.Contains(t, err.Error(), "access denied")
}

func TestNewS3UploaderWithClient_InvalidURI(t *testing.T) {
	_, err := NewS3UploaderWithClient(&fakeS3{}, "https://results")
	assert.Error(t, err)
}
