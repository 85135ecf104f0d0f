package reporter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamup/renew-agent/internal/batch"
)

func TestReportBuilder(t *testing.T) {
	rb := NewReportBuilder()
	rb.AddMetadata("entry", "cli")
	ctx := context.Background()

	require.NoError(t, rb.Record(ctx, batch.Result{Index: 1, Stem: "a", Status: batch.StatusRenewed, Attempts: 2, Duration: 1500 * time.Millisecond}))
	require.NoError(t, rb.Record(ctx, batch.Result{Index: 2, Stem: "b", Status: batch.StatusDeferred, AvailableAt: "22 October"}))

	report := rb.Build()
	assert.Equal(t, rb.RunID(), report.RunID)
	require.Len(t, report.Results, 2)
	assert.Equal(t, "renewed", report.Results[0].Status)
	assert.Equal(t, int64(1500), report.Results[0].DurationMS)
	assert.Equal(t, "22 October", report.Results[1].AvailableAt)
	assert.Equal(t, "cli", report.Metadata["entry"])

	assert.Equal(t, "passed", report.Summary.Status)
	assert.Equal(t, 2, report.Summary.Total)
	assert.Equal(t, 1, report.Summary.Counts["deferred"])
	assert.Equal(t, 0, report.Summary.Counts["error"])
}

func TestSummaryStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []batch.Status
		want     string
	}{
		{"empty", nil, "passed"},
		{"skipped only", []batch.Status{batch.StatusSkipped}, "passed"},
		{"login failure", []batch.Status{batch.StatusRenewed, batch.StatusLoginFailed}, "passed_with_warnings"},
		{"exhausted", []batch.Status{batch.StatusExhausted}, "passed_with_warnings"},
		{"error wins", []batch.Status{batch.StatusNotFound, batch.StatusError}, "failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := make([]batch.Result, 0, len(tt.statuses))
			for _, s := range tt.statuses {
				results = append(results, batch.Result{Status: s})
			}
			assert.Equal(t, tt.want, buildSummary(results).Status)
		})
	}
}

func TestSaveToDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	report := NewReportBuilder().Build()

	path, err := report.SaveToDir(dir)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(path), "renew_report_"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, report.RunID, decoded["run_id"])
	assert.Contains(t, decoded, "summary")
}

type fakeS3 struct {
	keys         []string
	bodies       []string
	contentTypes []string
	err          error
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(params.Body)
	f.keys = append(f.keys, aws.ToString(params.Key))
	f.bodies = append(f.bodies, string(body))
	f.contentTypes = append(f.contentTypes, aws.ToString(params.ContentType))
	return &s3.PutObjectOutput{}, nil
}

func TestUploadBytesAndFile(t *testing.T) {
	client := &fakeS3{}
	u := newS3Uploader(client, "bucket", "eu-west-1")
	ctx := context.Background()

	url, err := u.UploadBytes(ctx, "renew/20261018/a.png", []byte("png"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "https://bucket.s3.eu-west-1.amazonaws.com/renew/20261018/a.png", url)

	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))
	_, err = u.UploadFile(ctx, path, "notes.txt")
	require.NoError(t, err)

	assert.Equal(t, []string{"renew/20261018/a.png", "notes.txt"}, client.keys)
	assert.Equal(t, []string{"image/png", "text/plain"}, client.contentTypes)
	assert.Equal(t, "hello", client.bodies[1])
}

func TestUploadReport(t *testing.T) {
	client := &fakeS3{}
	u := newS3Uploader(client, "bucket", "us-east-1")
	report := NewReportBuilder().Build()

	url, err := u.UploadReport(context.Background(), report)
	require.NoError(t, err)
	assert.Equal(t, u.GetReportURL(report.RunID), url)
	assert.Equal(t, []string{"reports/" + report.RunID + "/report.json"}, client.keys)
	assert.Contains(t, client.bodies[0], report.RunID)
}

func TestUploadFailure(t *testing.T) {
	u := newS3Uploader(&fakeS3{err: errors.New("denied")}, "bucket", "us-east-1")
	_, err := u.UploadBytes(context.Background(), "k", nil, "image/png")
	assert.ErrorContains(t, err, "denied")

	_, err = u.UploadFile(context.Background(), filepath.Join(t.TempDir(), "missing.png"), "k")
	assert.Error(t, err)
}

func TestGetContentType(t *testing.T) {
	tests := map[string]string{
		"a.json": "application/json",
		"a.PNG":  "image/png",
		"a.jpeg": "image/jpeg",
		"a.prom": "text/plain",
		"a.bin":  "application/octet-stream",
	}
	for in, want := range tests {
		assert.Equal(t, want, getContentType(in), in)
	}
}
