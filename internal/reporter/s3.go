package reporter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// putObjectAPI is the slice of the S3 client the uploader uses
type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader handles uploading snapshots and reports to S3
type S3Uploader struct {
	client     putObjectAPI
	bucketName string
	region     string
}

// NewS3Uploader creates a new S3 uploader. Empty arguments fall back to
// S3_BUCKET_NAME and AWS_REGION.
func NewS3Uploader(ctx context.Context, bucketName, region string) (*S3Uploader, error) {
	if bucketName == "" {
		bucketName = os.Getenv("S3_BUCKET_NAME")
		if bucketName == "" {
			return nil, fmt.Errorf("no S3 bucket configured")
		}
	}

	if region == "" {
		region = os.Getenv("AWS_REGION")
		if region == "" {
			region = "us-east-1" // Default
		}
	}

	// Load AWS config
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return newS3Uploader(s3.NewFromConfig(cfg), bucketName, region), nil
}

func newS3Uploader(client putObjectAPI, bucketName, region string) *S3Uploader {
	return &S3Uploader{
		client:     client,
		bucketName: bucketName,
		region:     region,
	}
}

// UploadBytes uploads data under s3Key and returns its URL. It satisfies
// diagnostics.Mirror.
func (u *S3Uploader) UploadBytes(ctx context.Context, s3Key string, data []byte, contentType string) (string, error) {
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucketName),
		Key:         aws.String(s3Key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	return u.objectURL(s3Key), nil
}

// UploadFile uploads a file to S3
func (u *S3Uploader) UploadFile(ctx context.Context, filePath, s3Key string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file %s: %w", filePath, err)
	}

	return u.UploadBytes(ctx, s3Key, data, getContentType(filePath))
}

// UploadReport uploads a run report as reports/<run_id>/report.json
func (u *S3Uploader) UploadReport(ctx context.Context, report *Report) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	return u.UploadBytes(ctx, ReportKey(report.RunID), data, "application/json")
}

// ReportKey is the object key of a run's report
func ReportKey(runID string) string {
	return path.Join("reports", runID, "report.json")
}

// GetReportURL returns the S3 URL for a report
func (u *S3Uploader) GetReportURL(runID string) string {
	return u.objectURL(ReportKey(runID))
}

func (u *S3Uploader) objectURL(s3Key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s",
		u.bucketName,
		u.region,
		s3Key,
	)
}

// getContentType determines content type from file extension
func getContentType(filePath string) string {
	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".json":
		return "application/json"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".txt", ".prom":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
