package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/dreamup/renew-agent/internal/app"
	"github.com/dreamup/renew-agent/internal/config"
	"github.com/dreamup/renew-agent/internal/observability"
	"github.com/dreamup/renew-agent/internal/reporter"
)

// LambdaEvent represents the input event for Lambda
type LambdaEvent struct {
	// Timeout in seconds (default: 840 for a 15 min Lambda minus cleanup buffer)
	Timeout int `json:"timeout,omitempty"`
	// UploadToS3 determines if the run report should be uploaded
	UploadToS3 bool `json:"upload_to_s3"`
	// BucketName for S3 uploads (optional, defaults to config / env var)
	BucketName string `json:"bucket_name,omitempty"`
	// RemoteURL of a DevTools endpoint to attach to (optional)
	RemoteURL string `json:"remote_url,omitempty"`
	// Metadata for the run
	Metadata map[string]string `json:"metadata,omitempty"`
}

// LambdaResponse represents the Lambda function output
type LambdaResponse struct {
	// Success indicates if the batch completed
	Success bool `json:"success"`
	// RunID is the unique run identifier
	RunID string `json:"run_id,omitempty"`
	// ReportURL is the S3 URL (if uploaded)
	ReportURL string `json:"report_url,omitempty"`
	// Status is the run outcome (passed, passed_with_warnings, failed)
	Status string `json:"status,omitempty"`
	// Error message if failed
	Error string `json:"error,omitempty"`
	// Summary provides brief results
	Summary *reporter.Summary `json:"summary,omitempty"`
	// Duration in seconds
	Duration float64 `json:"duration_seconds,omitempty"`
}

// HandleRequest is the Lambda handler function
func HandleRequest(ctx context.Context, event LambdaEvent) (LambdaResponse, error) {
	startTime := time.Now()

	v := config.NewViper()
	v.Set("browser.headless", true)
	// Lambda only allows writes under /tmp
	v.SetDefault("diagnostics.dir", "/tmp/screenshots")
	v.SetDefault("history.path", "")
	if event.RemoteURL != "" {
		v.Set("browser.remote_url", event.RemoteURL)
	}
	if event.BucketName != "" {
		v.Set("diagnostics.s3_bucket", event.BucketName)
	}

	cfg, err := config.Load(v)
	if err != nil {
		return LambdaResponse{Success: false, Error: err.Error()}, err
	}

	logger, err := observability.NewLogger(config.LogConfig{Level: cfg.Log.Level, Format: "json"}, os.Stderr)
	if err != nil {
		return LambdaResponse{Success: false, Error: err.Error()}, err
	}
	defer observability.Sync(logger)

	in, err := app.LoadInputs()
	if err != nil {
		return LambdaResponse{Success: false, Error: err.Error()}, err
	}

	// Set default timeout
	if event.Timeout == 0 {
		event.Timeout = 840
	}

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(event.Timeout)*time.Second)
	defer cancel()

	out, runErr := app.New(cfg, logger).Run(runCtx, in)
	if out == nil {
		return LambdaResponse{
			Success:  false,
			Error:    runErr.Error(),
			Duration: time.Since(startTime).Seconds(),
		}, runErr
	}

	out.Report.Metadata["lambda_execution"] = "true"
	out.Report.Metadata["lambda_region"] = os.Getenv("AWS_REGION")
	for k, val := range event.Metadata {
		out.Report.Metadata[k] = val
	}

	response := LambdaResponse{
		Success:  runErr == nil,
		RunID:    out.Report.RunID,
		Status:   out.Report.Summary.Status,
		Summary:  out.Report.Summary,
		Duration: time.Since(startTime).Seconds(),
	}
	if runErr != nil {
		response.Error = runErr.Error()
	}

	if event.UploadToS3 {
		uploader, err := reporter.NewS3Uploader(ctx, cfg.Diagnostics.S3Bucket, cfg.Diagnostics.S3Region)
		if err != nil {
			logger.Warn("S3 upload unavailable", zap.Error(err))
		} else if url, err := uploader.UploadReport(ctx, out.Report); err != nil {
			logger.Warn("Failed to upload report", zap.Error(err))
		} else {
			response.ReportURL = url
		}
	}

	return response, nil
}

func main() {
	// Check if running in Lambda environment
	if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
		lambda.Start(HandleRequest)
		return
	}

	// Local testing mode
	fmt.Println("Running in local test mode...")
	resp, err := HandleRequest(context.Background(), LambdaEvent{Timeout: 600})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Run %s finished: %s\n", resp.RunID, resp.Status)
	if resp.ReportURL != "" {
		fmt.Printf("Report: %s\n", resp.ReportURL)
	}
}
