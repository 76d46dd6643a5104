package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"ksmeta/pkg/extract"
	"ksmeta/pkg/fetch"
	"ksmeta/pkg/models"
	"ksmeta/pkg/pipeline"
	"ksmeta/pkg/report"
	"ksmeta/pkg/resolve"
	"ksmeta/pkg/storage"
)

// handleResolveURL handles the resolve_url tool
func (s *Server) handleResolveURL(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL := request.GetString("url", "")
	if rawURL == "" {
		return mcp.NewToolResultError("url parameter is required"), nil
	}

	cfg := s.cfg.AppConfig
	client := fetch.NewClient(cfg.HTTPClientSettings, s.cfg.Logger)
	agents := fetch.NewAgentPool(cfg.UserAgents, time.Now().UnixNano())
	resolver := resolve.NewResolver(client, cfg, agents, s.log)

	startTime := time.Now()
	videoID, err := resolver.Resolve(ctx, rawURL)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to resolve URL: %v", err)), nil
	}

	result := map[string]interface{}{
		"url":             rawURL,
		"video_id":        videoID,
		"long_form_url":   fmt.Sprintf(cfg.LongFormURL, videoID),
		"resolve_time_ms": time.Since(startTime).Milliseconds(),
	}

	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleFetchVideo handles the fetch_video tool
func (s *Server) handleFetchVideo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	videoID := request.GetString("video_id", "")
	if videoID == "" {
		return mcp.NewToolResultError("video_id parameter is required"), nil
	}

	cfg := s.cfg.AppConfig
	client := fetch.NewClient(cfg.HTTPClientSettings, s.cfg.Logger)
	agents := fetch.NewAgentPool(cfg.UserAgents, time.Now().UnixNano())
	limiter := fetch.NewRateLimiter(cfg.DelayPerHost, s.log)
	fetcher := fetch.NewFetcher(client, cfg, agents, limiter, s.log)

	startTime := time.Now()
	body, err := fetcher.FetchPhoto(ctx, videoID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to fetch video page: %v", err)), nil
	}

	state, err := extract.Extract(body)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to extract embedded state: %v", err)), nil
	}

	mapper := extract.NewMapper(cfg.MinNumericIDLen, s.log)
	record, err := mapper.Map(state)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("no video detail found in page: %v", err)), nil
	}

	result := map[string]interface{}{
		"video_id":      videoID,
		"record":        record,
		"fetch_time_ms": time.Since(startTime).Milliseconds(),
	}
	if record.PhotoID != "" && record.PhotoID != videoID {
		result["canonical_id"] = record.PhotoID
	}

	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleStartBatch handles the start_batch tool
func (s *Server) handleStartBatch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	inputPath := request.GetString("input_path", "")
	if inputPath == "" {
		return mcp.NewToolResultError("input_path parameter is required"), nil
	}

	outputPath := request.GetString("output_path", "")
	if outputPath == "" {
		outputPath = strings.TrimSuffix(inputPath, ".txt") + ".csv"
	}
	resume := request.GetBool("resume", false)

	file, err := os.Open(inputPath)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to open input file: %v", err)), nil
	}
	rows, err := models.ReadRows(file)
	file.Close()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to parse input file: %v", err)), nil
	}
	if len(rows) == 0 {
		return mcp.NewToolResultError("input file contains no rows"), nil
	}

	// Check if already running
	if s.jobManager.IsRunning(inputPath) {
		existingJob := s.jobManager.GetJobByInput(inputPath)
		result := map[string]interface{}{
			"status":     "already_running",
			"message":    "A batch is already in progress for this input file",
			"job_id":     existingJob.ID,
			"input_path": inputPath,
		}
		return mcp.NewToolResultText(formatJSON(result)), nil
	}

	job, err := s.jobManager.CreateJob(inputPath, outputPath, resume)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create job: %v", err)), nil
	}

	go s.runBatchJob(job, rows)

	result := map[string]interface{}{
		"status":      "started",
		"message":     "Batch started successfully",
		"job_id":      job.ID,
		"input_path":  inputPath,
		"output_path": outputPath,
		"rows":        len(rows),
		"resume":      resume,
	}

	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleGetJobStatus handles the get_job_status tool
func (s *Server) handleGetJobStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := request.GetString("job_id", "")
	if jobID == "" {
		return mcp.NewToolResultError("job_id parameter is required"), nil
	}

	job := s.jobManager.GetJob(jobID)
	if job == nil {
		return mcp.NewToolResultError(fmt.Sprintf("job '%s' not found", jobID)), nil
	}

	result := map[string]interface{}{
		"job_id":         job.ID,
		"input_path":     job.InputPath,
		"output_path":    job.OutputPath,
		"status":         job.Status,
		"started_at":     job.StartedAt.Format(time.RFC3339),
		"rows_completed": job.RowsCompleted,
		"rows_total":     job.RowsTotal,
		"resume":         job.Resume,
	}

	if !job.CompletedAt.IsZero() {
		result["completed_at"] = job.CompletedAt.Format(time.RFC3339)
		result["duration_seconds"] = job.CompletedAt.Sub(job.StartedAt).Seconds()
		result["succeeded"] = job.Succeeded
		result["failed"] = job.Failed
	}

	if job.ErrorMessage != "" {
		result["error_message"] = job.ErrorMessage
	}

	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleCancelJob handles the cancel_job tool
func (s *Server) handleCancelJob(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := request.GetString("job_id", "")
	if jobID == "" {
		return mcp.NewToolResultError("job_id parameter is required"), nil
	}

	if !s.jobManager.CancelJob(jobID) {
		job := s.jobManager.GetJob(jobID)
		if job == nil {
			return mcp.NewToolResultError(fmt.Sprintf("job '%s' not found", jobID)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("job '%s' is not running (status: %s)", jobID, job.Status)), nil
	}

	result := map[string]interface{}{
		"status":  "cancelled",
		"message": "Job cancelled; in-flight rows finish with a terminal result",
		"job_id":  jobID,
	}

	return mcp.NewToolResultText(formatJSON(result)), nil
}

// runBatchJob runs a batch job in the background
func (s *Server) runBatchJob(job *Job, rows []models.InputRow) {
	s.jobManager.UpdateStatus(job.ID, JobStatusRunning, "")
	s.jobManager.UpdateProgress(job.ID, 0, int64(len(rows)))

	jobCtx := s.jobManager.GetContext(job.ID)
	cfg := s.cfg.AppConfig

	opts := &pipeline.Options{
		OnProgress: func(pr models.Progress) {
			s.jobManager.UpdateProgress(job.ID, int64(pr.Completed), int64(pr.Total))
		},
	}

	if job.Resume {
		store, err := storage.NewBadgerStore(cfg.StateDir, false, s.log)
		if err != nil {
			s.jobManager.UpdateStatus(job.ID, JobStatusFailed, fmt.Sprintf("failed to open result store: %v", err))
			return
		}
		defer store.Close()
		opts.Store = store
	}

	p := pipeline.New(cfg, s.cfg.Logger, opts)
	results, summary := p.ProcessBatch(jobCtx, rows)

	s.jobManager.RecordOutcome(job.ID, int64(summary.Succeeded), int64(summary.Failed))

	out, err := os.Create(job.OutputPath)
	if err != nil {
		s.jobManager.UpdateStatus(job.ID, JobStatusFailed, fmt.Sprintf("failed to create output file: %v", err))
		return
	}
	writeErr := report.WriteCSV(out, results, p.LongFormURL)
	if closeErr := out.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		s.jobManager.UpdateStatus(job.ID, JobStatusFailed, fmt.Sprintf("failed to write CSV: %v", writeErr))
		return
	}

	if jobCtx.Err() != nil {
		s.jobManager.UpdateStatus(job.ID, JobStatusCancelled, "")
		return
	}
	s.jobManager.UpdateStatus(job.ID, JobStatusCompleted, "")
}

// formatJSON formats data as an indented JSON string
func formatJSON(data map[string]interface{}) string {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("{\"error\": %q}", err.Error())
	}
	return string(b)
}
