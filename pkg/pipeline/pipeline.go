package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"ksmeta/pkg/config"
	"ksmeta/pkg/extract"
	"ksmeta/pkg/fetch"
	"ksmeta/pkg/models"
	"ksmeta/pkg/resolve"
	"ksmeta/pkg/storage"
	"ksmeta/pkg/utils"
)

// URLResolver resolves one raw source URL into a video identifier
type URLResolver interface {
	Resolve(ctx context.Context, rawURL string) (string, error)
}

// PhotoFetcher fetches the metadata page body for a resolved identifier
type PhotoFetcher interface {
	FetchPhoto(ctx context.Context, videoID string) (string, error)
}

// Options carries optional collaborators for a Pipeline
type Options struct {
	// Store enables resume: rows whose source URL already has a stored
	// successful result are served without fetching. Nil disables it.
	Store storage.ResultStore

	// OnProgress receives incremental progress events. Observational only;
	// must never be required for correctness.
	OnProgress func(models.Progress)

	// Resolver and Fetcher override the HTTP-backed defaults (used by tests)
	Resolver URLResolver
	Fetcher  PhotoFetcher
}

// Pipeline fans a batch of input rows out to bounded concurrent record
// pipelines (resolve, fetch with retry, extract, map) and collects one
// terminal ProcessingResult per row, realigned to input order.
type Pipeline struct {
	cfg        *config.AppConfig
	log        *logrus.Entry
	resolver   URLResolver
	fetcher    PhotoFetcher
	mapper     *extract.Mapper
	store      storage.ResultStore
	onProgress func(models.Progress)
}

// New wires a Pipeline from the application config. A shared HTTP client,
// user-agent pool and politeness limiter back both the resolver and fetcher.
func New(cfg *config.AppConfig, logger *logrus.Logger, opts *Options) *Pipeline {
	entry := logger.WithField("component", "pipeline")

	p := &Pipeline{
		cfg:    cfg,
		log:    entry,
		mapper: extract.NewMapper(cfg.MinNumericIDLen, entry),
	}

	if opts != nil {
		p.store = opts.Store
		p.onProgress = opts.OnProgress
		p.resolver = opts.Resolver
		p.fetcher = opts.Fetcher
	}

	if p.resolver == nil || p.fetcher == nil {
		client := fetch.NewClient(cfg.HTTPClientSettings, logger)
		agents := fetch.NewAgentPool(cfg.UserAgents, time.Now().UnixNano())
		limiter := fetch.NewRateLimiter(cfg.DelayPerHost, entry)
		if p.resolver == nil {
			p.resolver = resolve.NewResolver(client, cfg, agents, entry)
		}
		if p.fetcher == nil {
			p.fetcher = fetch.NewFetcher(client, cfg, agents, limiter, entry)
		}
	}

	return p
}

// ProcessBatch processes rows under the configured concurrency bound and
// returns one terminal result per row, in input order regardless of
// completion order. One row's failure never aborts others; cancellation
// stops new dispatch while in-flight rows still reach a terminal state.
func (p *Pipeline) ProcessBatch(ctx context.Context, rows []models.InputRow) ([]models.ProcessingResult, models.BatchSummary) {
	startTime := time.Now()
	total := len(rows)
	results := make([]models.ProcessingResult, total)

	p.log.Infof("Starting batch of %d rows with concurrency %d", total, p.cfg.Concurrency)

	sem := semaphore.NewWeighted(int64(p.cfg.Concurrency))
	var wg sync.WaitGroup
	var successes, resumed atomic.Int64

	for i := range rows {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Cancelled: no new dispatch, remaining rows get terminal results
			p.log.Warnf("Batch cancelled, %d rows not dispatched", total-i)
			for j := i; j < total; j++ {
				results[j] = cancelledResult(rows[j])
			}
			break
		}

		wg.Add(1)
		go func(slot int, row models.InputRow) {
			defer wg.Done()
			defer sem.Release(1)

			res := p.processRow(ctx, row, &resumed)
			results[slot] = res

			if res.Status == models.StatusSuccess {
				p.emitProgress(int(successes.Add(1)), total)
			}
		}(i, rows[i])
	}

	wg.Wait()

	summary := summarize(results, int(resumed.Load()), time.Since(startTime))
	p.logSummary(summary)
	return results, summary
}

// processRow runs one record pipeline to a terminal result. Every stage
// failure is converted here; no error crosses the record boundary.
func (p *Pipeline) processRow(ctx context.Context, row models.InputRow, resumed *atomic.Int64) models.ProcessingResult {
	rowLog := p.log.WithField("row", row.Index)

	sourceURL := row.FirstURL()
	if sourceURL == "" {
		rowLog.Warn("Row has no candidate URL")
		return models.ProcessingResult{
			Row:    row.Index,
			Status: models.StatusFailed,
			Reason: models.ReasonNoURL,
		}
	}
	rowLog = rowLog.WithField("url", sourceURL)

	// Resume: serve previously successful rows from the store
	if p.store != nil {
		if cached, found, err := p.store.Get(sourceURL); err != nil {
			rowLog.Warnf("Result store read failed, processing normally: %v", err)
		} else if found && cached.Status == models.StatusSuccess {
			rowLog.Debug("Serving row from result store")
			resumed.Add(1)
			restored := *cached
			restored.Row = row.Index
			return restored
		}
	}

	if ctx.Err() != nil {
		return cancelledResult(row)
	}

	// Stage 1: resolve the identifier
	videoID, err := p.resolver.Resolve(ctx, sourceURL)
	if err != nil {
		rowLog.WithField("category", utils.CategorizeError(err)).Info("Resolution failed")
		return failedResult(row, sourceURL, "", models.ReasonResolveFailed)
	}
	rowLog = rowLog.WithField("video_id", videoID)

	if ctx.Err() != nil {
		return cancelledResult(row)
	}

	// Stage 2: fetch the metadata page (retries inside)
	body, err := p.fetcher.FetchPhoto(ctx, videoID)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return cancelledResult(row)
		}
		rowLog.WithField("category", utils.CategorizeError(err)).Info("Fetch failed")
		return failedResult(row, sourceURL, videoID, models.ReasonContentGone)
	}

	if ctx.Err() != nil {
		return cancelledResult(row)
	}

	// Stage 3: extract the embedded state. Absent or malformed state is not
	// retried: refetching will not change a document whose content is gone.
	state, err := extract.Extract(body)
	if err != nil {
		rowLog.WithField("category", utils.CategorizeError(err)).Info("No embedded state")
		return failedResult(row, sourceURL, videoID, models.ReasonContentGone)
	}

	// Stage 4: map the detail node to a typed record
	rec, err := p.mapper.Map(state)
	if err != nil {
		rowLog.WithField("category", utils.CategorizeError(err)).Info("No video data in state")
		return failedResult(row, sourceURL, videoID, models.ReasonContentGone)
	}

	// The recovered numeric identifier overrides whatever form seeded the request
	if rec.PhotoID != "" {
		videoID = rec.PhotoID
	}
	if rec.IDNonNumeric {
		rowLog.WithField("photo_id", rec.PhotoID).Warn("Record kept with non-numeric identifier")
	}

	result := models.ProcessingResult{
		Row:       row.Index,
		SourceURL: sourceURL,
		VideoID:   videoID,
		Status:    models.StatusSuccess,
		Record:    rec,
	}

	if p.store != nil {
		if err := p.store.Put(&result); err != nil {
			rowLog.Warnf("Result store write failed: %v", err)
		}
	}

	rowLog.WithFields(logrus.Fields{
		"author": rec.AuthorName,
		"likes":  rec.LikeCount,
	}).Info("Row processed")
	return result
}

// LongFormURL reconstructs the long-form URL for a canonical identifier
func (p *Pipeline) LongFormURL(videoID string) string {
	if videoID == "" {
		return ""
	}
	return fmt.Sprintf(p.cfg.LongFormURL, videoID)
}

func (p *Pipeline) emitProgress(completed, total int) {
	if p.onProgress == nil {
		return
	}
	p.onProgress(models.Progress{Completed: completed, Total: total})
}

func (p *Pipeline) logSummary(s models.BatchSummary) {
	p.log.WithFields(logrus.Fields{
		"total":     s.Total,
		"succeeded": s.Succeeded,
		"failed":    s.Failed,
		"resumed":   s.Resumed,
		"duration":  time.Duration(s.DurationMS) * time.Millisecond,
	}).Info("Batch finished")
}

func failedResult(row models.InputRow, sourceURL, videoID, reason string) models.ProcessingResult {
	return models.ProcessingResult{
		Row:       row.Index,
		SourceURL: sourceURL,
		VideoID:   videoID,
		Status:    models.StatusFailed,
		Reason:    reason,
	}
}

func cancelledResult(row models.InputRow) models.ProcessingResult {
	return models.ProcessingResult{
		Row:       row.Index,
		SourceURL: row.FirstURL(),
		Status:    models.StatusFailed,
		Reason:    models.ReasonCancelled,
	}
}

func summarize(results []models.ProcessingResult, resumed int, elapsed time.Duration) models.BatchSummary {
	s := models.BatchSummary{
		Total:      len(results),
		Resumed:    resumed,
		DurationMS: elapsed.Milliseconds(),
	}
	for i := range results {
		switch results[i].Status {
		case models.StatusSuccess:
			s.Succeeded++
		default:
			s.Failed++
		}
	}
	return s
}
