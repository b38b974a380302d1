// Package dispatcher drains the submission ledger: it leases due rows,
// encrypts their payloads and delivers them to the Hub, advancing each row
// through the ledger's state machine. All coordination between workers goes
// through the ledger; workers share no in-process state.
package dispatcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fedanode/result-service/internal/common"
	"github.com/fedanode/result-service/internal/cryptox"
	"github.com/fedanode/result-service/internal/logging"
	"github.com/fedanode/result-service/internal/server/hub"
	"github.com/fedanode/result-service/internal/server/models"
	"github.com/fedanode/result-service/internal/server/repositories/results"
	"github.com/fedanode/result-service/internal/server/storage"
)

// HubAPI is the slice of the Hub client the dispatcher needs. *hub.Client
// satisfies it; tests substitute a fake.
type HubAPI interface {
	GetBucket(ctx context.Context, name string) (*hub.Bucket, error)
	UploadToBucket(ctx context.Context, bucketName, fileName string, data []byte, contentType string) (*hub.BucketFile, error)
	FindBucketFile(ctx context.Context, bucketID, name string) (*hub.BucketFile, error)
	LinkFileToAnalysis(ctx context.Context, analysisID, bucketFileID, name, kind string) (*hub.AnalysisFile, error)
}

type Options struct {
	Workers      int
	BatchSize    int
	PollInterval time.Duration
	LeaseTTL     time.Duration
	MaxAttempts  int
	BackoffBase  time.Duration
	BackoffCap   time.Duration
}

type Dispatcher struct {
	repo   results.Repository
	store  storage.BlobStore
	engine *cryptox.Engine
	hub    HubAPI
	logger logging.Logger
	opts   Options
}

func New(repo results.Repository, store storage.BlobStore, engine *cryptox.Engine, hubAPI HubAPI, logger logging.Logger, opts Options) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = time.Minute
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}

	return &Dispatcher{
		repo:   repo,
		store:  store,
		engine: engine,
		hub:    hubAPI,
		logger: logger.With("module", "dispatcher"),
		opts:   opts,
	}
}

// Run starts the worker pool and blocks until ctx is cancelled and all
// workers have drained their current row.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < d.opts.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			d.runWorker(ctx, worker)
		}(i)
	}
	wg.Wait()
}

func (d *Dispatcher) runWorker(ctx context.Context, worker int) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		n, err := d.runBatch(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error(ctx, "lease batch failed", "worker", worker, "error", err)
		}

		// poll immediately while the queue has work
		if n > 0 {
			timer.Reset(0)
		} else {
			timer.Reset(d.opts.PollInterval)
		}
	}
}

// runBatch claims one batch and processes it sequentially, returning the
// number of rows claimed.
func (d *Dispatcher) runBatch(ctx context.Context) (int, error) {
	rows, err := d.repo.LeaseNext(ctx, d.opts.BatchSize, d.opts.LeaseTTL)
	if err != nil {
		return 0, err
	}

	for _, row := range rows {
		if ctx.Err() != nil {
			return len(rows), ctx.Err()
		}
		d.deliver(ctx, row)
	}
	return len(rows), nil
}

// associatedData binds the ciphertext to the ledger row so it cannot be
// replayed against a different file or analysis.
func associatedData(id, analysisID string) []byte {
	return []byte(id + "|" + analysisID)
}

// deliver drives one leased row as far as it will go this cycle. Every
// external call runs under a deadline derived from the lease TTL, so a
// stalled Hub cannot outlive the lease and race a reclaiming worker.
func (d *Dispatcher) deliver(ctx context.Context, row *models.ResultFile) {
	ctx, cancel := context.WithTimeout(ctx, d.opts.LeaseTTL)
	defer cancel()

	log := d.logger.With("id", row.ID, "analysis_id", row.AnalysisID, "attempt", row.AttemptCount+1)

	if err := d.repo.Advance(ctx, row.ID, models.StatePending, models.StateEncrypting, results.AdvanceFields{}); err != nil {
		if errors.Is(err, common.ErrConflict) {
			return // another worker won the row
		}
		log.Error(ctx, "advance to ENCRYPTING failed", "error", err)
		return
	}

	plaintext, err := d.store.Read(ctx, row.BlobKey)
	if err != nil {
		d.fail(ctx, log, row, fmt.Errorf("read blob %s: %w", row.BlobKey, err))
		return
	}

	digest := sha256.Sum256(plaintext)
	if got := hex.EncodeToString(digest[:]); got != row.ContentDigest {
		// stored bytes no longer match what was accepted; retrying the
		// same corrupt blob cannot succeed
		cause := fmt.Sprintf("%v: blob digest %s does not match recorded %s", common.ErrIntegrity, got, row.ContentDigest)
		log.Error(ctx, "integrity check failed", "cause", cause)
		if err := d.repo.Fail(ctx, row.ID, cause); err != nil && !errors.Is(err, common.ErrConflict) {
			log.Error(ctx, "finalize FAILED failed", "error", err)
		}
		return
	}

	ciphertext, err := d.engine.Encrypt(plaintext, associatedData(row.ID, row.AnalysisID))
	if err != nil {
		d.fail(ctx, log, row, fmt.Errorf("encrypt: %w", err))
		return
	}

	if err := d.repo.Advance(ctx, row.ID, models.StateEncrypting, models.StateUploading, results.AdvanceFields{}); err != nil {
		if !errors.Is(err, common.ErrConflict) {
			log.Error(ctx, "advance to UPLOADING failed", "error", err)
		}
		return
	}

	hubFileID, err := d.upload(ctx, row, ciphertext)
	if err != nil {
		d.fail(ctx, log, row, err)
		return
	}

	if err := d.repo.Advance(ctx, row.ID, models.StateUploading, models.StateDelivered, results.AdvanceFields{HubFileID: hubFileID}); err != nil {
		if !errors.Is(err, common.ErrConflict) {
			log.Error(ctx, "advance to DELIVERED failed", "error", err)
		}
		return
	}

	log.Info(ctx, "delivered", "hub_file_id", hubFileID, "size", len(ciphertext))
}

// upload pushes the ciphertext into the analysis bucket for the row's kind
// and links it to the analysis. An already-exists answer from the Hub means
// a previous attempt uploaded before its acknowledgement was recorded; the
// existing bucket file is recovered by name so the link still happens.
func (d *Dispatcher) upload(ctx context.Context, row *models.ResultFile, ciphertext []byte) (string, error) {
	bucketName := hub.AnalysisBucketName(row.AnalysisID, string(row.Kind))

	bucket, err := d.hub.GetBucket(ctx, bucketName)
	if err != nil {
		// buckets are provisioned asynchronously after analysis creation,
		// so a 404 is retryable like any transient failure
		return "", fmt.Errorf("resolve bucket %s: %w", bucketName, err)
	}

	bf, err := d.hub.UploadToBucket(ctx, bucket.Name, row.ID, ciphertext, "application/octet-stream")
	if err != nil {
		if !hub.IsAlreadyExists(err) {
			return "", fmt.Errorf("upload to bucket %s: %w", bucketName, err)
		}
		bf, err = d.hub.FindBucketFile(ctx, bucket.ID, row.ID)
		if err != nil {
			return "", fmt.Errorf("recover existing bucket file %s: %w", row.ID, err)
		}
	}

	if _, err := d.hub.LinkFileToAnalysis(ctx, row.AnalysisID, bf.ID, bf.Name, string(row.Kind)); err != nil {
		if hub.IsAlreadyExists(err) {
			return bf.ID, nil
		}
		return "", fmt.Errorf("link file %s: %w", bf.ID, err)
	}
	return bf.ID, nil
}

// fail records a retryable failure: the row is requeued with backoff or
// finalized FAILED once the attempt budget is spent.
func (d *Dispatcher) fail(ctx context.Context, log logging.Logger, row *models.ResultFile, cause error) {
	attempt := row.AttemptCount + 1
	delay := nextDelay(d.opts.BackoffBase, d.opts.BackoffCap, attempt)

	state, err := d.repo.RecordFailure(ctx, row.ID, cause.Error(), d.opts.MaxAttempts, delay)
	if err != nil {
		if !errors.Is(err, common.ErrConflict) {
			log.Error(ctx, "record failure failed", "error", err)
		}
		return
	}

	if state == models.StateFailed {
		log.Error(ctx, "delivery failed permanently", "cause", cause.Error())
	} else {
		log.Warn(ctx, "delivery attempt failed", "cause", cause.Error(), "retry_in", delay)
	}
}
