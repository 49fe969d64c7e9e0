package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cardvault/backend/internal/domain/integration"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// Sync Job Types
// ---------------------------------------------------------------------------

// SyncJobStatus represents the status of a sync job
type SyncJobStatus string

const (
	SyncJobStatusPending   SyncJobStatus = "PENDING"
	SyncJobStatusRunning   SyncJobStatus = "RUNNING"
	SyncJobStatusSuccess   SyncJobStatus = "SUCCESS"
	SyncJobStatusPartial   SyncJobStatus = "PARTIAL"
	SyncJobStatusFailed    SyncJobStatus = "FAILED"
	SyncJobStatusCancelled SyncJobStatus = "CANCELLED"
)

// IsTerminal reports whether the job has finished
func (s SyncJobStatus) IsTerminal() bool {
	return s != SyncJobStatusPending && s != SyncJobStatusRunning
}

// Job triggers
const (
	TriggerManual   = "manual"
	TriggerInterval = "interval"
)

// SyncJob is one queued reconciliation pass
type SyncJob struct {
	ID          uuid.UUID                `json:"id"`
	Request     integration.SyncRequest  `json:"request"`
	Trigger     string                   `json:"trigger"`
	Status      SyncJobStatus            `json:"status"`
	Error       string                   `json:"error,omitempty"`
	Report      *integration.BatchReport `json:"report,omitempty"`
	SubmittedAt time.Time                `json:"submitted_at"`
	StartedAt   *time.Time               `json:"started_at,omitempty"`
	CompletedAt *time.Time               `json:"completed_at,omitempty"`
}

// NewSyncJob creates a pending sync job
func NewSyncJob(req integration.SyncRequest, trigger string) *SyncJob {
	return &SyncJob{
		ID:          uuid.New(),
		Request:     req,
		Trigger:     trigger,
		Status:      SyncJobStatusPending,
		SubmittedAt: time.Now(),
	}
}

// Start marks the job as running
func (j *SyncJob) Start() {
	now := time.Now()
	j.Status = SyncJobStatusRunning
	j.StartedAt = &now
	j.Error = ""
}

// Complete records the report of the pass
func (j *SyncJob) Complete(report *integration.BatchReport) {
	now := time.Now()
	j.Report = report
	j.CompletedAt = &now

	switch {
	case report.Failed == 0:
		j.Status = SyncJobStatusSuccess
	case report.Succeeded > 0:
		j.Status = SyncJobStatusPartial
	default:
		j.Status = SyncJobStatusFailed
	}
}

// Fail marks the job as failed before any record was attempted
func (j *SyncJob) Fail(err string) {
	now := time.Now()
	j.Status = SyncJobStatusFailed
	j.CompletedAt = &now
	j.Error = err
}

// Cancel marks the job as cancelled
func (j *SyncJob) Cancel() {
	now := time.Now()
	j.Status = SyncJobStatusCancelled
	j.CompletedAt = &now
}

// ---------------------------------------------------------------------------
// SyncExecutor Interface
// ---------------------------------------------------------------------------

// SyncExecutor runs one reconciliation pass
type SyncExecutor interface {
	SyncStore(ctx context.Context, req integration.SyncRequest) (*integration.BatchReport, error)
}

// ---------------------------------------------------------------------------
// SyncSchedulerConfig
// ---------------------------------------------------------------------------

// SyncSchedulerConfig holds configuration for the sync scheduler
type SyncSchedulerConfig struct {
	// MaxConcurrentJobs is the number of passes running at once across integrations
	MaxConcurrentJobs int
	// JobTimeout bounds a single pass
	JobTimeout time.Duration
	// QueueSize is the number of jobs waiting for a worker
	QueueSize int
	// HistorySize is the number of finished jobs kept for inspection
	HistorySize int
}

// DefaultSyncSchedulerConfig returns default configuration
func DefaultSyncSchedulerConfig() SyncSchedulerConfig {
	return SyncSchedulerConfig{
		MaxConcurrentJobs: 3,
		JobTimeout:        10 * time.Minute,
		QueueSize:         100,
		HistorySize:       100,
	}
}

// Validate validates the configuration
func (c *SyncSchedulerConfig) Validate() error {
	if c.MaxConcurrentJobs <= 0 {
		return ErrInvalidConfig
	}
	if c.JobTimeout <= 0 {
		return ErrInvalidConfig
	}
	if c.QueueSize <= 0 || c.HistorySize < 0 {
		return ErrInvalidConfig
	}
	return nil
}

// ---------------------------------------------------------------------------
// SyncScheduler
// ---------------------------------------------------------------------------

// SyncScheduler runs sync jobs on a bounded worker pool.
// At most one job per store and marketplace is queued or running at a time.
type SyncScheduler struct {
	config   SyncSchedulerConfig
	executor SyncExecutor
	logger   *zap.Logger

	jobs      chan *SyncJob
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool

	// active holds queued and running jobs by integration key
	activeMu sync.RWMutex
	active   map[string]*SyncJob

	historyMu sync.RWMutex
	history   []SyncJob
}

// NewSyncScheduler creates a new sync scheduler
func NewSyncScheduler(config SyncSchedulerConfig, executor SyncExecutor, logger *zap.Logger) (*SyncScheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SyncScheduler{
		config:   config,
		executor: executor,
		logger:   logger.Named("sync_scheduler"),
		active:   make(map[string]*SyncJob),
		history:  make([]SyncJob, 0, config.HistorySize),
	}, nil
}

// Start starts the worker pool. A stopped scheduler can be started again.
func (s *SyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}
	s.isRunning = true
	// Stop closed the previous queue
	s.jobs = make(chan *SyncJob, s.config.QueueSize)

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for i := 0; i < s.config.MaxConcurrentJobs; i++ {
		s.wg.Add(1)
		go s.worker(ctx, s.jobs, i)
	}

	s.logger.Info("Sync scheduler started",
		zap.Int("workers", s.config.MaxConcurrentJobs),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)
	return nil
}

// Stop cancels running passes and waits for the workers to exit.
// Jobs still queued are marked cancelled.
func (s *SyncScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	close(s.jobs)
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Sync scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Sync scheduler stop timed out")
		return ctx.Err()
	}
}

// IsRunning reports whether the scheduler accepts jobs
func (s *SyncScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// Submit queues a pass and returns the job tracking it
func (s *SyncScheduler) Submit(req integration.SyncRequest, trigger string) (*SyncJob, error) {
	if !req.Marketplace.IsValid() {
		return nil, integration.ErrInvalidMarketplace
	}
	if req.StoreID == uuid.Nil {
		return nil, integration.ErrInvalidStoreID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return nil, ErrSchedulerNotRunning
	}

	key := req.Key().String()
	job := NewSyncJob(req, trigger)

	s.activeMu.Lock()
	if _, busy := s.active[key]; busy {
		s.activeMu.Unlock()
		return nil, ErrSyncAlreadyInProgress
	}
	s.active[key] = job
	s.activeMu.Unlock()
	snapshot := *job

	select {
	case s.jobs <- job:
	default:
		s.release(key)
		return nil, ErrJobQueueFull
	}

	s.logger.Debug("Sync job queued",
		zap.String("job_id", job.ID.String()),
		zap.String("store_id", req.StoreID.String()),
		zap.String("marketplace", req.Marketplace.String()),
		zap.String("trigger", trigger),
	)
	return &snapshot, nil
}

// Job returns a snapshot of a queued, running or recently finished job
func (s *SyncScheduler) Job(id uuid.UUID) (*SyncJob, error) {
	s.activeMu.RLock()
	for _, job := range s.active {
		if job.ID == id {
			snapshot := *job
			s.activeMu.RUnlock()
			return &snapshot, nil
		}
	}
	s.activeMu.RUnlock()

	s.historyMu.RLock()
	defer s.historyMu.RUnlock()
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].ID == id {
			snapshot := s.history[i]
			return &snapshot, nil
		}
	}
	return nil, ErrJobNotFound
}

// InProgress reports whether a pass is queued or running for an integration
func (s *SyncScheduler) InProgress(key integration.CredentialKey) bool {
	s.activeMu.RLock()
	defer s.activeMu.RUnlock()
	_, ok := s.active[key.String()]
	return ok
}

// worker processes jobs from the queue
func (s *SyncScheduler) worker(ctx context.Context, jobs <-chan *SyncJob, workerID int) {
	defer s.wg.Done()

	for job := range jobs {
		if ctx.Err() != nil {
			s.finish(job, func(j *SyncJob) { j.Cancel() })
			continue
		}
		s.processJob(ctx, job, workerID)
	}
}

// processJob runs a single pass
func (s *SyncScheduler) processJob(ctx context.Context, job *SyncJob, workerID int) {
	logger := s.logger.With(
		zap.String("job_id", job.ID.String()),
		zap.String("store_id", job.Request.StoreID.String()),
		zap.String("marketplace", job.Request.Marketplace.String()),
		zap.Int("worker_id", workerID),
	)

	s.update(job, func(j *SyncJob) { j.Start() })
	logger.Info("Sync job started", zap.Bool("force", job.Request.Force))

	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	report, err := s.execute(jobCtx, job.Request)
	switch {
	case err != nil && errors.Is(err, context.Canceled) && ctx.Err() != nil:
		s.finish(job, func(j *SyncJob) { j.Cancel() })
		logger.Warn("Sync job cancelled")
	case err != nil:
		s.finish(job, func(j *SyncJob) { j.Fail(err.Error()) })
		logger.Error("Sync job failed", zap.Error(err))
	default:
		s.finish(job, func(j *SyncJob) { j.Complete(report) })
		logger.Info("Sync job completed",
			zap.Int("attempted", report.Attempted),
			zap.Int("succeeded", report.Succeeded),
			zap.Int("failed", report.Failed),
		)
	}
}

func (s *SyncScheduler) execute(ctx context.Context, req integration.SyncRequest) (report *integration.BatchReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrSyncPanicked
			s.logger.Error("Sync job panicked", zap.Any("panic", r))
		}
	}()
	return s.executor.SyncStore(ctx, req)
}

// update mutates an active job under the lock readers take
func (s *SyncScheduler) update(job *SyncJob, fn func(*SyncJob)) {
	s.activeMu.Lock()
	fn(job)
	s.activeMu.Unlock()
}

// finish applies the terminal transition, releases the integration key and records history
func (s *SyncScheduler) finish(job *SyncJob, fn func(*SyncJob)) {
	s.activeMu.Lock()
	fn(job)
	snapshot := *job
	delete(s.active, job.Request.Key().String())
	s.activeMu.Unlock()

	s.addToHistory(snapshot)
}

func (s *SyncScheduler) release(key string) {
	s.activeMu.Lock()
	delete(s.active, key)
	s.activeMu.Unlock()
}

// addToHistory adds a finished job to history, dropping the oldest beyond the limit
func (s *SyncScheduler) addToHistory(job SyncJob) {
	if s.config.HistorySize == 0 {
		return
	}
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	s.history = append(s.history, job)
	if len(s.history) > s.config.HistorySize {
		s.history = s.history[len(s.history)-s.config.HistorySize:]
	}
}

// GetJobHistory returns up to limit finished jobs, most recent first
func (s *SyncScheduler) GetJobHistory(limit int) []SyncJob {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	result := make([]SyncJob, 0, limit)
	for i := len(s.history) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, s.history[i])
	}
	return result
}

// GetJobHistoryByStore returns up to limit finished jobs of a store, most recent first
func (s *SyncScheduler) GetJobHistoryByStore(storeID uuid.UUID, limit int) []SyncJob {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()

	result := make([]SyncJob, 0)
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].Request.StoreID != storeID {
			continue
		}
		result = append(result, s.history[i])
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result
}
