package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/teamxray/xray/internal/models"
)

// Status is a job's externally visible state. Running jobs report the
// pipeline stage they are in.
type Status string

const (
	StatusQueued           Status = "queued"
	StatusCollecting       Status = "collecting"
	StatusStats            Status = "stats"
	StatusCodeAnalysis     Status = "code_analysis"
	StatusReviewAnalysis   Status = "review_analysis"
	StatusPatternDetection Status = "pattern_detection"
	StatusComplete         Status = "complete"
	StatusError            Status = "error"
)

func stageStatus(stage int) Status {
	switch stage {
	case 1:
		return StatusCollecting
	case 2:
		return StatusStats
	case 3:
		return StatusCodeAnalysis
	case 4:
		return StatusReviewAnalysis
	case 5:
		return StatusPatternDetection
	default:
		return StatusQueued
	}
}

// subscriberBuffer sizes each observer channel. An observer that falls
// this far behind is pruned instead of blocking the pipeline.
const subscriberBuffer = 64

// Job tracks one pipeline run. All fields behind mu.
type Job struct {
	ID      string
	RepoURL string
	Months  int

	mu          sync.Mutex
	status      Status
	stage       int
	message     string
	progress    float64
	errMsg      string
	result      *models.AnalysisResult
	lastPartial *models.AnalysisResult
	subscribers map[chan models.Event]struct{}
	createdAt   time.Time
	completedAt time.Time
	cancel      context.CancelFunc
}

// View is a point-in-time JSON projection of a job.
type View struct {
	ID          string  `json:"id"`
	RepoURL     string  `json:"repo_url"`
	Months      int     `json:"months"`
	Status      Status  `json:"status"`
	Stage       int     `json:"stage"`
	Message     string  `json:"message"`
	Progress    float64 `json:"progress"`
	Error       string  `json:"error,omitempty"`
	CreatedAt   string  `json:"created_at"`
	CompletedAt *string `json:"completed_at,omitempty"`
}

func (j *Job) view() View {
	v := View{
		ID:        j.ID,
		RepoURL:   j.RepoURL,
		Months:    j.Months,
		Status:    j.status,
		Stage:     j.stage,
		Message:   j.message,
		Progress:  j.progress,
		Error:     j.errMsg,
		CreatedAt: j.createdAt.UTC().Format(time.RFC3339),
	}
	if !j.completedAt.IsZero() {
		done := j.completedAt.UTC().Format(time.RFC3339)
		v.CompletedAt = &done
	}
	return v
}

// RunFunc executes one pipeline run, emitting events along the way.
type RunFunc func(ctx context.Context, repoURL string, months int, emit func(models.Event)) (*models.AnalysisResult, error)

// Registry is the in-memory job table. A bounded semaphore caps
// concurrently running pipelines; jobs past the cap sit queued until a
// slot frees up.
type Registry struct {
	run       RunFunc
	sem       *semaphore.Weighted
	logger    *logrus.Logger
	retention time.Duration

	mu   sync.RWMutex
	jobs map[string]*Job

	ctx       context.Context
	cancelAll context.CancelFunc
	wg        sync.WaitGroup
}

func NewRegistry(run RunFunc, maxConcurrent int64, logger *logrus.Logger) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		run:       run,
		sem:       semaphore.NewWeighted(maxConcurrent),
		logger:    logger,
		retention: time.Hour,
		jobs:      make(map[string]*Job),
		ctx:       ctx,
		cancelAll: cancel,
	}
	r.wg.Add(1)
	go r.cleanupLoop()
	return r
}

// Start registers a new job and launches its driving goroutine.
func (r *Registry) Start(repoURL string, months int) (View, error) {
	select {
	case <-r.ctx.Done():
		return View{}, fmt.Errorf("registry is shut down")
	default:
	}

	jobCtx, cancel := context.WithCancel(r.ctx)
	job := &Job{
		ID:          uuid.NewString()[:8],
		RepoURL:     repoURL,
		Months:      months,
		status:      StatusQueued,
		subscribers: make(map[chan models.Event]struct{}),
		createdAt:   time.Now(),
		cancel:      cancel,
	}

	r.mu.Lock()
	r.jobs[job.ID] = job
	r.mu.Unlock()

	r.wg.Add(1)
	go r.drive(jobCtx, job)

	r.logger.WithFields(logrus.Fields{"job": job.ID, "repo": repoURL, "months": months}).Info("job queued")
	return job.view(), nil
}

// drive is the single goroutine that owns a job's lifecycle.
func (r *Registry) drive(ctx context.Context, job *Job) {
	defer r.wg.Done()
	defer job.cancel()

	if err := r.sem.Acquire(ctx, 1); err != nil {
		r.fail(job, err)
		return
	}
	defer r.sem.Release(1)

	result, err := r.run(ctx, job.RepoURL, job.Months, func(ev models.Event) {
		r.observe(job, ev)
	})
	if err != nil {
		r.fail(job, err)
		return
	}

	job.mu.Lock()
	job.status = StatusComplete
	job.result = result
	job.completedAt = time.Now()
	job.mu.Unlock()

	r.logger.WithField("job", job.ID).Info("job complete")
}

func (r *Registry) fail(job *Job, err error) {
	job.mu.Lock()
	job.status = StatusError
	job.errMsg = err.Error()
	job.completedAt = time.Now()
	job.mu.Unlock()

	r.logger.WithError(err).WithField("job", job.ID).Error("job failed")

	r.broadcast(job, models.Event{
		Type:        models.EventError,
		TotalStages: models.TotalStages,
		Message:     err.Error(),
	})
}

// observe updates job state from a pipeline event and fans it out.
func (r *Registry) observe(job *Job, ev models.Event) {
	job.mu.Lock()
	job.stage = ev.Stage
	job.message = ev.Message
	job.progress = ev.Progress
	switch ev.Type {
	case models.EventProgress:
		job.status = stageStatus(ev.Stage)
	case models.EventPartial:
		job.status = stageStatus(ev.Stage)
		job.lastPartial = ev.Data
	case models.EventComplete:
		job.lastPartial = ev.Data
	}
	job.mu.Unlock()

	r.broadcast(job, ev)
}

// broadcast delivers an event to every subscriber, pruning any whose
// buffer is full.
func (r *Registry) broadcast(job *Job, ev models.Event) {
	job.mu.Lock()
	defer job.mu.Unlock()
	for ch := range job.subscribers {
		select {
		case ch <- ev:
		default:
			delete(job.subscribers, ch)
			close(ch)
			r.logger.WithField("job", job.ID).Warn("dropping slow subscriber")
		}
	}
}

// Get returns a job's current view.
func (r *Registry) Get(id string) (View, bool) {
	r.mu.RLock()
	job, ok := r.jobs[id]
	r.mu.RUnlock()
	if !ok {
		return View{}, false
	}
	job.mu.Lock()
	defer job.mu.Unlock()
	return job.view(), true
}

// Result returns the final result of a completed job.
func (r *Registry) Result(id string) (*models.AnalysisResult, bool) {
	r.mu.RLock()
	job, ok := r.jobs[id]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	job.mu.Lock()
	defer job.mu.Unlock()
	if job.status != StatusComplete {
		return nil, false
	}
	return job.result, true
}

// Subscribe attaches an observer to a job's event stream. The first
// event on the channel is synthetic and reflects the job's current
// state, so a late joiner never starts from nothing. The returned
// cancel func detaches the observer; the channel is closed by whichever
// side disconnects first.
func (r *Registry) Subscribe(id string) (<-chan models.Event, func(), bool) {
	r.mu.RLock()
	job, ok := r.jobs[id]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, false
	}

	ch := make(chan models.Event, subscriberBuffer)

	job.mu.Lock()
	switch job.status {
	case StatusError:
		ch <- models.Event{
			Type:        models.EventError,
			TotalStages: models.TotalStages,
			Message:     job.errMsg,
		}
	case StatusComplete:
		ch <- models.Event{
			Type:        models.EventComplete,
			Stage:       models.TotalStages,
			TotalStages: models.TotalStages,
			Message:     "Analysis complete!",
			Progress:    1.0,
			Data:        job.result,
		}
	default:
		ev := models.Event{
			Type:        models.EventProgress,
			TotalStages: models.TotalStages,
			Message:     "Analysis in progress, state: " + string(job.status),
		}
		if job.lastPartial != nil {
			ev.Type = models.EventPartial
			ev.Data = job.lastPartial
		}
		ch <- ev
	}
	job.subscribers[ch] = struct{}{}
	job.mu.Unlock()

	unsubscribe := func() {
		job.mu.Lock()
		if _, still := job.subscribers[ch]; still {
			delete(job.subscribers, ch)
			close(ch)
		}
		job.mu.Unlock()
	}
	return ch, unsubscribe, true
}

// cleanupLoop drops finished jobs after the retention window.
func (r *Registry) cleanupLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.pruneFinished()
		}
	}
}

func (r *Registry) pruneFinished() {
	cutoff := time.Now().Add(-r.retention)

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, job := range r.jobs {
		job.mu.Lock()
		done := (job.status == StatusComplete || job.status == StatusError) && job.completedAt.Before(cutoff)
		job.mu.Unlock()
		if done {
			delete(r.jobs, id)
			r.logger.WithField("job", id).Debug("pruned finished job")
		}
	}
}

// Shutdown cancels every running job and waits for their goroutines.
// Cancellation still runs each pipeline's cleanup path.
func (r *Registry) Shutdown() {
	r.cancelAll()
	r.wg.Wait()
}
