package jobs

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamxray/xray/internal/models"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func waitForStatus(t *testing.T, r *Registry, id string, want Status) View {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		v, ok := r.Get(id)
		require.True(t, ok)
		if v.Status == want {
			return v
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached status %s", id, want)
	return View{}
}

func TestStageStatus(t *testing.T) {
	assert.Equal(t, StatusCollecting, stageStatus(1))
	assert.Equal(t, StatusStats, stageStatus(2))
	assert.Equal(t, StatusCodeAnalysis, stageStatus(3))
	assert.Equal(t, StatusReviewAnalysis, stageStatus(4))
	assert.Equal(t, StatusPatternDetection, stageStatus(5))
	assert.Equal(t, StatusQueued, stageStatus(0))
}

func TestRegistryCompletesJob(t *testing.T) {
	run := func(ctx context.Context, repoURL string, months int, emit func(models.Event)) (*models.AnalysisResult, error) {
		emit(models.Event{Type: models.EventProgress, Stage: 1, TotalStages: 5})
		result := &models.AnalysisResult{RepoURL: repoURL, AnalysisMonths: months}
		emit(models.Event{Type: models.EventComplete, Stage: 5, TotalStages: 5, Data: result})
		return result, nil
	}
	r := NewRegistry(run, 1, quietLogger())
	defer r.Shutdown()

	v, err := r.Start("https://github.com/o/r", 6)
	require.NoError(t, err)
	assert.Len(t, v.ID, 8)

	got := waitForStatus(t, r, v.ID, StatusComplete)
	assert.Empty(t, got.Error)
	assert.NotNil(t, got.CompletedAt)

	result, ok := r.Result(v.ID)
	require.True(t, ok)
	assert.Equal(t, "https://github.com/o/r", result.RepoURL)
}

func TestRegistryFailedJob(t *testing.T) {
	run := func(ctx context.Context, repoURL string, months int, emit func(models.Event)) (*models.AnalysisResult, error) {
		return nil, fmt.Errorf("repository too large")
	}
	r := NewRegistry(run, 1, quietLogger())
	defer r.Shutdown()

	v, err := r.Start("https://github.com/o/r", 6)
	require.NoError(t, err)

	got := waitForStatus(t, r, v.ID, StatusError)
	assert.Equal(t, "repository too large", got.Error)

	_, ok := r.Result(v.ID)
	assert.False(t, ok)
}

func TestRegistryConcurrencyCap(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	running, peak := 0, 0

	run := func(ctx context.Context, repoURL string, months int, emit func(models.Event)) (*models.AnalysisResult, error) {
		mu.Lock()
		running++
		if running > peak {
			peak = running
		}
		mu.Unlock()

		<-release

		mu.Lock()
		running--
		mu.Unlock()
		return &models.AnalysisResult{}, nil
	}
	r := NewRegistry(run, 2, quietLogger())
	defer r.Shutdown()

	var ids []string
	for i := 0; i < 5; i++ {
		v, err := r.Start("https://github.com/o/r", 6)
		require.NoError(t, err)
		ids = append(ids, v.ID)
	}

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	assert.LessOrEqual(t, peak, 2)
	mu.Unlock()

	close(release)
	for _, id := range ids {
		waitForStatus(t, r, id, StatusComplete)
	}
	mu.Lock()
	assert.Equal(t, 2, peak)
	mu.Unlock()
}

func TestSubscribeReceivesEvents(t *testing.T) {
	started := make(chan struct{})
	proceed := make(chan struct{})
	run := func(ctx context.Context, repoURL string, months int, emit func(models.Event)) (*models.AnalysisResult, error) {
		close(started)
		<-proceed
		emit(models.Event{Type: models.EventProgress, Stage: 2, TotalStages: 5, Message: "stats"})
		result := &models.AnalysisResult{RepoURL: repoURL}
		emit(models.Event{Type: models.EventComplete, Stage: 5, TotalStages: 5, Data: result})
		return result, nil
	}
	r := NewRegistry(run, 1, quietLogger())
	defer r.Shutdown()

	v, err := r.Start("https://github.com/o/r", 6)
	require.NoError(t, err)
	<-started

	ch, unsubscribe, ok := r.Subscribe(v.ID)
	require.True(t, ok)
	defer unsubscribe()

	// Synthetic join event first.
	first := <-ch
	assert.Equal(t, models.EventProgress, first.Type)
	assert.Contains(t, first.Message, "in progress")

	close(proceed)
	second := <-ch
	assert.Equal(t, models.EventProgress, second.Type)
	assert.Equal(t, "stats", second.Message)

	third := <-ch
	assert.Equal(t, models.EventComplete, third.Type)
	require.NotNil(t, third.Data)
}

func TestSubscribeAfterCompletion(t *testing.T) {
	run := func(ctx context.Context, repoURL string, months int, emit func(models.Event)) (*models.AnalysisResult, error) {
		result := &models.AnalysisResult{RepoURL: repoURL}
		emit(models.Event{Type: models.EventComplete, Stage: 5, TotalStages: 5, Data: result})
		return result, nil
	}
	r := NewRegistry(run, 1, quietLogger())
	defer r.Shutdown()

	v, err := r.Start("https://github.com/o/r", 6)
	require.NoError(t, err)
	waitForStatus(t, r, v.ID, StatusComplete)

	ch, unsubscribe, ok := r.Subscribe(v.ID)
	require.True(t, ok)
	defer unsubscribe()

	ev := <-ch
	assert.Equal(t, models.EventComplete, ev.Type)
	require.NotNil(t, ev.Data)
	assert.Equal(t, "https://github.com/o/r", ev.Data.RepoURL)
}

func TestSubscribeUnknownJob(t *testing.T) {
	r := NewRegistry(nil, 1, quietLogger())
	defer r.Shutdown()

	_, _, ok := r.Subscribe("nope")
	assert.False(t, ok)
}

func TestShutdownCancelsRunningJobs(t *testing.T) {
	blocked := make(chan struct{})
	run := func(ctx context.Context, repoURL string, months int, emit func(models.Event)) (*models.AnalysisResult, error) {
		close(blocked)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	r := NewRegistry(run, 1, quietLogger())

	v, err := r.Start("https://github.com/o/r", 6)
	require.NoError(t, err)
	<-blocked

	done := make(chan struct{})
	go func() {
		r.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not complete")
	}

	got, ok := r.Get(v.ID)
	require.True(t, ok)
	assert.Equal(t, StatusError, got.Status)
}

func TestRateLimiter(t *testing.T) {
	l := NewRateLimiter(2, time.Minute)
	now := time.Unix(1000, 0)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("1.2.3.4"))
	assert.True(t, l.Allow("1.2.3.4"))
	assert.False(t, l.Allow("1.2.3.4"))

	// Other clients have their own window.
	assert.True(t, l.Allow("5.6.7.8"))

	// Old entries age out.
	now = now.Add(61 * time.Second)
	assert.True(t, l.Allow("1.2.3.4"))
}
