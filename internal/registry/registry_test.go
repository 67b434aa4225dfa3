package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/imago/internal/models"
)

func newTestRegistry() *Registry {
	return New(arbor.NewLogger())
}

func TestCreate_StartsPending(t *testing.T) {
	reg := newTestRegistry()

	job := reg.Create("holiday", "/photos")
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, "holiday", job.Collection)
	assert.Equal(t, "/photos", job.Source)

	got, err := reg.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
}

func TestGet_UnknownJob(t *testing.T) {
	reg := newTestRegistry()

	_, err := reg.Get("nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestMarkRunning_SetsStartedAt(t *testing.T) {
	reg := newTestRegistry()
	job := reg.Create("c", "/src")

	require.NoError(t, reg.MarkRunning(job.ID))

	got, err := reg.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, got.Status)
	require.NotNil(t, got.StartedAt)
}

func TestSetProgress_Monotone(t *testing.T) {
	reg := newTestRegistry()
	job := reg.Create("c", "/src")

	reg.SetProgress(job.ID, 40)
	reg.SetProgress(job.ID, 25) // lower write must be ignored
	got, _ := reg.Get(job.ID)
	assert.Equal(t, 40.0, got.Progress)

	reg.SetProgress(job.ID, 150) // capped at 100
	got, _ = reg.Get(job.ID)
	assert.Equal(t, 100.0, got.Progress)
}

func TestUpdateCounters_Accumulates(t *testing.T) {
	reg := newTestRegistry()
	job := reg.Create("c", "/src")

	reg.UpdateCounters(job.ID, CounterDelta{TotalFiles: 3})
	reg.UpdateCounters(job.ID, CounterDelta{Processed: 1})
	reg.UpdateCounters(job.ID, CounterDelta{Failed: 1})
	reg.UpdateCounters(job.ID, CounterDelta{FromCache: 1})

	counters, err := reg.Counters(job.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, counters.TotalFiles)
	assert.Equal(t, 3, counters.Done())
}

func TestTransition_WritesResult(t *testing.T) {
	reg := newTestRegistry()
	job := reg.Create("c", "/src")
	require.NoError(t, reg.MarkRunning(job.ID))

	reg.UpdateCounters(job.ID, CounterDelta{TotalFiles: 2, Processed: 1, Failed: 1})
	reg.AddProcessed(job.ID, models.ProcessedFile{Path: "a.jpg", PointID: "p1", Source: models.SourceBatchML})
	reg.AddFailed(job.ID, models.FailedFile{Path: "b.jpg", Reason: models.FailDecodeError})

	require.NoError(t, reg.Transition(job.ID, models.JobStatusCompleted))

	got, err := reg.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	require.NotNil(t, got.FinishedAt)
	require.NotNil(t, got.Result)
	assert.Equal(t, 1, got.Result.TotalProcessed)
	assert.Equal(t, 1, got.Result.TotalFailed)
	assert.Len(t, got.Result.ProcessedFiles, 1)
	assert.Len(t, got.Result.FailedFiles, 1)
}

func TestTransition_TerminalIsFinal(t *testing.T) {
	reg := newTestRegistry()
	job := reg.Create("c", "/src")

	require.NoError(t, reg.Transition(job.ID, models.JobStatusCancelled))
	err := reg.Transition(job.ID, models.JobStatusCompleted)
	assert.ErrorIs(t, err, ErrTerminalState)

	got, _ := reg.Get(job.ID)
	assert.Equal(t, models.JobStatusCancelled, got.Status)
}

func TestTransition_RejectsNonTerminal(t *testing.T) {
	reg := newTestRegistry()
	job := reg.Create("c", "/src")

	err := reg.Transition(job.ID, models.JobStatusRunning)
	assert.Error(t, err)
}

func TestAppendLog_OrderedTimestamps(t *testing.T) {
	reg := newTestRegistry()
	job := reg.Create("c", "/src")

	reg.AppendLog(job.ID, "info", "first")
	reg.AppendLog(job.ID, "warn", "second")

	got, err := reg.Get(job.ID)
	require.NoError(t, err)
	require.Len(t, got.Logs, 2)
	assert.Equal(t, "first", got.Logs[0].Message)
	assert.Equal(t, "second", got.Logs[1].Message)
	assert.False(t, got.Logs[1].Timestamp.Before(got.Logs[0].Timestamp))
}

func TestList_MostRecentFirst(t *testing.T) {
	reg := newTestRegistry()
	first := reg.Create("c", "/a")
	second := reg.Create("c", "/b")

	jobs := reg.List()
	require.Len(t, jobs, 2)
	// Creation timestamps can collide at clock resolution; both orders are
	// acceptable then, but both jobs must be present.
	ids := []string{jobs[0].ID, jobs[1].ID}
	assert.Contains(t, ids, first.ID)
	assert.Contains(t, ids, second.ID)
}

func TestSnapshot_DoesNotAliasRegistryState(t *testing.T) {
	reg := newTestRegistry()
	job := reg.Create("c", "/src")
	reg.AppendLog(job.ID, "info", "one")

	got, err := reg.Get(job.ID)
	require.NoError(t, err)
	got.Logs[0].Message = "mutated"

	again, err := reg.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, "one", again.Logs[0].Message)
}

func TestConcurrentCounterUpdates(t *testing.T) {
	reg := newTestRegistry()
	job := reg.Create("c", "/src")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reg.UpdateCounters(job.ID, CounterDelta{Processed: 1})
		}()
	}
	wg.Wait()

	counters, err := reg.Counters(job.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, counters.Processed)
}
