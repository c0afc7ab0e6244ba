package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-adp-timetable/internal/dto"
	"github.com/noah-isme/sma-adp-timetable/internal/models"
	appErrors "github.com/noah-isme/sma-adp-timetable/pkg/errors"
	"github.com/noah-isme/sma-adp-timetable/pkg/jobs"
)

type queueStub struct {
	jobs []jobs.Job
	err  error
}

func (q *queueStub) Enqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type generatorStub struct {
	resp *dto.GenerateTimetableResponse
	err  error
}

func (g generatorStub) Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.GenerateTimetableResponse, error) {
	return g.resp, g.err
}

func TestTimetableJobServiceSubmitAndHandle(t *testing.T) {
	queue := &queueStub{}
	svc := NewTimetableJobService(generatorStub{resp: &dto.GenerateTimetableResponse{ProposalID: "p-1", Status: models.SolveStatusCompleted}}, queue, 1, time.Hour, nil)

	job, err := svc.Submit(context.Background(), dto.GenerateTimetableRequest{TermID: "term-1"})
	require.NoError(t, err)
	assert.Equal(t, models.SolveJobQueued, job.Status)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, SolveJobType, queue.jobs[0].Type)

	require.NoError(t, svc.Handle(context.Background(), queue.jobs[0]))

	status, err := svc.Status(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SolveJobFinished, status.Status)
	assert.Equal(t, "p-1", status.ProposalID)
	assert.NotNil(t, status.FinishedAt)
}

func TestTimetableJobServiceClientErrorFailsWithoutRetry(t *testing.T) {
	queue := &queueStub{}
	svc := NewTimetableJobService(generatorStub{err: appErrors.Clone(appErrors.ErrStructural, "no classrooms supplied")}, queue, 3, time.Hour, nil)

	job, err := svc.Submit(context.Background(), dto.GenerateTimetableRequest{TermID: "term-1"})
	require.NoError(t, err)

	assert.NoError(t, svc.Handle(context.Background(), queue.jobs[0]))
	status, err := svc.Status(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SolveJobFailed, status.Status)
	assert.Equal(t, "no classrooms supplied", status.Error)
}

func TestTimetableJobServiceServerErrorRetries(t *testing.T) {
	queue := &queueStub{}
	svc := NewTimetableJobService(generatorStub{err: errors.New("db down")}, queue, 2, time.Hour, nil)

	job, err := svc.Submit(context.Background(), dto.GenerateTimetableRequest{TermID: "term-1"})
	require.NoError(t, err)

	assert.Error(t, svc.Handle(context.Background(), queue.jobs[0]))
	status, _ := svc.Status(context.Background(), job.ID)
	assert.Equal(t, models.SolveJobQueued, status.Status)

	final := queue.jobs[0]
	final.Attempt = 2
	assert.NoError(t, svc.Handle(context.Background(), final))
	status, _ = svc.Status(context.Background(), job.ID)
	assert.Equal(t, models.SolveJobFailed, status.Status)
}

func TestTimetableJobServiceEnqueueFailure(t *testing.T) {
	svc := NewTimetableJobService(generatorStub{}, &queueStub{err: errors.New("stopped")}, 1, time.Hour, nil)

	_, err := svc.Submit(context.Background(), dto.GenerateTimetableRequest{TermID: "term-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestTimetableJobServiceValidationAndUnknown(t *testing.T) {
	svc := NewTimetableJobService(generatorStub{}, &queueStub{}, 1, time.Hour, nil)

	_, err := svc.Submit(context.Background(), dto.GenerateTimetableRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Status(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestTimetableJobServiceWithoutQueue(t *testing.T) {
	svc := NewTimetableJobService(generatorStub{}, nil, 1, time.Hour, nil)

	_, err := svc.Submit(context.Background(), dto.GenerateTimetableRequest{TermID: "term-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrServiceUnavailable.Code, appErrors.FromError(err).Code)
}

func TestTimetableJobServiceForgetsFinishedJobsAfterRetention(t *testing.T) {
	queue := &queueStub{}
	svc := NewTimetableJobService(generatorStub{resp: &dto.GenerateTimetableResponse{ProposalID: "p-1"}}, queue, 1, time.Minute, nil)
	clock := time.Date(2025, 7, 14, 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }

	done, err := svc.Submit(context.Background(), dto.GenerateTimetableRequest{TermID: "term-1"})
	require.NoError(t, err)
	require.NoError(t, svc.Handle(context.Background(), queue.jobs[0]))

	clock = clock.Add(30 * time.Second)
	pending, err := svc.Submit(context.Background(), dto.GenerateTimetableRequest{TermID: "term-1"})
	require.NoError(t, err)
	_, err = svc.Status(context.Background(), done.ID)
	require.NoError(t, err)

	clock = clock.Add(2 * time.Minute)
	_, err = svc.Status(context.Background(), done.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	status, err := svc.Status(context.Background(), pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SolveJobQueued, status.Status)

	_, err = svc.Submit(context.Background(), dto.GenerateTimetableRequest{TermID: "term-1"})
	require.NoError(t, err)
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	assert.Len(t, svc.items, 2)
}
