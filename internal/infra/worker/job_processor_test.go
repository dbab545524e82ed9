package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"interview-orchestrator/internal/domain"
	"interview-orchestrator/internal/domain/model"
	"interview-orchestrator/internal/domain/ports/adapter"
	"interview-orchestrator/internal/domain/ports/repository"
	"interview-orchestrator/internal/infra/memory"
	"interview-orchestrator/internal/infra/metrics"
	"interview-orchestrator/internal/usecase"
)

// fakeAI returns a scripted reply or error and records what it saw.
type fakeAI struct {
	reply string
	err   error
	seen  []adapter.Message
}

func (f *fakeAI) ListModels(ctx context.Context) ([]string, error) { return []string{"fake"}, nil }

func (f *fakeAI) GetModelInfo(model string) (adapter.ModelInfo, error) {
	return adapter.ModelInfo{Name: model}, nil
}

func (f *fakeAI) Chat(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	f.seen = messages
	return f.reply, f.err
}

type fixture struct {
	store *memory.Store
	uc    usecase.InterviewUseCase
	proc  *JobProcessor
	ai    *fakeAI
}

func newFixture(t *testing.T, ai *fakeAI) *fixture {
	t.Helper()
	store := memory.NewStore()
	uc := usecase.NewInterviewUseCase(store.Interviews(), store.Jobs(), store, "m", "Q1")
	log := zerolog.Nop()
	proc := NewJobProcessor(store.Jobs(), store.Interviews(), store, ai, time.Millisecond, &log)
	return &fixture{store: store, uc: uc, proc: proc, ai: ai}
}

func (f *fixture) startAndSend(t *testing.T, answer string) (interviewID, jobID string) {
	t.Helper()
	ctx := context.Background()
	iv, err := f.uc.Create(ctx, "proj-1", "", "Q1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.uc.Start(ctx, iv.ID); err != nil {
		t.Fatal(err)
	}
	jobID, err = f.uc.SendMessage(ctx, iv.ID, answer)
	if err != nil {
		t.Fatal(err)
	}
	return iv.ID, jobID
}

func TestProcessOneAdvancesInterview(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &fakeAI{reply: "Q2"})
	ivID, jobID := f.startAndSend(t, "answer A")

	f.proc.ProcessOne(ctx)

	job, err := f.store.Jobs().FindByID(ctx, nil, jobID)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != model.JobStatusCompleted || job.Result != "Q2" {
		t.Fatalf("job = %+v", job)
	}

	iv, err := f.store.Interviews().FindByID(ctx, nil, ivID)
	if err != nil {
		t.Fatal(err)
	}
	if iv.State != model.InterviewAwaitingAnswer {
		t.Fatalf("state = %s", iv.State)
	}
	if iv.MessageCount() != 1 {
		t.Fatalf("message count = %d", iv.MessageCount())
	}
	if got := iv.Turns[0]; got.Question != "Q1" || got.Answer != "answer A" {
		t.Fatalf("turn = %+v", got)
	}
	if iv.CurrentQuestion != "Q2" || iv.PendingJobID != "" {
		t.Fatalf("question=%q pending=%q", iv.CurrentQuestion, iv.PendingJobID)
	}

	// The capability saw the open question then the new answer, in order.
	n := len(f.ai.seen)
	if n < 2 || f.ai.seen[n-2].Content != "Q1" || f.ai.seen[n-1].Content != "answer A" {
		t.Fatalf("messages = %+v", f.ai.seen)
	}
}

func TestProcessOneConversationGrows(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &fakeAI{reply: "Q2"})
	ivID, _ := f.startAndSend(t, "answer A")
	f.proc.ProcessOne(ctx)

	f.ai.reply = "Q3"
	if _, err := f.uc.SendMessage(ctx, ivID, "answer B"); err != nil {
		t.Fatal(err)
	}
	f.proc.ProcessOne(ctx)

	iv, err := f.store.Interviews().FindByID(ctx, nil, ivID)
	if err != nil {
		t.Fatal(err)
	}
	if iv.MessageCount() != 2 || iv.CurrentQuestion != "Q3" {
		t.Fatalf("count=%d question=%q", iv.MessageCount(), iv.CurrentQuestion)
	}
	// Second call carried the full history: Q1, A, Q2, B.
	want := []string{"Q1", "answer A", "Q2", "answer B"}
	if len(f.ai.seen) != len(want) {
		t.Fatalf("messages = %+v", f.ai.seen)
	}
	for i, content := range want {
		if f.ai.seen[i].Content != content {
			t.Fatalf("message[%d] = %q, want %q", i, f.ai.seen[i].Content, content)
		}
	}
}

func TestProcessOneFailureFailsTurn(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &fakeAI{err: errors.New("model unavailable")})
	ivID, jobID := f.startAndSend(t, "answer A")

	f.proc.ProcessOne(ctx)

	job, err := f.store.Jobs().FindByID(ctx, nil, jobID)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != model.JobStatusFailed || job.LastError == "" {
		t.Fatalf("job = %+v", job)
	}

	iv, err := f.store.Interviews().FindByID(ctx, nil, ivID)
	if err != nil {
		t.Fatal(err)
	}
	if iv.State != model.InterviewFailed || iv.FailureReason == "" {
		t.Fatalf("state=%s reason=%q", iv.State, iv.FailureReason)
	}
	if iv.MessageCount() != 0 {
		t.Fatalf("failed turn must not count, got %d", iv.MessageCount())
	}
}

func TestProcessOneLateResultDropped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &fakeAI{reply: "Q2"})
	ivID, jobID := f.startAndSend(t, "answer A")

	// Interview terminates while the job is still queued.
	if err := f.uc.Finish(ctx, ivID); err != nil {
		t.Fatal(err)
	}

	f.proc.ProcessOne(ctx)

	// The job still completes for pollers.
	job, err := f.store.Jobs().FindByID(ctx, nil, jobID)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != model.JobStatusCompleted {
		t.Fatalf("job status = %s", job.Status)
	}
	// But the terminated interview is untouched.
	iv, err := f.store.Interviews().FindByID(ctx, nil, ivID)
	if err != nil {
		t.Fatal(err)
	}
	if iv.State != model.InterviewCompleted || iv.MessageCount() != 0 {
		t.Fatalf("state=%s count=%d", iv.State, iv.MessageCount())
	}
}

// brokenTM fails every transaction, simulating a commit that cannot land.
type brokenTM struct{}

func (brokenTM) WithTx(ctx context.Context, _ pgx.TxOptions, _ func(ctx context.Context, tx repository.Tx) error) error {
	return errors.New("tx aborted")
}

func processedTotal(t *testing.T, status string) float64 {
	t.Helper()
	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range mfs {
		if mf.GetName() != "interview_jobs_processed_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "status" && l.GetValue() == status {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

// A finalize that cannot commit leaves the job running; it must not be
// reported as processed.
func TestProcessOneFinalizeErrorNotCounted(t *testing.T) {
	metrics.MustRegister()
	ctx := context.Background()
	f := newFixture(t, &fakeAI{reply: "Q2"})
	_, jobID := f.startAndSend(t, "answer A")

	proc := NewJobProcessor(f.store.Jobs(), f.store.Interviews(), brokenTM{}, f.ai, time.Millisecond, f.proc.log)

	before := processedTotal(t, "completed")
	proc.ProcessOne(ctx)
	after := processedTotal(t, "completed")

	if after != before {
		t.Fatalf("processed counter moved %v -> %v despite finalize failure", before, after)
	}
	job, err := f.store.Jobs().FindByID(ctx, nil, jobID)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != model.JobStatusRunning {
		t.Fatalf("job status = %s, want running for the reaper", job.Status)
	}
}

func TestProcessOneEmptyQueueIsNoop(t *testing.T) {
	f := newFixture(t, &fakeAI{reply: "Q2"})
	f.proc.ProcessOne(context.Background())

	if _, err := f.store.Jobs().ClaimNext(context.Background()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("queue not empty: %v", err)
	}
}

func TestPoolRunsSubmittedTasks(t *testing.T) {
	log := zerolog.Nop()
	pool := NewPool(2, &log)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	done := make(chan struct{})
	if err := pool.Submit(func(ctx context.Context) error {
		close(done)
		return nil
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}
	pool.Stop()
}
