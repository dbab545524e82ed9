package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"

	"interview-orchestrator/internal/domain"
	"interview-orchestrator/internal/domain/model"
	"interview-orchestrator/internal/infra/memory"
)

func newUC(t *testing.T) (*interviewUC, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	uc := NewInterviewUseCase(store.Interviews(), store.Jobs(), store, "gpt-4o-mini", "Tell me about yourself.")
	return uc, store
}

func createStarted(t *testing.T, uc *interviewUC) string {
	t.Helper()
	ctx := context.Background()
	iv, err := uc.Create(ctx, "proj-1", "", "Q1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := uc.Start(ctx, iv.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return iv.ID
}

func TestCreateDefaults(t *testing.T) {
	uc, _ := newUC(t)
	ctx := context.Background()

	iv, err := uc.Create(ctx, "proj-1", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if iv.AIModel != "gpt-4o-mini" {
		t.Fatalf("model = %q", iv.AIModel)
	}
	if iv.CurrentQuestion != "Tell me about yourself." {
		t.Fatalf("opening question = %q", iv.CurrentQuestion)
	}
	if iv.State != model.InterviewCreated {
		t.Fatalf("state = %s", iv.State)
	}

	if _, err := uc.Create(ctx, "  ", "", ""); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("empty project err = %v", err)
	}
}

func TestStartRequiresCreated(t *testing.T) {
	uc, _ := newUC(t)
	ctx := context.Background()

	id := createStarted(t, uc)
	if _, err := uc.Start(ctx, id); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("restart err = %v, want ErrInvalidState", err)
	}
	if _, err := uc.Start(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing err = %v, want ErrNotFound", err)
	}
}

func TestSendMessageEnqueuesOneJob(t *testing.T) {
	uc, store := newUC(t)
	ctx := context.Background()
	id := createStarted(t, uc)

	jobID, err := uc.SendMessage(ctx, id, "answer A")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	iv, err := uc.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if iv.State != model.InterviewProcessing || iv.PendingJobID != jobID {
		t.Fatalf("state=%s pending=%q job=%q", iv.State, iv.PendingJobID, jobID)
	}

	job, err := store.Jobs().FindByID(ctx, nil, jobID)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != model.JobStatusPending || job.Input != "answer A" {
		t.Fatalf("job = %+v", job)
	}

	// Second message while processing must fail busy and create no job.
	if _, err := uc.SendMessage(ctx, id, "answer B"); !errors.Is(err, domain.ErrInterviewBusy) {
		t.Fatalf("err = %v, want ErrInterviewBusy", err)
	}
	if n, _ := store.Jobs().CountByStatus(ctx, model.JobStatusPending); n != 1 {
		t.Fatalf("pending jobs = %d, want 1", n)
	}
}

func TestSendMessageValidation(t *testing.T) {
	uc, _ := newUC(t)
	ctx := context.Background()
	id := createStarted(t, uc)

	if _, err := uc.SendMessage(ctx, id, "   "); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("blank content err = %v", err)
	}
	if _, err := uc.SendMessage(ctx, "missing", "hi"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing interview err = %v", err)
	}
}

func TestSendMessageClosedInterview(t *testing.T) {
	uc, _ := newUC(t)
	ctx := context.Background()
	id := createStarted(t, uc)

	if err := uc.Finish(ctx, id); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if _, err := uc.SendMessage(ctx, id, "hello"); !errors.Is(err, domain.ErrInterviewClosed) {
		t.Fatalf("err = %v, want ErrInterviewClosed", err)
	}
	if err := uc.Finish(ctx, id); !errors.Is(err, domain.ErrInterviewClosed) {
		t.Fatalf("double finish err = %v, want ErrInterviewClosed", err)
	}
}

// The defect this machine exists to prevent: concurrent sends must produce
// exactly one job; every loser gets the busy error, never a silent accept.
func TestConcurrentSendsSingleWinner(t *testing.T) {
	uc, store := newUC(t)
	ctx := context.Background()
	id := createStarted(t, uc)

	const senders = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		busy     int
	)
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := uc.SendMessage(ctx, id, "race answer")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, domain.ErrInterviewBusy):
				busy++
			default:
				t.Errorf("unexpected err: %v", err)
			}
		}()
	}
	wg.Wait()

	if accepted != 1 || busy != senders-1 {
		t.Fatalf("accepted=%d busy=%d", accepted, busy)
	}
	pending, _ := store.Jobs().CountByStatus(ctx, model.JobStatusPending)
	running, _ := store.Jobs().CountByStatus(ctx, model.JobStatusRunning)
	if pending+running != 1 {
		t.Fatalf("active jobs = %d, want 1", pending+running)
	}
}

func TestJobStatusView(t *testing.T) {
	uc, store := newUC(t)
	ctx := context.Background()
	id := createStarted(t, uc)

	jobID, err := uc.SendMessage(ctx, id, "answer A")
	if err != nil {
		t.Fatal(err)
	}
	view, err := uc.JobStatus(ctx, jobID)
	if err != nil {
		t.Fatal(err)
	}
	if view.Status != "pending" {
		t.Fatalf("status = %q", view.Status)
	}

	if _, err := store.Jobs().ClaimNext(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Jobs().Complete(ctx, nil, jobID, "Q2"); err != nil {
		t.Fatal(err)
	}
	view, err = uc.JobStatus(ctx, jobID)
	if err != nil {
		t.Fatal(err)
	}
	if view.Status != "completed" || view.Result != "Q2" {
		t.Fatalf("view = %+v", view)
	}

	if _, err := uc.JobStatus(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing job err = %v", err)
	}
}
