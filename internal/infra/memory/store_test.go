package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"interview-orchestrator/internal/domain"
	"interview-orchestrator/internal/domain/model"
)

func TestEnqueueRejectsSecondActiveJob(t *testing.T) {
	ctx := context.Background()
	jobs := NewStore().Jobs()

	if err := jobs.Enqueue(ctx, nil, model.NewJob("j-1", "iv-1", "a")); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	err := jobs.Enqueue(ctx, nil, model.NewJob("j-2", "iv-1", "b"))
	if !errors.Is(err, domain.ErrDuplicateActiveJob) {
		t.Fatalf("err = %v, want ErrDuplicateActiveJob", err)
	}
	// A different interview is unaffected.
	if err := jobs.Enqueue(ctx, nil, model.NewJob("j-3", "iv-2", "c")); err != nil {
		t.Fatalf("other interview enqueue: %v", err)
	}
}

func TestClaimNextExactlyOnceUnderRace(t *testing.T) {
	ctx := context.Background()
	jobs := NewStore().Jobs()

	const m = 50
	for i := 0; i < m; i++ {
		job := model.NewJob(fmt.Sprintf("j-%d", i), fmt.Sprintf("iv-%d", i), "in")
		if err := jobs.Enqueue(ctx, nil, job); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}

	const workers = 8
	var mu sync.Mutex
	claimed := make(map[string]int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, err := jobs.ClaimNext(ctx)
				if errors.Is(err, domain.ErrNotFound) {
					return
				}
				if err != nil {
					t.Errorf("claim: %v", err)
					return
				}
				mu.Lock()
				claimed[job.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(claimed) != m {
		t.Fatalf("claimed %d distinct jobs, want %d", len(claimed), m)
	}
	for id, n := range claimed {
		if n != 1 {
			t.Fatalf("job %s claimed %d times", id, n)
		}
	}
}

func TestJobRoundTrip(t *testing.T) {
	ctx := context.Background()
	jobs := NewStore().Jobs()

	if err := jobs.Enqueue(ctx, nil, model.NewJob("j-1", "iv-1", "answer A")); err != nil {
		t.Fatal(err)
	}
	job, err := jobs.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if job.ID != "j-1" || job.Status != model.JobStatusRunning {
		t.Fatalf("claimed %+v", job)
	}
	if _, err := jobs.Complete(ctx, nil, job.ID, "Q2"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	got, err := jobs.FindByID(ctx, nil, "j-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.JobStatusCompleted || got.Result != "Q2" {
		t.Fatalf("got %+v", got)
	}
	if got.CompletedAt.IsZero() {
		t.Fatal("completed_at not set")
	}
}

func TestTerminalTransitionsRejected(t *testing.T) {
	ctx := context.Background()
	jobs := NewStore().Jobs()

	if err := jobs.Enqueue(ctx, nil, model.NewJob("j-1", "iv-1", "a")); err != nil {
		t.Fatal(err)
	}
	// Not running yet.
	if _, err := jobs.Complete(ctx, nil, "j-1", "r"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("complete pending err = %v, want ErrInvalidTransition", err)
	}
	if _, err := jobs.ClaimNext(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := jobs.Fail(ctx, nil, "j-1", "x"); err != nil {
		t.Fatal(err)
	}
	// Terminal jobs are immutable.
	if _, err := jobs.Complete(ctx, nil, "j-1", "r"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("complete failed job err = %v, want ErrInvalidTransition", err)
	}
	if _, err := jobs.Fail(ctx, nil, "unknown", "x"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("fail unknown err = %v, want ErrNotFound", err)
	}
}

func TestRequeueAndTimeoutScan(t *testing.T) {
	ctx := context.Background()
	jobs := NewStore().Jobs()

	if err := jobs.Enqueue(ctx, nil, model.NewJob("j-1", "iv-1", "a")); err != nil {
		t.Fatal(err)
	}
	if _, err := jobs.ClaimNext(ctx); err != nil {
		t.Fatal(err)
	}

	time.Sleep(5 * time.Millisecond)
	stuck, err := jobs.FindTimedOut(ctx, nil, time.Millisecond, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(stuck) != 1 || stuck[0].ID != "j-1" {
		t.Fatalf("stuck = %+v", stuck)
	}

	if err := jobs.Requeue(ctx, nil, "j-1"); err != nil {
		t.Fatalf("requeue: %v", err)
	}
	got, err := jobs.FindByID(ctx, nil, "j-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.JobStatusPending || got.Retries != 1 {
		t.Fatalf("after requeue: %+v", got)
	}

	// Requeued job is claimable again.
	again, err := jobs.ClaimNext(ctx)
	if err != nil || again.ID != "j-1" {
		t.Fatalf("re-claim: %v %+v", err, again)
	}
}

func TestInterviewCopyOnRead(t *testing.T) {
	ctx := context.Background()
	ivs := NewStore().Interviews()

	iv := model.NewInterview("iv-1", "p-1", "m", "Q1")
	if err := ivs.Save(ctx, nil, iv); err != nil {
		t.Fatal(err)
	}
	got, err := ivs.FindByID(ctx, nil, "iv-1")
	if err != nil {
		t.Fatal(err)
	}
	got.State = model.InterviewFailed // mutating the copy must not leak

	again, err := ivs.FindByID(ctx, nil, "iv-1")
	if err != nil {
		t.Fatal(err)
	}
	if again.State != model.InterviewCreated {
		t.Fatalf("stored state mutated to %s", again.State)
	}
}
