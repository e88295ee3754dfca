package run

import (
	"context"
	stdErrors "errors"
	"testing"

	xerrors "ScriptForge/internal/errors"
)

type failingProducer struct {
	err error
}

func (p *failingProducer) Publish(context.Context, string) error { return p.err }
func (p *failingProducer) Close() error                          { return nil }

func TestServiceSubmitGeneratesID(t *testing.T) {
	store := NewMemoryStore()
	queue := NewMemoryQueue(8)
	service := NewService(store, queue, 3)

	r, err := service.Submit(context.Background(), SubmitRequest{Request: "build a scraper"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if r.ID == "" {
		t.Fatal("expected generated run id")
	}
	if r.Status != StatusPending || r.MaxRetries != 3 {
		t.Fatalf("unexpected run state: %+v", r)
	}

	select {
	case queued := <-queue.ch:
		if queued != r.ID {
			t.Fatalf("queued id mismatch: %s vs %s", queued, r.ID)
		}
	default:
		t.Fatal("run not published to queue")
	}
}

func TestServiceSubmitIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	queue := NewMemoryQueue(8)
	service := NewService(store, queue, 3)

	first, err := service.Submit(context.Background(), SubmitRequest{ID: "fixed", Request: "build"})
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	second, err := service.Submit(context.Background(), SubmitRequest{ID: "fixed", Request: "different text"})
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if second.ID != first.ID || second.Request != "build" {
		t.Fatalf("idempotent submit returned new run: %+v", second)
	}
}

func TestServiceSubmitRejectsBlankRequest(t *testing.T) {
	service := NewService(NewMemoryStore(), NewMemoryQueue(8), 3)
	_, err := service.Submit(context.Background(), SubmitRequest{Request: "   "})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if xerrors.CodeOf(err) != CodeRunValidation {
		t.Fatalf("unexpected error code: %s", xerrors.CodeOf(err))
	}
}

func TestServiceSubmitPublishFailureMarksRun(t *testing.T) {
	store := NewMemoryStore()
	service := NewService(store, &failingProducer{err: stdErrors.New("broker down")}, 3)

	_, err := service.Submit(context.Background(), SubmitRequest{ID: "doomed", Request: "build"})
	if err == nil {
		t.Fatal("expected publish error")
	}
	if xerrors.CodeOf(err) != CodeRunPublish {
		t.Fatalf("unexpected error code: %s", xerrors.CodeOf(err))
	}

	r, getErr := store.Get(context.Background(), "doomed")
	if getErr != nil {
		t.Fatalf("get: %v", getErr)
	}
	if r.Status != StatusFailed || r.ErrorCode != string(CodeRunPublish) {
		t.Fatalf("run not marked failed after publish error: %+v", r)
	}
}
