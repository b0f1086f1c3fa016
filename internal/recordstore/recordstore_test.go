package recordstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cwbudde/algo-restyle/internal/classifier"
	"github.com/cwbudde/algo-restyle/session"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{InMemory: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAppendAndList(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)
	recs := []session.AttemptRecord{
		{SessionID: "b", Attempt: 10, Score: 55},
		{SessionID: "b", Attempt: 2, Score: 70, Prompt: "jazz",
			Generated: classifier.Analysis{Style: "jazz", StyleProb: map[string]float64{"jazz": 0.8}},
			Duration:  1500 * time.Millisecond},
		{SessionID: "a", Attempt: 1, Failed: true, FailedAt: "GENERATE", Error: "oom"},
	}
	for _, r := range recs {
		if err := s.Append(ctx, r); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := s.List(ctx, "b")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 || got[0].Attempt != 2 || got[1].Attempt != 10 {
		t.Fatalf("List = %+v", got)
	}
	if got[0].Generated.StyleProb["jazz"] != 0.8 || got[0].Duration != 1500*time.Millisecond || got[0].Prompt != "jazz" {
		t.Fatalf("record fields lost: %+v", got[0])
	}

	ids, err := s.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("Sessions = %v", ids)
	}
}

func TestGet(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)
	if err := s.Append(ctx, session.AttemptRecord{SessionID: "x", Attempt: 1, Error: "timeout", Failed: true}); err != nil {
		t.Fatal(err)
	}
	rec, err := s.Get(ctx, "x", 1)
	if err != nil || !rec.Failed || rec.Error != "timeout" {
		t.Fatalf("Get = %+v, %v", rec, err)
	}
	if _, err := s.Get(ctx, "x", 2); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestAppendRequiresSession(t *testing.T) {
	if err := openMemory(t).Append(context.Background(), session.AttemptRecord{Attempt: 1}); err == nil {
		t.Fatal("record without session id must be rejected")
	}
	if _, err := Open(Options{}); err == nil {
		t.Fatal("on-disk mode without dir must fail")
	}
}
