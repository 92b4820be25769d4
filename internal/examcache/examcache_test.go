package examcache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ianlabicani/lan-exam-web-sub000/internal/model"
)

type countingSource struct {
	calls atomic.Int32
	err   error
}

func (s *countingSource) GetExam(ctx context.Context, id string) (model.Exam, error) {
	s.calls.Add(1)
	if s.err != nil {
		return model.Exam{}, s.err
	}
	return model.Exam{ExamMeta: model.ExamMeta{ID: id, Title: "Science"}}, nil
}

// unreachable returns a client whose every command fails fast.
func unreachable(t *testing.T) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestFallsBackToSourceWhenRedisIsDown(t *testing.T) {
	src := &countingSource{}
	c := New(unreachable(t), src, 0)

	e, err := c.GetExam(context.Background(), "exam-1")
	if err != nil {
		t.Fatalf("GetExam: %v", err)
	}
	if e.Title != "Science" {
		t.Errorf("Title = %q, want Science", e.Title)
	}
	if src.calls.Load() != 1 {
		t.Errorf("source calls = %d, want 1", src.calls.Load())
	}
	if err := c.Invalidate(context.Background(), "exam-1"); err == nil {
		t.Error("Invalidate should report the redis failure")
	}
}

func TestSourceErrorsPassThrough(t *testing.T) {
	src := &countingSource{err: model.ErrNotFound}
	c := New(unreachable(t), src, time.Minute)

	if _, err := c.GetExam(context.Background(), "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestKey(t *testing.T) {
	if got := key("abc"); got != "lanexam:exam:abc" {
		t.Errorf("key = %q", got)
	}
}
