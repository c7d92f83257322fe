package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agrisense/crop-advisory-service/internal/models"
)

func TestAnalysisCoalescer_SingleRun(t *testing.T) {
	c := newAnalysisCoalescer(2 * time.Second)
	var runs int32

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := c.GetOrDo(context.Background(), "18.5204,73.8567", func() (models.AnalysisResult, error) {
				atomic.AddInt32(&runs, 1)
				time.Sleep(20 * time.Millisecond)
				return models.AnalysisResult{Region: "Pune"}, nil
			})
			if err != nil {
				t.Errorf("GetOrDo() error = %v", err)
			}
			if result.Region != "Pune" {
				t.Errorf("Region = %q, want Pune", result.Region)
			}
		}()
	}
	wg.Wait()

	if n := atomic.LoadInt32(&runs); n != 1 {
		t.Errorf("fn runs = %d, want 1", n)
	}
}

func TestAnalysisCoalescer_DistinctKeys(t *testing.T) {
	c := newAnalysisCoalescer(2 * time.Second)
	var runs int32

	var wg sync.WaitGroup
	for _, key := range []string{"a", "b"} {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			_, _ = c.GetOrDo(context.Background(), key, func() (models.AnalysisResult, error) {
				atomic.AddInt32(&runs, 1)
				time.Sleep(20 * time.Millisecond)
				return models.AnalysisResult{}, nil
			})
		}(key)
	}
	wg.Wait()

	if n := atomic.LoadInt32(&runs); n != 2 {
		t.Errorf("fn runs = %d, want 2 for distinct keys", n)
	}
}

// Errors propagate to every waiter of the shared run.
func TestAnalysisCoalescer_ErrorShared(t *testing.T) {
	c := newAnalysisCoalescer(2 * time.Second)
	wantErr := errors.New("provider down")

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.GetOrDo(context.Background(), "k", func() (models.AnalysisResult, error) {
				time.Sleep(20 * time.Millisecond)
				return models.AnalysisResult{}, wantErr
			})
			if !errors.Is(err, wantErr) {
				t.Errorf("GetOrDo() error = %v, want shared provider error", err)
			}
		}()
	}
	wg.Wait()
}

// A new run starts once the previous one for the key has finished.
func TestAnalysisCoalescer_KeyReleased(t *testing.T) {
	c := newAnalysisCoalescer(2 * time.Second)
	var runs int32
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := c.GetOrDo(ctx, "k", func() (models.AnalysisResult, error) {
			atomic.AddInt32(&runs, 1)
			return models.AnalysisResult{}, nil
		})
		if err != nil {
			t.Fatalf("GetOrDo() #%d error = %v", i, err)
		}
	}

	if n := atomic.LoadInt32(&runs); n != 2 {
		t.Errorf("fn runs = %d, want 2 for sequential calls", n)
	}
}

// A waiter with an expired context gives up without killing the run.
func TestAnalysisCoalescer_WaiterTimeout(t *testing.T) {
	c := newAnalysisCoalescer(10 * time.Millisecond)
	started := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_, _ = c.GetOrDo(context.Background(), "k", func() (models.AnalysisResult, error) {
			close(started)
			<-release
			return models.AnalysisResult{Region: "done"}, nil
		})
	}()
	<-started

	_, err := c.GetOrDo(context.Background(), "k", func() (models.AnalysisResult, error) {
		t.Error("second fn ran while first was in flight")
		return models.AnalysisResult{}, nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("waiter error = %v, want DeadlineExceeded", err)
	}
	close(release)
}
