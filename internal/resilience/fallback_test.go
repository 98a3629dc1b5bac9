package resilience

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"
)

// backends builds a group over the given names, in order.
func backends(cfg FallbackConfig, names ...string) *FallbackGroup[string] {
	fg := NewFallbackGroup(names[0], names[0], cfg)
	for _, n := range names[1:] {
		fg.AddFallback(n, n)
	}
	return fg
}

// failing returns a call that fails for the listed backends and records
// every backend it was invoked with.
func failing(down map[string]error, tried *[]string) func(context.Context, string) (string, error) {
	var mu sync.Mutex
	return func(_ context.Context, name string) (string, error) {
		mu.Lock()
		*tried = append(*tried, name)
		mu.Unlock()
		if err, ok := down[name]; ok {
			return "", err
		}
		return "transcript from " + name, nil
	}
}

func TestCall_Order(t *testing.T) {
	errDeepgram := errors.New("deepgram: 503")
	tests := []struct {
		name      string
		down      map[string]error
		want      string
		wantTried []string
	}{
		{
			name:      "primary answers",
			want:      "transcript from whisper",
			wantTried: []string{"whisper"},
		},
		{
			name:      "first fallback answers",
			down:      map[string]error{"whisper": errTest},
			want:      "transcript from deepgram",
			wantTried: []string{"whisper", "deepgram"},
		},
		{
			name:      "last fallback answers",
			down:      map[string]error{"whisper": errTest, "deepgram": errDeepgram},
			want:      "transcript from openai",
			wantTried: []string{"whisper", "deepgram", "openai"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var failed []string
			fg := backends(FallbackConfig{
				OnFailure: func(name string, _ error) { failed = append(failed, name) },
			}, "whisper", "deepgram", "openai")

			var tried []string
			got, err := Call(context.Background(), fg, failing(tt.down, &tried))
			if err != nil {
				t.Fatalf("Call: %v", err)
			}
			if got != tt.want {
				t.Errorf("result = %q, want %q", got, tt.want)
			}
			if !slices.Equal(tried, tt.wantTried) {
				t.Errorf("tried = %v, want %v", tried, tt.wantTried)
			}
			if !slices.Equal(failed, tt.wantTried[:len(tt.wantTried)-1]) {
				t.Errorf("OnFailure saw %v", failed)
			}
		})
	}
}

func TestCall_AllFailed(t *testing.T) {
	errWhisper := errors.New("whisper-server refused connection")
	fg := backends(FallbackConfig{}, "whisper", "deepgram")

	var tried []string
	_, err := Call(context.Background(), fg, failing(map[string]error{"whisper": errWhisper, "deepgram": errTest}, &tried))
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	for _, want := range []error{errWhisper, errTest} {
		if !errors.Is(err, want) {
			t.Errorf("err does not wrap %v", want)
		}
	}
	for _, prefix := range []string{"whisper: ", "deepgram: "} {
		if !strings.Contains(err.Error(), prefix) {
			t.Errorf("err %q lacks %q", err, prefix)
		}
	}
}

func TestCall_SkipsOpenCircuit(t *testing.T) {
	var skipped []error
	fg := backends(FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour},
		OnFailure: func(name string, err error) {
			if name == "whisper" {
				skipped = append(skipped, err)
			}
		},
	}, "whisper", "deepgram")

	var tried []string
	call := failing(map[string]error{"whisper": errTest}, &tried)
	for range 3 {
		if _, err := Call(context.Background(), fg, call); err != nil {
			t.Fatalf("Call: %v", err)
		}
	}

	want := []string{"whisper", "deepgram", "whisper", "deepgram", "deepgram"}
	if !slices.Equal(tried, want) {
		t.Errorf("tried = %v, want %v", tried, want)
	}
	if st, _ := fg.State("whisper"); st != StateOpen {
		t.Errorf("whisper state = %v, want open", st)
	}
	if len(skipped) != 3 || !errors.Is(skipped[2], ErrCircuitOpen) {
		t.Errorf("OnFailure errors for whisper = %v, last should be ErrCircuitOpen", skipped)
	}
}

func TestCall_BreakerPerEntry(t *testing.T) {
	var mu sync.Mutex
	opened := map[string]int{}
	fg := backends(FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{
			MaxFailures:  1,
			ResetTimeout: time.Hour,
			OnStateChange: func(name string, _, to State) {
				mu.Lock()
				defer mu.Unlock()
				if to == StateOpen {
					opened[name]++
				}
			},
		},
	}, "whisper", "deepgram", "openai")

	var tried []string
	_, _ = Call(context.Background(), fg, failing(map[string]error{"whisper": errTest, "deepgram": errTest}, &tried))

	if opened["whisper"] != 1 || opened["deepgram"] != 1 || opened["openai"] != 0 {
		t.Errorf("opened = %v, want whisper and deepgram once each", opened)
	}
	if st, _ := fg.State("openai"); st != StateClosed {
		t.Errorf("openai state = %v, want closed", st)
	}
}

func TestCall_ContextDone(t *testing.T) {
	t.Run("canceled during attempt", func(t *testing.T) {
		fg := backends(FallbackConfig{}, "whisper", "deepgram")
		ctx, cancel := context.WithCancel(context.Background())
		var tried []string
		_, err := Call(ctx, fg, func(ctx context.Context, name string) (string, error) {
			tried = append(tried, name)
			cancel()
			return "", fmt.Errorf("upload: %w", ctx.Err())
		})
		if !errors.Is(err, context.Canceled) || errors.Is(err, ErrAllFailed) {
			t.Fatalf("err = %v, want bare context.Canceled", err)
		}
		if len(tried) != 1 {
			t.Errorf("tried = %v, want only whisper", tried)
		}
		if st, _ := fg.State("whisper"); st != StateClosed {
			t.Errorf("whisper state = %v; cancellation must not count", st)
		}
	})

	t.Run("done before start", func(t *testing.T) {
		fg := backends(FallbackConfig{}, "whisper")
		ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
		defer cancel()
		<-ctx.Done()
		called := false
		err := fg.Execute(ctx, func(context.Context, string) error { called = true; return nil })
		if !errors.Is(err, context.DeadlineExceeded) || called {
			t.Errorf("Execute = %v, called = %v", err, called)
		}
	})
}

func TestFallbackGroup_Lookup(t *testing.T) {
	fg := backends(FallbackConfig{}, "whisper", "deepgram")
	if got := fg.Names(); !slices.Equal(got, []string{"whisper", "deepgram"}) {
		t.Errorf("Names = %v", got)
	}
	if _, ok := fg.State("openai"); ok {
		t.Error("State reported an unknown entry")
	}
}

func TestCall_Concurrent(t *testing.T) {
	fg := NewFallbackGroup(1, "one", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1000},
	})
	fg.AddFallback("two", 2)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Go(func() {
			got, err := Call(context.Background(), fg, func(_ context.Context, v int) (int, error) {
				if v == 1 && i%2 == 0 {
					return 0, errTest
				}
				return v, nil
			})
			want := 1
			if i%2 == 0 {
				want = 2
			}
			if err != nil || got != want {
				t.Errorf("call %d = %d, %v; want %d", i, got, err, want)
			}
		})
	}
	wg.Wait()
}
