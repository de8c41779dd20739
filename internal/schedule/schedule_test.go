package schedule

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestTrigger_Validate(t *testing.T) {
	tests := []struct {
		name    string
		trigger Trigger
		wantErr bool
	}{
		{"interval", Trigger{Interval: time.Minute}, false},
		{"cron", Trigger{Cron: "*/5 * * * *"}, false},
		{"watch", Trigger{Watch: "sites.csv"}, false},
		{"none", Trigger{}, true},
		{"two", Trigger{Cron: "* * * * *", Interval: time.Minute}, true},
		{"bad cron", Trigger{Cron: "every tuesday"}, true},
		{"negative", Trigger{Interval: -time.Second}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.trigger.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTrigger_Kind(t *testing.T) {
	if k := (Trigger{Watch: "x"}).Kind(); k != "watch" {
		t.Errorf("kind = %q", k)
	}
	if k := (Trigger{Cron: "x"}).Kind(); k != "cron" {
		t.Errorf("kind = %q", k)
	}
	if k := (Trigger{Interval: time.Second}).Kind(); k != "interval" {
		t.Errorf("kind = %q", k)
	}
}

func TestStart_Interval(t *testing.T) {
	var runs atomic.Int32
	s := New(Trigger{Interval: 20 * time.Millisecond}, func(ctx context.Context) { runs.Add(1) }, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	waitFor(t, 2*time.Second, func() bool { return runs.Load() >= 3 })
	cancel()
	if err := <-done; err != context.Canceled {
		t.Errorf("Start() = %v, want context.Canceled", err)
	}
}

func TestStart_Cron(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for a cron tick")
	}
	var runs atomic.Int32
	s := New(Trigger{Cron: "@every 1s"}, func(ctx context.Context) { runs.Add(1) }, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	waitFor(t, 3*time.Second, func() bool { return runs.Load() >= 1 })
	cancel()
	<-done
}

func TestStart_Watch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sites.csv")
	if err := os.WriteFile(path, []byte("name,prod\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var runs atomic.Int32
	s := New(Trigger{Watch: path}, func(ctx context.Context) { runs.Add(1) }, testLogger())
	s.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)

	// Unrelated files in the same directory are ignored.
	if err := os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	if n := runs.Load(); n != 0 {
		t.Fatalf("runs after unrelated write = %d, want 0", n)
	}

	for i := range 3 {
		if err := os.WriteFile(path, []byte("name,prod\nalpha,https://a"+string(rune('0'+i))+"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	waitFor(t, 2*time.Second, func() bool { return runs.Load() >= 1 })

	cancel()
	<-done
}

func TestStart_InvalidTrigger(t *testing.T) {
	s := New(Trigger{}, func(ctx context.Context) {}, testLogger())
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
