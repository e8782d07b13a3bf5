package audit

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rkm/stac-catalog/internal/metrics"
)

func openLog(t *testing.T, buffer int) *Log {
	t.Helper()
	l, err := Open(context.Background(), filepath.Join(t.TempDir(), "audit.db"), buffer, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func waitFor(t *testing.T, l *Log, n int) []Entry {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		got, err := l.Recent(context.Background(), 100)
		if err != nil {
			t.Fatalf("Recent: %v", err)
		}
		if len(got) >= n || time.Now().After(deadline) {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRecordPersists(t *testing.T) {
	l := openLog(t, 16)
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	l.Record(Entry{Time: at, RequestID: "r1", Method: "GET", Path: "/v1/search", Status: 200, Duration: 15 * time.Millisecond, Identity: "user-1", RemoteAddr: "10.0.0.1"})
	l.Record(Entry{Time: at.Add(time.Second), RequestID: "r2", Method: "GET", Path: "/v1/collections/x", Status: 404})

	got := waitFor(t, l, 2)
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
	if got[0].RequestID != "r2" || got[1].RequestID != "r1" {
		t.Errorf("order = %s, %s; want newest first", got[0].RequestID, got[1].RequestID)
	}
	first := got[1]
	if first.Path != "/v1/search" || first.Status != 200 || first.Identity != "user-1" || first.RemoteAddr != "10.0.0.1" {
		t.Errorf("record = %+v", first)
	}
	if !first.Time.Equal(at) {
		t.Errorf("Time = %v, want %v", first.Time, at)
	}
	if first.Duration != 15*time.Millisecond {
		t.Errorf("Duration = %v", first.Duration)
	}
}

func TestRecordAfterCloseDrops(t *testing.T) {
	l := openLog(t, 1)
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	before := testutil.ToFloat64(metrics.AuditDropped)
	l.Record(Entry{Method: "GET", Path: "/"})
	if got := testutil.ToFloat64(metrics.AuditDropped) - before; got != 1 {
		t.Errorf("dropped delta = %v, want 1", got)
	}
	if err := l.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
