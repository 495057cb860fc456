package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/samcharles93/diagwarp/pkg/device"
	"github.com/samcharles93/diagwarp/pkg/dtw"
	"gonum.org/v1/gonum/mat"
)

func TestDistancesCounterAsStatsSink(t *testing.T) {
	t.Parallel()

	m := New()
	dev := device.NewCPU(device.Options{Workers: 2})
	defer func() { _ = dev.Close() }()
	c, err := dtw.NewContext(dev)
	if err != nil {
		t.Fatalf("context: %v", err)
	}

	x := mat.NewDense(4, 1, []float64{0, 1, 2, 3})
	y := mat.NewDense(3, 1, []float64{0, 2, 3})
	start := time.Now()
	res, err := c.Align(context.Background(), x, y, dtw.Options{Stats: m.Distances})
	m.Observe(res, err, time.Since(start))
	if err != nil {
		t.Fatalf("align: %v", err)
	}

	if got := testutil.ToFloat64(m.Distances); got != 12 {
		t.Fatalf("distances: got %v want 12", got)
	}
	if got := testutil.ToFloat64(m.Diagonals); got != 6 {
		t.Fatalf("diagonals: got %v want 6", got)
	}
	if got := testutil.ToFloat64(m.Alignments.WithLabelValues(StatusOK)); got != 1 {
		t.Fatalf("ok alignments: got %v want 1", got)
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		res  *dtw.Result
		err  error
		want string
	}{
		{"ok", &dtw.Result{}, nil, StatusOK},
		{"stopped", &dtw.Result{Stopped: true}, nil, StatusStopped},
		{"canceled", nil, context.Canceled, StatusCanceled},
		{"deadline", nil, context.DeadlineExceeded, StatusCanceled},
		{"error", nil, dtw.ErrInvalidBox, StatusError},
	}
	for _, tc := range tests {
		if got := Status(tc.res, tc.err); got != tc.want {
			t.Errorf("%s: Status = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	t.Parallel()

	m := New()
	m.Observe(&dtw.Result{Stopped: true, Diagonals: 3}, nil, time.Millisecond)
	m.Observe(nil, dtw.ErrAllocation, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)
	for _, want := range []string{
		`diagwarp_alignments_total{status="stopped"} 1`,
		`diagwarp_alignments_total{status="error"} 1`,
		`diagwarp_diagonals_total 3`,
		`diagwarp_alignment_seconds_count 2`,
		`go_goroutines`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in exposition, got:\n%s", want, text)
		}
	}
}
