package drift

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/chimechallenge/chime6-synchronisation/internal/audio"
	"github.com/chimechallenge/chime6-synchronisation/internal/drift/drifttest"
	"github.com/chimechallenge/chime6-synchronisation/internal/sox"
)

func writeRamp(t *testing.T, path string, n int) audio.Signal {
	t.Helper()
	x := make(audio.Signal, n)
	for i := range x {
		x[i] = int16(i)
	}
	if err := audio.WriteWAV(path, x); err != nil {
		t.Fatal(err)
	}
	return x
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("%s holds %d leftover entries, want none", dir, len(entries))
	}
}

func TestCorrectPiecewise(t *testing.T) {
	dir, tmp := t.TempDir(), t.TempDir()
	in, out := filepath.Join(dir, "in.wav"), filepath.Join(dir, "out.wav")
	x := writeRamp(t, in, 1000)

	r := &drifttest.Resampler{}
	fit := PiecewiseFit{Speed: []float64{1, -0.5, 2}, Padding: []int{0, 100, 200}}
	if err := NewCorrector(r, tmp).Correct(context.Background(), in, out, fit); err != nil {
		t.Fatalf("Correct() error = %v", err)
	}

	got, err := audio.ReadWAV(out)
	if err != nil {
		t.Fatal(err)
	}
	// 100 samples at speed 1, then 600 samples from 400 at speed 2.
	if len(got) != 400 {
		t.Fatalf("len = %d, want 400", len(got))
	}
	if !reflect.DeepEqual(got[:100], x[:100]) {
		t.Errorf("first segment = %v..., want input samples 0..99", got[:5])
	}
	if got[100] != 400 || got[101] != 402 || got[399] != 998 {
		t.Errorf("second segment starts %d, %d and ends %d, want 400, 402, 998", got[100], got[101], got[399])
	}

	calls := r.Calls()
	if len(calls) != 2 {
		t.Fatalf("resampler called %d times, want 2", len(calls))
	}
	for i, name := range []string{"segment_000.wav", "segment_002.wav"} {
		if base := filepath.Base(calls[i].Out); base != name {
			t.Errorf("call %d wrote %s, want %s", i, base, name)
		}
	}
	assertEmptyDir(t, tmp)
}

func TestCorrectSingleSegmentMatchesLinear(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.wav")
	writeRamp(t, in, 1000)
	linearOut, piecewiseOut := filepath.Join(dir, "linear.wav"), filepath.Join(dir, "piecewise.wav")

	r := &drifttest.Resampler{}
	c := NewCorrector(r, t.TempDir())
	ctx := context.Background()
	if err := c.Correct(ctx, in, linearOut, LinearFit{Speed: 1.25, Padding: -10}); err != nil {
		t.Fatalf("Correct(linear) error = %v", err)
	}
	if err := c.Correct(ctx, in, piecewiseOut, PiecewiseFit{Speed: []float64{1.25}, Padding: []int{-10}}); err != nil {
		t.Fatalf("Correct(piecewise) error = %v", err)
	}

	calls := r.Calls()
	if len(calls) != 2 {
		t.Fatalf("resampler called %d times, want 2", len(calls))
	}
	if !reflect.DeepEqual(calls[0].Effects, calls[1].Effects) {
		t.Errorf("piecewise effects %v differ from linear effects %v", calls[1].Effects, calls[0].Effects)
	}
	if calls[1].Out != piecewiseOut {
		t.Errorf("single segment written to %s, want %s", calls[1].Out, piecewiseOut)
	}

	a, err := os.ReadFile(linearOut)
	if err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(piecewiseOut)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("piecewise output differs from linear output")
	}
}

func TestCorrectSegmentFailure(t *testing.T) {
	dir, tmp := t.TempDir(), t.TempDir()
	in, out := filepath.Join(dir, "in.wav"), filepath.Join(dir, "out.wav")
	writeRamp(t, in, 1000)

	r := &drifttest.Resampler{
		Fail: func(call drifttest.Call) error {
			if filepath.Base(call.Out) == "segment_001.wav" {
				return errors.New("sox FAIL speed: rate too high")
			}
			return nil
		},
	}
	fit := PiecewiseFit{Speed: []float64{1, 1.1}, Padding: []int{0, 500}}
	err := NewCorrector(r, tmp).Correct(context.Background(), in, out, fit)

	var exitErr *sox.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("Correct() error = %v, want *sox.ExitError", err)
	}
	if exitErr.Result.ExitCode == 0 {
		t.Error("ExitCode = 0, want failure status")
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("output exists after failure (stat error %v)", err)
	}
	assertEmptyDir(t, tmp)
}

func TestCorrectCancelled(t *testing.T) {
	dir, tmp := t.TempDir(), t.TempDir()
	in := filepath.Join(dir, "in.wav")
	writeRamp(t, in, 1000)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := &drifttest.Resampler{}
	fit := PiecewiseFit{Speed: []float64{1, 1}, Padding: []int{0, 500}}
	if err := NewCorrector(r, tmp).Correct(ctx, in, filepath.Join(dir, "out.wav"), fit); !errors.Is(err, context.Canceled) {
		t.Errorf("Correct() error = %v, want context.Canceled", err)
	}
	if n := len(r.Calls()); n != 0 {
		t.Errorf("resampler called %d times after cancellation", n)
	}
	assertEmptyDir(t, tmp)
}

func TestCorrectMalformed(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.wav")
	writeRamp(t, in, 100)

	tests := []struct {
		name string
		fit  Fit
	}{
		{"nil fit", nil},
		{"zero linear speed", LinearFit{Speed: 0}},
		{"every segment discarded", PiecewiseFit{Speed: []float64{-1}, Padding: []int{0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &drifttest.Resampler{}
			err := NewCorrector(r, t.TempDir()).Correct(context.Background(), in, filepath.Join(dir, "out.wav"), tt.fit)
			if !errors.Is(err, ErrMalformedFit) {
				t.Errorf("Correct() error = %v, want ErrMalformedFit", err)
			}
			if n := len(r.Calls()); n != 0 {
				t.Errorf("resampler called %d times", n)
			}
		})
	}
}
