// Package drifttest provides an in-process stand-in for sox so that clock
// drift corrections can be tested without the external tool.
package drifttest

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/chimechallenge/chime6-synchronisation/internal/audio"
	"github.com/chimechallenge/chime6-synchronisation/internal/sox"
)

// Call records one Run invocation.
type Call struct {
	In      string
	Out     string
	Effects []sox.Effect
}

// Resampler interprets the trim, pad and speed effects on 16-bit mono WAV
// files. Speed changes use nearest-sample decimation, which is enough to
// check lengths and ordering.
type Resampler struct {
	// Fail, when set, is consulted before each call; a non-nil error fails
	// the call without writing output.
	Fail func(call Call) error

	mu    sync.Mutex
	calls []Call
}

// Calls returns the invocations seen so far.
func (r *Resampler) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

func (r *Resampler) Run(ctx context.Context, in, out string, effects ...sox.Effect) (sox.Result, error) {
	call := Call{In: in, Out: out, Effects: effects}
	r.mu.Lock()
	r.calls = append(r.calls, call)
	r.mu.Unlock()

	res := sox.Result{Args: sox.Args(in, out, effects...)}
	fail := func(err error) (sox.Result, error) {
		res.ExitCode = 2
		res.Stderr = err.Error()
		return res, &sox.ExitError{Result: res, Err: err}
	}

	if r.Fail != nil {
		if err := r.Fail(call); err != nil {
			return fail(err)
		}
	}
	x, err := audio.ReadWAV(in)
	if err != nil {
		return fail(err)
	}
	for _, e := range effects {
		x, err = apply(x, e)
		if err != nil {
			return fail(err)
		}
	}
	if err := audio.WriteWAV(out, x); err != nil {
		return fail(err)
	}
	return res, nil
}

func apply(x audio.Signal, e sox.Effect) (audio.Signal, error) {
	switch {
	case len(e) == 2 && e[0] == "speed":
		speed, err := strconv.ParseFloat(e[1], 64)
		if err != nil {
			return nil, err
		}
		n := int(math.Round(float64(len(x)) / speed))
		y := make(audio.Signal, n)
		for i := range y {
			y[i] = x[min(int(float64(i)*speed), len(x)-1)]
		}
		return y, nil
	case len(e) == 3 && e[0] == "pad":
		n, err := parseSamples(e[1])
		if err != nil {
			return nil, err
		}
		return append(make(audio.Signal, n), x...), nil
	case len(e) == 2 && e[0] == "trim":
		n, err := parseSamples(e[1])
		if err != nil {
			return nil, err
		}
		return x[min(n, len(x)):], nil
	case len(e) == 3 && e[0] == "trim":
		start, err := parseSamples(e[1])
		if err != nil {
			return nil, err
		}
		length, err := parseSamples(e[2])
		if err != nil {
			return nil, err
		}
		start = min(start, len(x))
		return x[start:min(start+length, len(x))], nil
	}
	return nil, fmt.Errorf("unsupported effect %v", e)
}

func parseSamples(s string) (int, error) {
	if !strings.HasSuffix(s, "s") {
		return 0, fmt.Errorf("expected sample count, got %q", s)
	}
	return strconv.Atoi(strings.TrimSuffix(s, "s"))
}
