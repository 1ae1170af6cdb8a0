// Package sox runs the sox command line tool with dithering disabled so that
// repeated runs over the same input produce identical output.
package sox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrNoOutput is reported when sox exits cleanly but leaves no output file.
var ErrNoOutput = errors.New("sox produced no output")

// Effect is a sox effect name followed by its arguments.
type Effect []string

// Speed changes playback speed (and pitch) by factor.
func Speed(factor float64) Effect {
	return Effect{"speed", strconv.FormatFloat(factor, 'f', -1, 64)}
}

// Pad prepends n samples of silence.
func Pad(n int) Effect {
	return Effect{"pad", samples(n), "0s"}
}

// Trim drops the first n samples.
func Trim(n int) Effect {
	return Effect{"trim", samples(n)}
}

// Window keeps length samples starting at sample start.
func Window(start, length int) Effect {
	return Effect{"trim", samples(start), samples(length)}
}

func samples(n int) string {
	return strconv.Itoa(n) + "s"
}

// Args returns the full sox argument list for converting in to out.
// -D disables dithering and -R selects repeatable mode.
func Args(in, out string, effects ...Effect) []string {
	args := []string{"-D", "-R", in, out}
	for _, e := range effects {
		args = append(args, e...)
	}
	return args
}

// Result describes one sox invocation.
type Result struct {
	Args     []string
	ExitCode int
	Stderr   string
	Elapsed  time.Duration
}

// ExitError is returned when sox fails or does not produce its output file.
type ExitError struct {
	Result Result
	Err    error
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("sox exited with status %d: %v", e.Result.ExitCode, e.Err)
	if stderr := strings.TrimSpace(e.Result.Stderr); stderr != "" {
		msg += ": " + stderr
	}
	return msg
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Runner invokes a sox binary.
type Runner struct {
	bin string
}

// NewRunner returns a Runner for the sox binary in dir, or the sox found on
// PATH when dir is empty.
func NewRunner(dir string) *Runner {
	bin := "sox"
	if dir != "" {
		bin = filepath.Join(dir, "sox")
	}
	return &Runner{bin: bin}
}

// Bin returns the sox executable the runner invokes.
func (r *Runner) Bin() string {
	return r.bin
}

// Run converts in to out through effects. A non-zero exit status or a
// missing or empty output file is returned as an *ExitError.
func (r *Runner) Run(ctx context.Context, in, out string, effects ...Effect) (Result, error) {
	res := Result{Args: Args(in, out, effects...)}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.bin, res.Args...)
	cmd.Stderr = &stderr

	log.Debug().
		Str("bin", r.bin).
		Strs("args", res.Args).
		Msg("Running sox")

	start := time.Now()
	err := cmd.Run()
	res.Elapsed = time.Since(start)
	res.Stderr = stderr.String()
	res.ExitCode = -1
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	if err != nil {
		return res, &ExitError{Result: res, Err: err}
	}

	info, err := os.Stat(out)
	if err != nil {
		return res, &ExitError{Result: res, Err: fmt.Errorf("%w: %v", ErrNoOutput, err)}
	}
	if info.Size() == 0 {
		return res, &ExitError{Result: res, Err: fmt.Errorf("%w: %s is empty", ErrNoOutput, out)}
	}
	return res, nil
}
