// Package pipeline walks the sessions and devices of the corpus and applies
// clock-drift and frame-drop corrections to their audio and transcripts.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/chimechallenge/chime6-synchronisation/internal/audio"
	"github.com/chimechallenge/chime6-synchronisation/internal/config"
	"github.com/chimechallenge/chime6-synchronisation/internal/corpus"
	"github.com/chimechallenge/chime6-synchronisation/internal/drift"
	"github.com/chimechallenge/chime6-synchronisation/internal/store"
	"github.com/chimechallenge/chime6-synchronisation/internal/transcript"
)

// ErrIncomplete is returned when some devices or sessions failed. The
// report lists which.
var ErrIncomplete = errors.New("correction incomplete")

const (
	TaskClockDrift  = "clock-drift"
	TaskFrameDrops  = "frame-drops"
	TaskPassThrough = "pass-through"
	TaskTranscript  = "transcript"
)

type Pipeline struct {
	cfg       *config.Config
	corpus    *corpus.Corpus
	corrector *drift.Corrector
	report    *Report
	runID     string
}

// New returns a Pipeline over the sessions of c. resampler renders the
// clock-drift corrections.
func New(cfg *config.Config, c *corpus.Corpus, resampler drift.Resampler) *Pipeline {
	runID := uuid.New().String()
	return &Pipeline{
		cfg:       cfg,
		corpus:    c,
		corrector: drift.NewCorrector(resampler, cfg.TmpDir),
		report:    NewReport(runID),
		runID:     runID,
	}
}

func (p *Pipeline) Report() *Report {
	return p.report
}

// Sessions returns the configured sessions, or every session of the
// configured datasets.
func (p *Pipeline) Sessions() []string {
	if len(p.cfg.Sessions) > 0 {
		return p.cfg.Sessions
	}
	return p.corpus.SessionIDs(p.cfg.Datasets...)
}

// CorrectClockDrift resamples the audio of every personal microphone and
// Kinect in data from inRoot into outRoot.
func (p *Pipeline) CorrectClockDrift(ctx context.Context, data store.ClockDriftData, inRoot, outRoot string) error {
	return p.eachSession(ctx, TaskClockDrift, func(sess corpus.Session) {
		fits, ok := data[sess.ID]
		if !ok {
			p.skip(TaskClockDrift, sess.ID, "", "session missing from clock drift data")
			return
		}
		p.eachDevice(ctx, sess.Devices(), func(device string) {
			fit, ok := fits[device]
			if !ok {
				p.skip(TaskClockDrift, sess.ID, device, "device missing from clock drift data")
				return
			}
			p.eachFile(TaskClockDrift, sess, device, inRoot, outRoot, func(in, out string) error {
				return p.corrector.Correct(ctx, in, out, fit.Fit)
			})
		})
	})
}

// CorrectFrameDrops applies the edit lists of every Kinect in data and links
// the personal microphone recordings, which need no correction, into outRoot.
func (p *Pipeline) CorrectFrameDrops(ctx context.Context, data store.FrameDropData, inRoot, outRoot string) error {
	return p.eachSession(ctx, TaskFrameDrops, func(sess corpus.Session) {
		edits, ok := data[sess.ID]
		if !ok {
			p.skip(TaskFrameDrops, sess.ID, "", "session missing from frame drop data")
			return
		}
		p.eachDevice(ctx, sess.Kinects, func(device string) {
			dev, ok := edits[device]
			if !ok {
				p.skip(TaskFrameDrops, sess.ID, device, "device missing from frame drop data")
				return
			}
			p.eachFile(TaskFrameDrops, sess, device, inRoot, outRoot, func(in, out string) error {
				return applyEditsFile(in, out, dev.Edits)
			})
		})
		for _, device := range sess.PIDs {
			p.eachFile(TaskPassThrough, sess, device, inRoot, outRoot, linkFile)
		}
	})
}

// CorrectTranscripts maps the utterance times of every session onto the
// common timeline using the linear fits of the session's personal
// microphones.
func (p *Pipeline) CorrectTranscripts(ctx context.Context, data store.ClockDriftData, in, out *store.FileStore) error {
	return p.eachSession(ctx, TaskTranscript, func(sess corpus.Session) {
		logger := log.With().Str("run_id", p.runID).Str("session", sess.ID).Logger()

		shifts, err := sessionShifts(sess, data)
		if err != nil {
			var missing *missingFitError
			if errors.As(err, &missing) {
				p.skip(TaskTranscript, sess.ID, missing.device, err.Error())
				return
			}
			p.fail(TaskTranscript, sess.ID, "", "", err)
			return
		}

		tr, err := in.LoadTranscript(sess.Dataset, sess.ID)
		if err != nil {
			p.fail(TaskTranscript, sess.ID, "", in.TranscriptPath(sess.Dataset, sess.ID), err)
			return
		}
		corrected, err := transcript.Remap(tr, shifts, p.cfg.TranscriptFormat)
		if err != nil {
			p.fail(TaskTranscript, sess.ID, "", in.TranscriptPath(sess.Dataset, sess.ID), err)
			return
		}
		path, err := out.SaveTranscript(sess.Dataset, sess.ID, corrected)
		if err != nil {
			p.fail(TaskTranscript, sess.ID, "", out.TranscriptPath(sess.Dataset, sess.ID), err)
			return
		}

		logger.Info().
			Int("utterances", len(corrected)).
			Int("dropped", len(tr)-len(corrected)).
			Msg("Corrected transcript")
		p.report.add(Entry{Task: TaskTranscript, Session: sess.ID, File: path, Status: StatusOK})
	})
}

type missingFitError struct {
	session, device string
}

func (e *missingFitError) Error() string {
	if e.device == "" {
		return fmt.Sprintf("linear fit data missing for session %s", e.session)
	}
	return fmt.Sprintf("linear fit data missing for session %s speaker %s", e.session, e.device)
}

// sessionShifts requires a linear fit for every personal microphone: a
// transcript cannot be partially corrected.
func sessionShifts(sess corpus.Session, data store.ClockDriftData) (map[string]transcript.Shift, error) {
	fits, ok := data[sess.ID]
	if !ok {
		return nil, &missingFitError{session: sess.ID}
	}
	shifts := make(map[string]transcript.Shift, len(sess.PIDs))
	for _, pid := range sess.PIDs {
		fit, ok := fits[pid]
		if !ok {
			return nil, &missingFitError{session: sess.ID, device: pid}
		}
		linear, ok := fit.Fit.(drift.LinearFit)
		if !ok {
			return nil, fmt.Errorf("speaker %s has a %T; transcripts need a linear fit", pid, fit.Fit)
		}
		if err := linear.Validate(); err != nil {
			return nil, fmt.Errorf("speaker %s: %w", pid, err)
		}
		shifts[pid] = transcript.ShiftFromFit(linear)
	}
	return shifts, nil
}

// eachSession runs fn for every selected session known to the corpus and
// reports ErrIncomplete if any file, link or transcript failed meanwhile.
func (p *Pipeline) eachSession(ctx context.Context, task string, fn func(sess corpus.Session)) error {
	failedBefore := p.report.Count(StatusFailed)
	for _, id := range p.Sessions() {
		if err := ctx.Err(); err != nil {
			return err
		}
		sess, ok := p.corpus.Session(id)
		if !ok {
			p.skip(task, id, "", "session not found in corpus metadata")
			continue
		}
		log.Info().
			Str("run_id", p.runID).
			Str("task", task).
			Str("session", id).
			Str("dataset", sess.Dataset).
			Msg("Processing session")
		fn(sess)
	}
	if n := p.report.Count(StatusFailed) - failedBefore; n > 0 {
		return fmt.Errorf("%w: %d failure(s) during %s", ErrIncomplete, n, task)
	}
	return ctx.Err()
}

// eachDevice runs fn for the devices of one session, at most
// cfg.MaxParallel at a time.
func (p *Pipeline) eachDevice(ctx context.Context, devices []string, fn func(device string)) {
	var g errgroup.Group
	g.SetLimit(p.cfg.MaxParallel)
	for _, device := range devices {
		device := device
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			fn(device)
			return nil
		})
	}
	_ = g.Wait()
}

// eachFile runs fn for every audio file of a device, creating the output
// dataset directory first.
func (p *Pipeline) eachFile(task string, sess corpus.Session, device, inRoot, outRoot string, fn func(in, out string) error) {
	names := corpus.FileNames(sess.ID, device)
	if len(names) == 0 {
		p.skip(task, sess.ID, device, "unknown device type")
		return
	}
	if err := os.MkdirAll(filepath.Join(outRoot, sess.Dataset), 0755); err != nil {
		p.fail(task, sess.ID, device, "", fmt.Errorf("failed to create output directory: %w", err))
		return
	}
	for _, name := range names {
		in := corpus.AudioPath(inRoot, sess.Dataset, name)
		out := corpus.AudioPath(outRoot, sess.Dataset, name)
		if err := fn(in, out); err != nil {
			p.fail(task, sess.ID, device, out, err)
			continue
		}
		log.Info().
			Str("run_id", p.runID).
			Str("task", task).
			Str("session", sess.ID).
			Str("device", device).
			Str("file", out).
			Msg("Wrote corrected file")
		p.report.add(Entry{Task: task, Session: sess.ID, Device: device, File: out, Status: StatusOK})
	}
}

func (p *Pipeline) skip(task, session, device, reason string) {
	log.Warn().
		Str("run_id", p.runID).
		Str("task", task).
		Str("session", session).
		Str("device", device).
		Msg(reason)
	p.report.add(Entry{Task: task, Session: session, Device: device, Status: StatusSkipped, Message: reason})
}

func (p *Pipeline) fail(task, session, device, file string, err error) {
	log.Error().
		Err(err).
		Str("run_id", p.runID).
		Str("task", task).
		Str("session", session).
		Str("device", device).
		Str("file", file).
		Msg("Correction failed")
	p.report.add(Entry{Task: task, Session: session, Device: device, File: file, Status: StatusFailed, Message: err.Error()})
}

func applyEditsFile(in, out string, edits []audio.Edit) error {
	x, err := audio.ReadWAV(in)
	if err != nil {
		return err
	}
	y, err := audio.ApplyEdits(x, edits)
	if err != nil {
		return err
	}
	log.Debug().
		Str("file", in).
		Int("edits", len(edits)).
		Float64("in_seconds", x.Duration()).
		Float64("out_seconds", y.Duration()).
		Msg("Applied frame drop edits")
	return audio.WriteWAV(out, y)
}

// linkFile points out at the real path of in, replacing an earlier link so
// that reruns succeed.
func linkFile(in, out string) error {
	src, err := filepath.Abs(in)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", in, err)
	}
	if src, err = filepath.EvalSymlinks(src); err != nil {
		return fmt.Errorf("failed to resolve %s: %w", in, err)
	}
	if info, err := os.Lstat(out); err == nil && info.Mode()&os.ModeSymlink != 0 {
		if err := os.Remove(out); err != nil {
			return fmt.Errorf("failed to replace link %s: %w", out, err)
		}
	}
	if err := os.Symlink(src, out); err != nil {
		return fmt.Errorf("failed to link %s: %w", out, err)
	}
	return nil
}
