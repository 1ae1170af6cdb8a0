package drift

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/chimechallenge/chime6-synchronisation/internal/audio"
	"github.com/chimechallenge/chime6-synchronisation/internal/sox"
)

// Resampler renders in to out through a sox effect chain.
type Resampler interface {
	Run(ctx context.Context, in, out string, effects ...sox.Effect) (sox.Result, error)
}

var _ Resampler = (*sox.Runner)(nil)

// Corrector applies clock-drift fits to WAV files.
type Corrector struct {
	resampler Resampler
	tmpDir    string
}

// NewCorrector returns a Corrector that keeps per-segment files under tmpDir
// (the system temp directory when empty).
func NewCorrector(resampler Resampler, tmpDir string) *Corrector {
	return &Corrector{
		resampler: resampler,
		tmpDir:    tmpDir,
	}
}

// Correct writes the drift-corrected version of the WAV file in to out.
func (c *Corrector) Correct(ctx context.Context, in, out string, fit Fit) error {
	switch f := fit.(type) {
	case LinearFit:
		return c.applyLinear(ctx, in, out, f)
	case PiecewiseFit:
		return c.applyPiecewise(ctx, in, out, f)
	default:
		return fmt.Errorf("%w: unsupported fit %T", ErrMalformedFit, fit)
	}
}

func (c *Corrector) applyLinear(ctx context.Context, in, out string, f LinearFit) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if _, err := c.resampler.Run(ctx, in, out, f.Effects()...); err != nil {
		return fmt.Errorf("failed to resample %s: %w", in, err)
	}
	return nil
}

func (c *Corrector) applyPiecewise(ctx context.Context, in, out string, f PiecewiseFit) error {
	numSamples, err := audio.NumSamples(in)
	if err != nil {
		return err
	}
	plan, err := PlanPiecewise(numSamples, f)
	if err != nil {
		return err
	}
	if len(plan) == 0 {
		return fmt.Errorf("%w: every segment of %s is discarded", ErrMalformedFit, in)
	}

	// A single segment covering the whole input is the linear case.
	if len(plan) == 1 && plan[0].Whole {
		if _, err := c.resampler.Run(ctx, in, out, plan[0].Effects()...); err != nil {
			return fmt.Errorf("failed to resample %s: %w", in, err)
		}
		return nil
	}

	tmpDir := c.tmpDir
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	dir := filepath.Join(tmpDir, "chime-sync-"+uuid.New().String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create segment directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("Failed to remove segment directory")
		}
	}()

	parts := make([]string, 0, len(plan))
	for _, seg := range plan {
		if err := ctx.Err(); err != nil {
			return err
		}
		part := filepath.Join(dir, fmt.Sprintf("segment_%03d.wav", seg.Index))
		if _, err := c.resampler.Run(ctx, in, part, seg.Effects()...); err != nil {
			return fmt.Errorf("failed to resample segment %d of %s: %w", seg.Index, in, err)
		}
		log.Debug().
			Str("file", in).
			Int("segment", seg.Index).
			Int("start", seg.Start).
			Int("length", seg.Length).
			Float64("speed", seg.Speed).
			Msg("Resampled segment")
		parts = append(parts, part)
	}

	n, err := audio.ConcatWAV(out, parts)
	if err != nil {
		return fmt.Errorf("failed to assemble %s: %w", out, err)
	}

	log.Debug().
		Str("file", out).
		Int("segments", len(parts)).
		Int("samples", n).
		Msg("Assembled piecewise correction")
	return nil
}
