package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// chunkSamples bounds the []int scratch buffers used by the go-audio codecs.
const chunkSamples = 1 << 16

var pcmFormat = &audio.Format{NumChannels: Channels, SampleRate: SampleRate}

// ReadWAV reads a 16-bit mono WAV file.
func ReadWAV(path string) (Signal, error) {
	f, dec, err := openWAV(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	x := make(Signal, 0, dec.PCMLen()/2)
	err = readChunks(dec, func(data []int) error {
		for _, v := range data {
			x = append(x, int16(v))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return x, nil
}

// WriteWAV writes x as a 16-bit mono WAV file, replacing any existing file
// only once the new one is complete.
func WriteWAV(path string, x Signal) error {
	return writeFile(path, func(enc *wav.Encoder) error {
		buf := &audio.IntBuffer{Format: pcmFormat, SourceBitDepth: BitDepth}
		if len(x) == 0 {
			// The encoder only emits the RIFF header on the first Write.
			if err := enc.Write(buf); err != nil {
				return fmt.Errorf("failed to write header to %s: %w", path, err)
			}
		}
		for start := 0; start < len(x); start += chunkSamples {
			end := min(start+chunkSamples, len(x))
			buf.Data = buf.Data[:0]
			for _, v := range x[start:end] {
				buf.Data = append(buf.Data, int(v))
			}
			if err := enc.Write(buf); err != nil {
				return fmt.Errorf("failed to write samples to %s: %w", path, err)
			}
		}
		return nil
	})
}

// NumSamples returns the number of samples in a 16-bit mono WAV file
// without decoding it.
func NumSamples(path string) (int, error) {
	f, dec, err := openWAV(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return int(dec.PCMLen() / 2), nil
}

// ConcatWAV streams the samples of srcs, in order, into a new WAV file at
// dst and returns the number of samples written. Every source must exist and
// hold at least one sample; on any error dst is left as it was.
func ConcatWAV(dst string, srcs []string) (int, error) {
	total := 0
	err := writeFile(dst, func(enc *wav.Encoder) error {
		for _, src := range srcs {
			n, err := appendWAV(enc, src)
			if err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("failed to concatenate %s: no samples", src)
			}
			total += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// writeFile encodes into a temporary file next to path and renames it over
// path after the encoder has been finalised.
func writeFile(path string, fn func(enc *wav.Encoder) error) (err error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create wav file: %w", err)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()

	enc := wav.NewEncoder(f, SampleRate, BitDepth, Channels, 1)
	if err = fn(enc); err != nil {
		return err
	}
	if err = enc.Close(); err != nil {
		return fmt.Errorf("failed to finalise %s: %w", path, err)
	}
	if err = f.Chmod(0o644); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", path, err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err = os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

func appendWAV(enc *wav.Encoder, src string) (int, error) {
	f, dec, err := openWAV(src)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n := 0
	err = readChunks(dec, func(data []int) error {
		n += len(data)
		return enc.Write(&audio.IntBuffer{Format: pcmFormat, Data: data, SourceBitDepth: BitDepth})
	})
	if err != nil {
		return n, fmt.Errorf("failed to concatenate %s: %w", src, err)
	}
	return n, nil
}

func openWAV(path string) (*os.File, *wav.Decoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open wav file: %w", err)
	}
	dec := wav.NewDecoder(f)
	if err := dec.FwdToPCM(); err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if dec.NumChans != Channels || dec.BitDepth != BitDepth || dec.SampleRate != SampleRate {
		f.Close()
		return nil, nil, fmt.Errorf("%w: %s has %d channel(s), %d bit, %d Hz",
			ErrUnsupportedFormat, path, dec.NumChans, dec.BitDepth, dec.SampleRate)
	}
	return f, dec, nil
}

func readChunks(dec *wav.Decoder, fn func(data []int) error) error {
	buf := &audio.IntBuffer{Format: pcmFormat, Data: make([]int, chunkSamples)}
	for {
		n, err := dec.PCMBuffer(buf)
		if n > 0 {
			if ferr := fn(buf.Data[:n]); ferr != nil {
				return ferr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if n == 0 {
			return nil
		}
	}
}
