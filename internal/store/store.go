package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/chimechallenge/chime6-synchronisation/internal/audio"
	"github.com/chimechallenge/chime6-synchronisation/internal/drift"
	"github.com/chimechallenge/chime6-synchronisation/internal/transcript"
)

// ClockDriftData maps session -> device -> fit.
type ClockDriftData map[string]map[string]drift.DeviceFit

// DeviceEdits is the frame-drop correction of one device.
type DeviceEdits struct {
	Edits []audio.Edit `json:"edits"`
}

// FrameDropData maps session -> device -> edits.
type FrameDropData map[string]map[string]DeviceEdits

// LoadClockDriftData reads a clock-drift correction file.
func LoadClockDriftData(path string) (ClockDriftData, error) {
	var data ClockDriftData
	if err := readJSON(path, &data); err != nil {
		return nil, fmt.Errorf("failed to load clock drift data: %w", err)
	}
	return data, nil
}

// LoadFrameDropData reads a frame-drop edit file.
func LoadFrameDropData(path string) (FrameDropData, error) {
	var data FrameDropData
	if err := readJSON(path, &data); err != nil {
		return nil, fmt.Errorf("failed to load frame drop data: %w", err)
	}
	return data, nil
}

func readJSON(path string, v any) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

// FileStore reads and writes session transcripts laid out as
// <baseDir>/<dataset>/<session>.json.
type FileStore struct {
	baseDir string
}

func NewFileStore(baseDir string) *FileStore {
	return &FileStore{
		baseDir: baseDir,
	}
}

// TranscriptPath returns the location of a session transcript.
func (s *FileStore) TranscriptPath(dataset, session string) string {
	return filepath.Join(s.baseDir, dataset, session+".json")
}

func (s *FileStore) LoadTranscript(dataset, session string) (transcript.Transcript, error) {
	path := s.TranscriptPath(dataset, session)

	var tr transcript.Transcript
	if err := readJSON(path, &tr); err != nil {
		return nil, fmt.Errorf("failed to load transcript: %w", err)
	}
	return tr, nil
}

// SaveTranscript writes tr with four-space indentation and returns its path.
func (s *FileStore) SaveTranscript(dataset, session string, tr transcript.Transcript) (string, error) {
	path := s.TranscriptPath(dataset, session)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create transcript directory: %w", err)
	}

	data, err := json.MarshalIndent(tr, "", "    ")
	if err != nil {
		return "", fmt.Errorf("failed to encode transcript: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return "", fmt.Errorf("failed to write transcript file: %w", err)
	}

	log.Info().
		Str("session", session).
		Str("file", path).
		Int("utterances", len(tr)).
		Msg("Saved transcript")

	return path, nil
}
