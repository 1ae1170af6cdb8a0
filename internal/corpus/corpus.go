// Package corpus holds the read-only CHiME session metadata: which dataset
// each session belongs to and which devices recorded it.
package corpus

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
)

// DefaultPath is the metadata file looked up when none is configured.
const DefaultPath = "chime5.json"

// DefaultDatasets lists every dataset partition of the corpus.
var DefaultDatasets = []string{"train", "dev", "eval"}

// KinectChannels are the channel numbers recorded by every Kinect array.
var KinectChannels = []int{1, 2, 3, 4}

// Session describes one recording session.
type Session struct {
	ID      string   `json:"-"`
	Dataset string   `json:"dataset"`
	PIDs    []string `json:"pids"`    // binaural personal microphones
	Kinects []string `json:"kinects"` // Kinect arrays
}

// Devices returns the personal microphones followed by the Kinects.
func (s Session) Devices() []string {
	devices := make([]string, 0, len(s.PIDs)+len(s.Kinects))
	devices = append(devices, s.PIDs...)
	return append(devices, s.Kinects...)
}

// Corpus is the metadata of every session, keyed by session id.
type Corpus struct {
	sessions map[string]Session
}

// New builds a Corpus from sessions keyed by id.
func New(sessions map[string]Session) *Corpus {
	c := &Corpus{sessions: make(map[string]Session, len(sessions))}
	for id, s := range sessions {
		s.ID = id
		c.sessions[id] = s
	}
	return c
}

// Load reads the corpus metadata file.
func Load(path string) (*Corpus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus metadata: %w", err)
	}
	var sessions map[string]Session
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, fmt.Errorf("failed to decode corpus metadata %s: %w", path, err)
	}
	return New(sessions), nil
}

// Session looks up a session by id.
func (c *Corpus) Session(id string) (Session, bool) {
	s, ok := c.sessions[id]
	return s, ok
}

// SessionIDs returns the sorted ids of the sessions in the given datasets,
// or in every dataset when none are given.
func (c *Corpus) SessionIDs(datasets ...string) []string {
	ids := make([]string, 0, len(c.sessions))
	for id, s := range c.sessions {
		if len(datasets) == 0 || slices.Contains(datasets, s.Dataset) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// IsPersonalMic reports whether device is a binaural personal microphone.
func IsPersonalMic(device string) bool {
	return strings.HasPrefix(device, "P")
}

// IsKinect reports whether device is a Kinect array.
func IsKinect(device string) bool {
	return strings.HasPrefix(device, "U")
}

// FileNames returns the audio file names, without extension, recorded by a
// device during a session: one for a personal microphone, one per channel
// for a Kinect, none for an unknown device type.
func FileNames(session, device string) []string {
	switch {
	case IsPersonalMic(device):
		return []string{session + "_" + device}
	case IsKinect(device):
		names := make([]string, 0, len(KinectChannels))
		for _, ch := range KinectChannels {
			names = append(names, fmt.Sprintf("%s_%s.CH%d", session, device, ch))
		}
		return names
	}
	return nil
}

// AudioPath returns root/dataset/name.wav.
func AudioPath(root, dataset, name string) string {
	return filepath.Join(root, dataset, name+".wav")
}
