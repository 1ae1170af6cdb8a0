package corpus

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

const metadata = `{
	"S02": {"dataset": "dev", "pids": ["P05", "P06"], "kinects": ["U01", "U02"]},
	"S03": {"dataset": "train", "pids": ["P09"], "kinects": ["U01"]},
	"S01": {"dataset": "eval", "pids": ["P01"], "kinects": []}
}`

func loadTestCorpus(t *testing.T) *Corpus {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chime5.json")
	if err := os.WriteFile(path, []byte(metadata), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return c
}

func TestLoad(t *testing.T) {
	c := loadTestCorpus(t)

	s, ok := c.Session("S02")
	if !ok {
		t.Fatal("Session(S02) not found")
	}
	if s.ID != "S02" || s.Dataset != "dev" {
		t.Errorf("Session(S02) = %+v", s)
	}
	if want := []string{"P05", "P06", "U01", "U02"}; !reflect.DeepEqual(s.Devices(), want) {
		t.Errorf("Devices() = %v, want %v", s.Devices(), want)
	}
	if _, ok := c.Session("S99"); ok {
		t.Error("Session(S99) found, want missing")
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("Load(missing) error = nil")
	}
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`["S02"]`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(bad); err == nil {
		t.Error("Load(bad) error = nil")
	}
}

func TestSessionIDs(t *testing.T) {
	c := loadTestCorpus(t)
	tests := []struct {
		datasets []string
		want     []string
	}{
		{nil, []string{"S01", "S02", "S03"}},
		{[]string{"dev"}, []string{"S02"}},
		{[]string{"train", "eval"}, []string{"S01", "S03"}},
		{[]string{"test"}, []string{}},
	}
	for _, tt := range tests {
		if got := c.SessionIDs(tt.datasets...); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("SessionIDs(%v) = %v, want %v", tt.datasets, got, tt.want)
		}
	}
}

func TestFileNames(t *testing.T) {
	tests := []struct {
		device string
		want   []string
	}{
		{"P05", []string{"S02_P05"}},
		{"U01", []string{"S02_U01.CH1", "S02_U01.CH2", "S02_U01.CH3", "S02_U01.CH4"}},
		{"X01", nil},
	}
	for _, tt := range tests {
		if got := FileNames("S02", tt.device); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("FileNames(S02, %s) = %v, want %v", tt.device, got, tt.want)
		}
	}
}

func TestAudioPath(t *testing.T) {
	if got, want := AudioPath("audio", "dev", "S02_P05"), filepath.Join("audio", "dev", "S02_P05.wav"); got != want {
		t.Errorf("AudioPath() = %q, want %q", got, want)
	}
}
