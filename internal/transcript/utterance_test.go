package transcript

import (
	"encoding/json"
	"math"
	"reflect"
	"testing"
)

const legacyTranscript = `[
	{
		"speaker": "P05",
		"session_id": "S02",
		"words": "it's the blue one",
		"start_time": {"original": "00:00:01.00", "U01": "00:00:01.10", "P05": "00:00:01.05"},
		"end_time": {"original": "00:00:02.50", "U01": "00:00:02.60", "P05": "00:00:02.55"}
	},
	{
		"session_id": "S02",
		"words": "[redacted]",
		"start_time": "00:00:03.00",
		"end_time": "00:00:04.00"
	}
]`

func TestTranscriptUnmarshal(t *testing.T) {
	var tr Transcript
	if err := json.Unmarshal([]byte(legacyTranscript), &tr); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(tr) != 2 {
		t.Fatalf("len = %d, want 2", len(tr))
	}

	u := tr[0]
	if !u.HasSpeaker || u.Speaker != "P05" {
		t.Errorf("speaker = %q (present %v), want P05", u.Speaker, u.HasSpeaker)
	}
	if !u.StartTime.IsLegacy() || math.Abs(u.StartTime.Devices[OriginalKey]-1.0) > 1e-9 {
		t.Errorf("start_time = %+v, want per-device times with original 1.0", u.StartTime)
	}
	if got := u.EndTime.Devices["U01"]; math.Abs(got-2.6) > 1e-9 {
		t.Errorf("end_time[U01] = %v, want 2.6", got)
	}
	if string(u.Extra["words"]) != `"it's the blue one"` {
		t.Errorf("words = %s, want the original text", u.Extra["words"])
	}

	if tr[1].HasSpeaker {
		t.Error("placeholder utterance reports a speaker")
	}
	if tr[1].StartTime.IsLegacy() || tr[1].StartTime.Value != 3 {
		t.Errorf("placeholder start_time = %+v, want scalar 3", tr[1].StartTime)
	}
}

func TestTranscriptRoundTrip(t *testing.T) {
	var tr Transcript
	if err := json.Unmarshal([]byte(legacyTranscript), &tr); err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(tr)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var again Transcript
	if err := json.Unmarshal(data, &again); err != nil {
		t.Fatalf("Unmarshal(%s) error = %v", data, err)
	}
	if !reflect.DeepEqual(again, tr) {
		t.Errorf("round trip = %+v, want %+v", again, tr)
	}
}

func TestUtteranceNumericTimes(t *testing.T) {
	var u Utterance
	if err := json.Unmarshal([]byte(`{"speaker": "P01", "start_time": 12.5, "end_time": 13}`), &u); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if u.StartTime.Value != 12.5 || u.EndTime.Value != 13 {
		t.Errorf("times = %v, %v, want 12.5, 13", u.StartTime.Value, u.EndTime.Value)
	}
	if u.Extra != nil {
		t.Errorf("Extra = %v, want nil", u.Extra)
	}
}

func TestUtteranceUnmarshalErrors(t *testing.T) {
	for name, data := range map[string]string{
		"missing start":  `{"speaker": "P01", "end_time": "00:00:01.00"}`,
		"missing end":    `{"speaker": "P01", "start_time": "00:00:01.00"}`,
		"bad time":       `{"speaker": "P01", "start_time": "soon", "end_time": "00:00:01.00"}`,
		"bad device":     `{"speaker": "P01", "start_time": {"U01": true}, "end_time": "00:00:01.00"}`,
		"speaker number": `{"speaker": 5, "start_time": "00:00:00.00", "end_time": "00:00:01.00"}`,
		"not an object":  `["P01"]`,
	} {
		t.Run(name, func(t *testing.T) {
			var u Utterance
			if err := json.Unmarshal([]byte(data), &u); err == nil {
				t.Errorf("Unmarshal() = %+v, want error", u)
			}
		})
	}
}

func TestUtteranceKeepsFieldOrder(t *testing.T) {
	in := `{"end_time":{"original":"00:00:02.00","U02":"00:00:02.10","P01":"00:00:02.05"},` +
		`"words":"right","speaker":"P01","start_time":"00:00:01.00","session_id":"S02"}`

	var u Utterance
	if err := json.Unmarshal([]byte(in), &u); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	out, err := json.Marshal(u)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(out) != in {
		t.Errorf("Marshal() = %s\nwant        %s", out, in)
	}

	remapped, err := Remap(Transcript{u}, map[string]Shift{"P01": {Speed: 1, Offset: 1}}, Legacy)
	if err != nil {
		t.Fatal(err)
	}
	out, err = json.Marshal(remapped[0])
	if err != nil {
		t.Fatal(err)
	}
	want := `{"end_time":{"original":"00:00:03.00","U02":"00:00:03.00","P01":"00:00:03.00"},` +
		`"words":"right","speaker":"P01","start_time":"00:00:02.00","session_id":"S02"}`
	if string(out) != want {
		t.Errorf("remapped = %s\nwant       %s", out, want)
	}
}

func TestUtteranceDefaultFieldOrder(t *testing.T) {
	u := Utterance{
		Speaker:    "P01",
		HasSpeaker: true,
		StartTime:  Scalar(1),
		EndTime:    Scalar(2),
		Extra:      map[string]json.RawMessage{"words": json.RawMessage(`"ok"`), "session_id": json.RawMessage(`"S02"`)},
	}
	out, err := json.Marshal(u)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"speaker":"P01","start_time":"00:00:01.00","end_time":"00:00:02.00","session_id":"S02","words":"ok"}`
	if string(out) != want {
		t.Errorf("Marshal() = %s, want %s", out, want)
	}
}
