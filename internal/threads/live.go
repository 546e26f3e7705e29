package threads

import "threadsync/internal/language"

// LiveRun buffers streaming run output for one chat item. It is
// rebuilt from push events each session and is never persisted; the
// authoritative copy always arrives later as a snapshot or patch.
type LiveRun struct {
	// Progress, Text, and Segments are keyed by operation ("transcribe",
	// "summarize") or, for translate, by "translate:<lang>".
	Progress map[string]float64   `json:"progress,omitempty"`
	Text     map[string]string    `json:"text,omitempty"`
	Segments map[string][]Segment `json:"segments,omitempty"`
}

func newLiveRun() *LiveRun {
	return &LiveRun{
		Progress: make(map[string]float64),
		Text:     make(map[string]string),
		Segments: make(map[string][]Segment),
	}
}

func (l *LiveRun) clone() *LiveRun {
	if l == nil {
		return nil
	}
	cp := newLiveRun()
	for k, v := range l.Progress {
		cp.Progress[k] = v
	}
	for k, v := range l.Text {
		cp.Text[k] = v
	}
	for k, v := range l.Segments {
		cp.Segments[k] = append([]Segment(nil), v...)
	}
	return cp
}

// OpKey builds the live-buffer key for an operation. Translate is keyed
// per target language; transcribe and summarize are flat.
func OpKey(op, lang string) string {
	if op == "translate" {
		return op + ":" + language.Normalize(lang)
	}
	return op
}
