package threads

import (
	"time"
)

// DefaultThreadID is the sentinel thread that exists purely locally.
// It is never synchronized with the server and never deletable.
const DefaultThreadID = "default"

// OpState is the lifecycle state of one processing operation.
type OpState string

const (
	OpQueued  OpState = "queued"
	OpRunning OpState = "running"
	OpDone    OpState = "done"
	OpFailed  OpState = "failed"
	OpBlocked OpState = "blocked"
)

// Terminal reports whether the state will not change without a new run.
func (s OpState) Terminal() bool {
	return s == OpDone || s == OpFailed || s == OpBlocked
}

// Stage is the local lifecycle of a draft file before it becomes a chat item.
type Stage string

const (
	StageConverting Stage = "converting"
	StageUploading  Stage = "uploading"
	StageLinking    Stage = "linking"
	StageUploaded   Stage = "uploaded"
	StageLinked     Stage = "linked"
)

// Busy reports whether the file is mid-flight and must survive a server
// draft snapshot that does not yet know about it.
func (s Stage) Busy() bool {
	return s == StageConverting || s == StageUploading || s == StageLinking
}

// Ready reports whether the file can be submitted to a run.
func (s Stage) Ready() bool {
	return s == StageUploaded || s == StageLinked
}

// Stamp is the authoritative server version marker for a thread. Two
// stamps are equal only if every field matches exactly; any mismatch
// means the local copy is stale.
type Stamp struct {
	UpdatedAt      string `json:"updatedAt"`
	DraftUpdatedAt string `json:"draftUpdatedAt"`
	Version        int64  `json:"version"`
	DraftRev       int64  `json:"draftRev"`
}

// Equal reports exact equality across all four fields.
func (s Stamp) Equal(other Stamp) bool {
	return s == other
}

// DraftFile is one staged media file attached to a thread's draft.
type DraftFile struct {
	ItemID       string  `json:"itemId"`
	ClientFileID string  `json:"clientFileId,omitempty"`
	SourceType   string  `json:"sourceType"` // upload | url
	Stage        Stage   `json:"stage"`
	Name         string  `json:"name,omitempty"`
	Size         int64   `json:"size,omitempty"`
	Mime         string  `json:"mime,omitempty"`
	DurationSec  float64 `json:"durationSec,omitempty"`
	URL          string  `json:"url,omitempty"`
}

// Draft is the staged, not-yet-submitted set of media files.
type Draft struct {
	Files     []DraftFile `json:"files"`
	UpdatedAt time.Time   `json:"updatedAt,omitzero"`
}

// Media describes the submitted media behind a chat item.
type Media struct {
	Name        string  `json:"name,omitempty"`
	Mime        string  `json:"mime,omitempty"`
	Size        int64   `json:"size,omitempty"`
	DurationSec float64 `json:"durationSec,omitempty"`
	URL         string  `json:"url,omitempty"`
}

// OpStatus is the status of one operation on one chat item.
type OpStatus struct {
	State    OpState `json:"state"`
	Progress float64 `json:"progress,omitempty"`
	Model    string  `json:"model,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// TranslateStatus tracks translation independently per target language.
// Keys are normalized language codes.
type TranslateStatus struct {
	ByLang map[string]*OpStatus `json:"byLang,omitempty"`
}

// ItemStatus groups per-operation status for a chat item.
type ItemStatus struct {
	Transcribe *OpStatus        `json:"transcribe,omitempty"`
	Translate  *TranslateStatus `json:"translate,omitempty"`
	Summarize  *OpStatus        `json:"summarize,omitempty"`
}

// Transcript holds transcription output.
type Transcript struct {
	Text     string    `json:"text,omitempty"`
	Segments []Segment `json:"segments,omitempty"`
	SRT      string    `json:"srt,omitempty"`
}

// Segment mirrors srt.Segment on the wire.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Translation holds translated output for one target language.
type Translation struct {
	Text     string    `json:"text,omitempty"`
	Segments []Segment `json:"segments,omitempty"`
	SRT      string    `json:"srt,omitempty"`
}

// Results groups all processed outputs for a chat item. Translations is
// keyed by normalized language code.
type Results struct {
	Transcript   *Transcript             `json:"transcript,omitempty"`
	Translations map[string]*Translation `json:"translations,omitempty"`
	Summary      string                  `json:"summary,omitempty"`
}

// Billing records observed token costs for a chat item.
type Billing struct {
	TranscribeTokens int64            `json:"transcribeTokens,omitempty"`
	TranslateTokens  map[string]int64 `json:"translateTokens,omitempty"`
	SummarizeTokens  int64            `json:"summarizeTokens,omitempty"`
}

// ChatItem is one submitted media unit and its processing state.
type ChatItem struct {
	ChatItemID string     `json:"chatItemId"`
	ItemID     string     `json:"itemId,omitempty"`
	Media      Media      `json:"media,omitzero"`
	Status     ItemStatus `json:"status,omitzero"`
	Results    Results    `json:"results,omitzero"`
	Billing    Billing    `json:"billing,omitzero"`
	CreatedAt  time.Time  `json:"createdAt,omitzero"`
	UpdatedAt  time.Time  `json:"updatedAt,omitzero"`
}

// Thread is one unit of work: a draft plus submitted chat items,
// ordered most-recent-first.
type Thread struct {
	ID        string      `json:"id"`
	Title     string      `json:"title,omitempty"`
	CreatedAt time.Time   `json:"createdAt,omitzero"`
	UpdatedAt time.Time   `json:"updatedAt,omitzero"`
	Draft     Draft       `json:"draft,omitzero"`
	ChatItems []*ChatItem `json:"chatItems,omitempty"`
	Server    Stamp       `json:"server,omitzero"`
	Deleted   bool        `json:"deleted,omitempty"`
}

// Local reports whether the thread is the purely local sentinel.
func (t *Thread) Local() bool {
	return t != nil && t.ID == DefaultThreadID
}

// LastActivity returns the timestamp used for thread list ordering.
func (t *Thread) LastActivity() time.Time {
	latest := t.UpdatedAt
	if t.Draft.UpdatedAt.After(latest) {
		latest = t.Draft.UpdatedAt
	}
	if len(t.ChatItems) > 0 && t.ChatItems[0].CreatedAt.After(latest) {
		latest = t.ChatItems[0].CreatedAt
	}
	return latest
}

// IndexRow is one lightweight entry from the server's thread index,
// used for delta sync staleness checks.
type IndexRow struct {
	ID      string `json:"id"`
	Title   string `json:"title,omitempty"`
	Server  Stamp  `json:"server"`
	Deleted bool   `json:"deleted,omitempty"`
}
