package protocol

import (
	"threadsync/internal/threads"
)

// HelloPayload opens a session: the credential (empty for guest mode)
// plus the client's last-known stamp per thread so the server can skip
// unchanged snapshots.
type HelloPayload struct {
	Credential string                   `json:"credential,omitempty"`
	Stamps     map[string]threads.Stamp `json:"stamps,omitempty"`
}

// HelloOKPayload acknowledges the handshake.
type HelloOKPayload struct {
	SessionID string `json:"sessionId,omitempty"`
	Balance   int64  `json:"balance"`
}

// ErrorPayload is attached to ERROR frames. UploadID is set when the
// error addresses a specific in-flight upload.
type ErrorPayload struct {
	Code     string         `json:"code"`
	Message  string         `json:"message,omitempty"`
	UploadID string         `json:"uploadId,omitempty"`
	Payload  map[string]any `json:"payload,omitempty"`
}

// TokensUpdatedPayload carries an authoritative balance snapshot.
type TokensUpdatedPayload struct {
	Balance int64 `json:"balance"`
}

// GetMediaURLPayload requests a playable URL for a stored media file.
type GetMediaURLPayload struct {
	ChatItemID string `json:"chatItemId,omitempty"`
	ItemID     string `json:"itemId,omitempty"`
}

// MediaURLPayload answers GET_MEDIA_URL.
type MediaURLPayload struct {
	ChatItemID string `json:"chatItemId,omitempty"`
	ItemID     string `json:"itemId,omitempty"`
	URL        string `json:"url"`
	ExpiresAt  string `json:"expiresAt,omitempty"`
}

// GetThreadSnapshotPayload requests a full thread record. ThreadID
// overrides the envelope binding when set.
type GetThreadSnapshotPayload struct {
	ThreadID string `json:"threadId,omitempty"`
}

// ThreadSnapshotPayload carries a full authoritative thread record.
type ThreadSnapshotPayload struct {
	Thread threads.Thread `json:"thread"`
}

// ThreadInvalidatedPayload tells the client its copy of a thread is
// stale and should be re-fetched.
type ThreadInvalidatedPayload struct {
	Reason string `json:"reason,omitempty"`
}

// StartRunPayload submits the current draft for processing.
type StartRunPayload struct {
	ItemIDs     []string `json:"itemIds"`
	Transcribe  bool     `json:"transcribe"`
	Model       string   `json:"model,omitempty"`
	TranslateTo []string `json:"translateTo,omitempty"`
	Summarize   bool     `json:"summarize"`
}

// RetryPayload re-runs one failed operation on an existing chat item.
// Lang is only set for RETRY_TRANSLATE.
type RetryPayload struct {
	ChatItemID string `json:"chatItemId"`
	Model      string `json:"model,omitempty"`
	Lang       string `json:"lang,omitempty"`
}

// RunCreatedPayload acknowledges START_RUN.
type RunCreatedPayload struct {
	RunID string `json:"runId"`
}

// ChatItemsCreatedPayload announces chat items promoted from draft
// items. Each entry maps the temporary draft item id to its permanent
// chat item record.
type ChatItemsCreatedPayload struct {
	Items []CreatedItem `json:"items"`
}

// CreatedItem is one draft-to-chat-item promotion.
type CreatedItem struct {
	ItemID string            `json:"itemId"`
	Item   *threads.ChatItem `json:"item"`
}

// ChatItemProgressPayload streams progress for one operation. Lang is
// only set for translate.
type ChatItemProgressPayload struct {
	ChatItemID string  `json:"chatItemId"`
	Op         string  `json:"op"`
	Lang       string  `json:"lang,omitempty"`
	Percent    float64 `json:"pct"`
	Stage      string  `json:"stage,omitempty"`
}

// ChatItemStreamPayload streams an incremental text chunk.
type ChatItemStreamPayload struct {
	ChatItemID string `json:"chatItemId"`
	Op         string `json:"op"`
	Lang       string `json:"lang,omitempty"`
	Text       string `json:"text"`
}

// ChatItemSegmentsPayload streams incremental timed segments.
type ChatItemSegmentsPayload struct {
	ChatItemID string            `json:"chatItemId"`
	Op         string            `json:"op"`
	Lang       string            `json:"lang,omitempty"`
	Segments   []threads.Segment `json:"segments"`
}

// ChatItemUpdatedPayload patches one chat item in place.
type ChatItemUpdatedPayload struct {
	Item *threads.ChatItem `json:"item"`
}

// RunResultPayload closes out one operation on one chat item, for both
// RUN_COMPLETED and RUN_FAILED frames.
type RunResultPayload struct {
	ChatItemID string            `json:"chatItemId"`
	Op         string            `json:"op"`
	Lang       string            `json:"lang,omitempty"`
	Item       *threads.ChatItem `json:"item,omitempty"`
	Tokens     int64             `json:"tokens,omitempty"`
	Error      string            `json:"error,omitempty"`
	Code       string            `json:"code,omitempty"`
}

// SaveSegmentsPayload persists user-edited transcript segments.
type SaveSegmentsPayload struct {
	ChatItemID string            `json:"chatItemId"`
	Segments   []threads.Segment `json:"segments"`
}

// SaveTranslationSegmentsPayload persists user-edited translation
// segments for one target language.
type SaveTranslationSegmentsPayload struct {
	ChatItemID string            `json:"chatItemId"`
	Lang       string            `json:"lang"`
	Segments   []threads.Segment `json:"segments"`
}

// UploadBeginPayload opens a chunked upload.
type UploadBeginPayload struct {
	ClientFileID string         `json:"clientFileId"`
	Name         string         `json:"name"`
	Mime         string         `json:"mime"`
	Size         int64          `json:"size"`
	Meta         map[string]any `json:"meta,omitempty"`
}

// UploadAcceptedPayload answers UPLOAD_BEGIN with the server-assigned
// upload id and a per-chunk encoded-size cap.
type UploadAcceptedPayload struct {
	UploadID      string `json:"uploadId"`
	ClientFileID  string `json:"clientFileId,omitempty"`
	MaxChunkBytes int64  `json:"maxChunkBytes"`
}

// UploadChunkPayload carries one base64-encoded slice of the source.
// Seq starts at zero and increases by one per chunk.
type UploadChunkPayload struct {
	UploadID string `json:"uploadId"`
	Seq      int64  `json:"seq"`
	Data     string `json:"data"`
}

// UploadEndPayload closes the chunk stream with an integrity checksum.
type UploadEndPayload struct {
	UploadID string `json:"uploadId"`
	Chunks   int64  `json:"chunks"`
	SHA256   string `json:"sha256"`
}

// UploadProgressPayload reports server-side receive/verify progress.
type UploadProgressPayload struct {
	UploadID      string  `json:"uploadId"`
	Stage         string  `json:"stage,omitempty"`
	Percent       float64 `json:"pct,omitempty"`
	ReceivedBytes int64   `json:"receivedBytes,omitempty"`
}

// UploadCompletePayload finalizes an upload with the resulting draft
// file record and the new draft revision.
type UploadCompletePayload struct {
	UploadID string            `json:"uploadId"`
	File     threads.DraftFile `json:"file"`
	DraftRev int64             `json:"draftRev"`
}

// UploadFailedPayload reports a terminal upload failure.
type UploadFailedPayload struct {
	UploadID string `json:"uploadId"`
	Code     string `json:"code"`
	Message  string `json:"message,omitempty"`
}
