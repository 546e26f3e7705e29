package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Inbound message types.
const (
	TypeHelloOK           = "HELLO_OK"
	TypeError             = "ERROR"
	TypeTokensUpdated     = "TOKENS_UPDATED"
	TypeMediaURL          = "MEDIA_URL"
	TypeThreadSnapshot    = "THREAD_SNAPSHOT"
	TypeThreadInvalidated = "THREAD_INVALIDATED"
	TypeRunCreated        = "RUN_CREATED"
	TypeChatItemsCreated  = "CHAT_ITEMS_CREATED"
	TypeChatItemSegments  = "CHAT_ITEM_SEGMENTS"
	TypeChatItemProgress  = "CHAT_ITEM_PROGRESS"
	TypeChatItemStream    = "CHAT_ITEM_STREAM"
	TypeChatItemUpdated   = "CHAT_ITEM_UPDATED"
	TypeRunCompleted      = "RUN_COMPLETED"
	TypeRunFailed         = "RUN_FAILED"
	TypeUploadAccepted    = "UPLOAD_ACCEPTED"
	TypeUploadProgress    = "UPLOAD_PROGRESS"
	TypeUploadStage       = "UPLOAD_STAGE"
	TypeUploadComplete    = "UPLOAD_COMPLETE"
	TypeUploadFailed      = "UPLOAD_FAILED"
)

// Outbound message types.
const (
	TypeHello                   = "HELLO"
	TypeGetMediaURL             = "GET_MEDIA_URL"
	TypeGetThreadSnapshot       = "GET_THREAD_SNAPSHOT"
	TypeStartRun                = "START_RUN"
	TypeRetryTranscribe         = "RETRY_TRANSCRIBE"
	TypeRetryTranslate          = "RETRY_TRANSLATE"
	TypeRetrySummarize          = "RETRY_SUMMARIZE"
	TypeSaveSegments            = "SAVE_SEGMENTS"
	TypeSaveTranslationSegments = "SAVE_TRANSLATION_SEGMENTS"
	TypeUploadBegin             = "UPLOAD_BEGIN"
	TypeUploadChunk             = "UPLOAD_CHUNK"
	TypeUploadEnd               = "UPLOAD_END"
)

// Envelope is the wire frame for every socket message.
type Envelope struct {
	Type      string          `json:"type"`
	ThreadID  string          `json:"threadId"`
	TS        string          `json:"ts"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
}

// NewEnvelope builds an outbound envelope, marshaling the payload and
// stamping the current time.
func NewEnvelope(msgType, threadID string, payload any, requestID string) (Envelope, error) {
	env := Envelope{
		Type:      msgType,
		ThreadID:  threadID,
		TS:        time.Now().UTC().Format(time.RFC3339Nano),
		RequestID: requestID,
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("marshal %s payload: %w", msgType, err)
		}
		env.Payload = raw
	}
	return env, nil
}

// DecodePayload unmarshals the payload into v.
func (e Envelope) DecodePayload(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}
