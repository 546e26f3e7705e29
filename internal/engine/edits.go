package engine

import (
	"strings"

	"github.com/google/uuid"

	"threadsync/internal/faults"
	"threadsync/internal/language"
	"threadsync/internal/protocol"
	"threadsync/internal/srt"
	"threadsync/internal/threads"
)

// SaveSegments persists user-edited transcript segments for a chat
// item. The local copy is patched optimistically with the rebuilt text
// and SRT rendering; the server confirms with a CHAT_ITEM_UPDATED.
func (e *Engine) SaveSegments(threadID, chatItemID string, segments []threads.Segment) error {
	if _, ok := e.store.ChatItem(threadID, chatItemID); !ok {
		return faults.Wrap(faults.ErrApplication, "engine", "save-segments", "unknown chat item", nil)
	}
	payload := protocol.SaveSegmentsPayload{ChatItemID: chatItemID, Segments: segments}
	if !e.socket.Send(protocol.TypeSaveSegments, payload, uuid.NewString()) {
		return faults.Wrap(faults.ErrTransport, "engine", "save-segments", "socket not open", nil)
	}

	e.store.PatchChatItem(threadID, &threads.ChatItem{
		ChatItemID: chatItemID,
		Results: threads.Results{Transcript: &threads.Transcript{
			Text:     joinSegments(segments),
			Segments: segments,
			SRT:      renderSRT(segments),
		}},
	})
	e.persist()
	return nil
}

// SaveTranslationSegments persists user-edited translation segments
// for one target language.
func (e *Engine) SaveTranslationSegments(threadID, chatItemID, lang string, segments []threads.Segment) error {
	normalized := language.Normalize(lang)
	if normalized == "" {
		return faults.Wrap(faults.ErrApplication, "engine", "save-translation", "no target language", nil)
	}
	if _, ok := e.store.ChatItem(threadID, chatItemID); !ok {
		return faults.Wrap(faults.ErrApplication, "engine", "save-translation", "unknown chat item", nil)
	}
	payload := protocol.SaveTranslationSegmentsPayload{ChatItemID: chatItemID, Lang: normalized, Segments: segments}
	if !e.socket.Send(protocol.TypeSaveTranslationSegments, payload, uuid.NewString()) {
		return faults.Wrap(faults.ErrTransport, "engine", "save-translation", "socket not open", nil)
	}

	e.store.PatchChatItem(threadID, &threads.ChatItem{
		ChatItemID: chatItemID,
		Results: threads.Results{Translations: map[string]*threads.Translation{
			normalized: {
				Text:     joinSegments(segments),
				Segments: segments,
				SRT:      renderSRT(segments),
			},
		}},
	})
	e.persist()
	return nil
}

func joinSegments(segments []threads.Segment) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

func renderSRT(segments []threads.Segment) string {
	cues := make([]srt.Segment, 0, len(segments))
	for _, seg := range segments {
		cues = append(cues, srt.Segment{Start: seg.Start, End: seg.End, Text: seg.Text})
	}
	return srt.Format(cues)
}
