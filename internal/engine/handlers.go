package engine

import (
	"threadsync/internal/language"
	"threadsync/internal/ledger"
	"threadsync/internal/logging"
	"threadsync/internal/protocol"
	"threadsync/internal/threads"
)

// handle routes one inbound envelope. Handlers are idempotent with
// respect to re-delivery and tolerant of out-of-order arrival: a
// duplicate completion releases nothing twice, late progress for a
// finished item is dropped by the store.
func (e *Engine) handle(env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeHelloOK:
		e.onHelloOK(env)
	case protocol.TypeError:
		e.onError(env)
	case protocol.TypeTokensUpdated:
		e.onTokensUpdated(env)
	case protocol.TypeThreadSnapshot:
		e.onThreadSnapshot(env)
	case protocol.TypeThreadInvalidated:
		e.onThreadInvalidated(env)
	case protocol.TypeRunCreated:
		e.onRunCreated(env)
	case protocol.TypeChatItemsCreated:
		e.onChatItemsCreated(env)
	case protocol.TypeChatItemProgress:
		e.onChatItemProgress(env)
	case protocol.TypeChatItemStream:
		e.onChatItemStream(env)
	case protocol.TypeChatItemSegments:
		e.onChatItemSegments(env)
	case protocol.TypeChatItemUpdated:
		e.onChatItemUpdated(env)
	case protocol.TypeRunCompleted:
		e.onRunResult(env, true)
	case protocol.TypeRunFailed:
		e.onRunResult(env, false)
	}
}

// onHelloOK starts a fresh session: the acknowledged balance is
// authoritative, stale speculative holds and live buffers from the
// previous connection are gone.
func (e *Engine) onHelloOK(env protocol.Envelope) {
	var p protocol.HelloOKPayload
	if err := env.DecodePayload(&p); err != nil {
		e.log.Warn("malformed hello ack", logging.Args(logging.Error(err))...)
		return
	}
	e.ledger.SetBalance(p.Balance)
	e.ledger.ClearAll()
	e.store.ClearLive()
	e.log.Info("session established", logging.Args(logging.Int64("balance", p.Balance))...)
}

func (e *Engine) onError(env protocol.Envelope) {
	var p protocol.ErrorPayload
	if err := env.DecodePayload(&p); err != nil {
		e.log.Warn("malformed error frame", logging.Args(logging.Error(err))...)
		return
	}
	// Upload-scoped errors are consumed by the uploader; everything
	// else is surfaced in the log.
	if p.UploadID != "" {
		return
	}
	e.log.Warn("server reported error",
		logging.Args(
			logging.String("code", p.Code),
			logging.String("message", p.Message),
			logging.String("thread_id", env.ThreadID))...)
}

// onTokensUpdated replaces every speculative hold with the confirmed
// balance: the server-settled number already accounts for whatever the
// holds were guessing at.
func (e *Engine) onTokensUpdated(env protocol.Envelope) {
	var p protocol.TokensUpdatedPayload
	if err := env.DecodePayload(&p); err != nil {
		e.log.Warn("malformed balance update", logging.Args(logging.Error(err))...)
		return
	}
	e.ledger.SetBalance(p.Balance)
	e.ledger.ClearAll()
	e.log.Info("balance updated", logging.Args(logging.Int64("balance", p.Balance))...)
}

func (e *Engine) onThreadSnapshot(env protocol.Envelope) {
	var p protocol.ThreadSnapshotPayload
	if err := env.DecodePayload(&p); err != nil {
		e.log.Warn("malformed thread snapshot", logging.Args(logging.Error(err))...)
		return
	}
	snapshot := p.Thread
	e.store.ApplySnapshot(&snapshot)
	e.persist()
}

func (e *Engine) onThreadInvalidated(env protocol.Envelope) {
	if env.ThreadID == "" {
		return
	}
	e.log.Info("thread invalidated", logging.Args(logging.String("thread_id", env.ThreadID))...)
	e.RequestSnapshot(env.ThreadID)
}

func (e *Engine) onRunCreated(env protocol.Envelope) {
	var p protocol.RunCreatedPayload
	if err := env.DecodePayload(&p); err != nil {
		return
	}
	e.sampler.Reset()
	e.log.Info("run created",
		logging.Args(logging.String("run_id", p.RunID), logging.String("thread_id", env.ThreadID))...)
}

// onChatItemsCreated is the promotion flow: draft entries leave the
// draft, the new chat items merge in, holds move from the temporary
// item key to the permanent chat-item key, and a fresh snapshot is
// requested to cover any event missed in between.
func (e *Engine) onChatItemsCreated(env protocol.Envelope) {
	var p protocol.ChatItemsCreatedPayload
	if err := env.DecodePayload(&p); err != nil {
		e.log.Warn("malformed chat items created", logging.Args(logging.Error(err))...)
		return
	}
	promotions := make([]threads.Promotion, 0, len(p.Items))
	for _, item := range p.Items {
		promotions = append(promotions, threads.Promotion{ItemID: item.ItemID, Item: item.Item})
	}
	applied := e.store.Promote(env.ThreadID, promotions)
	for _, promo := range applied {
		moved := e.ledger.TransferPrefix(
			ledger.ItemKey(env.ThreadID, promo.ItemID),
			ledger.ChatKey(env.ThreadID, promo.Item.ChatItemID),
		)
		e.log.Debug("promoted draft item",
			logging.Args(
				logging.String("item_id", promo.ItemID),
				logging.String("chat_item_id", promo.Item.ChatItemID),
				logging.Int("holds_moved", moved))...)
	}
	if len(applied) > 0 {
		e.RequestSnapshot(env.ThreadID)
		e.persist()
	}
}

func (e *Engine) onChatItemProgress(env protocol.Envelope) {
	var p protocol.ChatItemProgressPayload
	if err := env.DecodePayload(&p); err != nil {
		return
	}
	e.store.ApplyProgress(env.ThreadID, p.ChatItemID, p.Op, p.Lang, p.Percent)
	if e.sampler.ShouldLog(p.Percent, p.Stage) {
		e.log.Info("operation progress",
			logging.Args(
				logging.String("chat_item_id", p.ChatItemID),
				logging.String("op", threads.OpKey(p.Op, p.Lang)),
				logging.Float64("pct", p.Percent))...)
	}
}

func (e *Engine) onChatItemStream(env protocol.Envelope) {
	var p protocol.ChatItemStreamPayload
	if err := env.DecodePayload(&p); err != nil {
		return
	}
	e.store.ApplyStream(env.ThreadID, p.ChatItemID, p.Op, p.Lang, p.Text)
}

func (e *Engine) onChatItemSegments(env protocol.Envelope) {
	var p protocol.ChatItemSegmentsPayload
	if err := env.DecodePayload(&p); err != nil {
		return
	}
	e.store.ApplySegments(env.ThreadID, p.ChatItemID, p.Op, p.Lang, p.Segments)
}

func (e *Engine) onChatItemUpdated(env protocol.Envelope) {
	var p protocol.ChatItemUpdatedPayload
	if err := env.DecodePayload(&p); err != nil {
		e.log.Warn("malformed chat item update", logging.Args(logging.Error(err))...)
		return
	}
	e.store.PatchChatItem(env.ThreadID, p.Item)
	e.persist()
}

// onRunResult settles one operation. The reservation for that exact
// operation is released; releasing an already-released key is a no-op,
// so duplicate completion events cannot double-credit the balance.
func (e *Engine) onRunResult(env protocol.Envelope, completed bool) {
	var p protocol.RunResultPayload
	if err := env.DecodePayload(&p); err != nil {
		e.log.Warn("malformed run result", logging.Args(logging.Error(err))...)
		return
	}

	patch := p.Item
	if patch == nil {
		patch = &threads.ChatItem{ChatItemID: p.ChatItemID}
		status := &threads.OpStatus{State: threads.OpDone, Progress: 100}
		if !completed {
			status = &threads.OpStatus{State: threads.OpFailed, Error: p.Error}
		}
		applyOpStatus(patch, p.Op, p.Lang, status)
	}
	if completed && p.Tokens > 0 {
		applyBilling(patch, p.Op, p.Lang, p.Tokens)
	}
	e.store.PatchChatItem(env.ThreadID, patch)

	e.ledger.Release(reservationKey(env.ThreadID, p.ChatItemID, p.Op, p.Lang))

	if completed {
		e.log.Info("operation completed",
			logging.Args(
				logging.String("chat_item_id", p.ChatItemID),
				logging.String("op", threads.OpKey(p.Op, p.Lang)),
				logging.Int64("tokens", p.Tokens))...)
	} else {
		e.log.Warn("operation failed",
			logging.Args(
				logging.String("chat_item_id", p.ChatItemID),
				logging.String("op", threads.OpKey(p.Op, p.Lang)),
				logging.String("code", p.Code),
				logging.String("error", p.Error))...)
	}
	e.persist()
}

func applyOpStatus(item *threads.ChatItem, op, lang string, status *threads.OpStatus) {
	switch op {
	case OpTranscribe:
		item.Status.Transcribe = status
	case OpSummarize:
		item.Status.Summarize = status
	case OpTranslate:
		item.Status.Translate = &threads.TranslateStatus{
			ByLang: map[string]*threads.OpStatus{language.Normalize(lang): status},
		}
	}
}

func applyBilling(item *threads.ChatItem, op, lang string, tokens int64) {
	switch op {
	case OpTranscribe:
		item.Billing.TranscribeTokens = tokens
	case OpSummarize:
		item.Billing.SummarizeTokens = tokens
	case OpTranslate:
		item.Billing.TranslateTokens = map[string]int64{language.Normalize(lang): tokens}
	}
}
