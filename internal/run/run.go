package run

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"threadsync/internal/faults"
	"threadsync/internal/language"
	"threadsync/internal/ledger"
	"threadsync/internal/logging"
	"threadsync/internal/protocol"
	"threadsync/internal/rates"
	"threadsync/internal/threads"
)

// Socket is the slice of the session client run submission needs.
type Socket interface {
	Send(msgType string, payload any, requestID string) bool
}

// Options selects the operations for a run.
type Options struct {
	Transcribe  bool
	Model       string
	TranslateTo []string
	Summarize   bool
}

func (o Options) empty() bool {
	return !o.Transcribe && !o.Summarize && len(o.TranslateTo) == 0
}

// Starter validates, reserves, and submits runs. Every precondition is
// checked before anything touches the wire, and every reservation made
// for a submission that fails to send is rolled back.
type Starter struct {
	socket Socket
	store  *threads.Store
	ledger *ledger.Ledger
	log    *slog.Logger
}

func New(socket Socket, store *threads.Store, led *ledger.Ledger, logger *slog.Logger) *Starter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Starter{
		socket: socket,
		store:  store,
		ledger: led,
		log:    logger.With(logging.String("component", "run")),
	}
}

// Start submits every ready draft file on the thread for the selected
// operations.
func (s *Starter) Start(threadID string, opts Options) error {
	if threadID == "" {
		return faults.Wrap(faults.ErrApplication, "run", "start", "no thread selected", nil)
	}
	if opts.empty() {
		return faults.Wrap(faults.ErrApplication, "run", "start", "no operations selected", nil)
	}
	thread, ok := s.store.Thread(threadID)
	if !ok {
		return faults.Wrap(faults.ErrApplication, "run", "start", fmt.Sprintf("unknown thread %q", threadID), nil)
	}

	var ready []threads.DraftFile
	for _, f := range thread.Draft.Files {
		if f.Stage.Ready() {
			ready = append(ready, f)
		}
	}
	if len(ready) == 0 {
		return faults.Wrap(faults.ErrApplication, "run", "start", "no ready media in draft", nil)
	}

	langs := language.NormalizeList(opts.TranslateTo)

	var reserved []string
	reserve := func(key string, amount int64) {
		s.ledger.Reserve(key, amount)
		reserved = append(reserved, key)
	}
	itemIDs := make([]string, 0, len(ready))
	for _, f := range ready {
		itemIDs = append(itemIDs, f.ItemID)
		base := ledger.ItemKey(threadID, f.ItemID)
		if opts.Transcribe {
			reserve(base, estimateTranscribe(f, opts.Model))
		}
		textLen := estimateTextLen(f)
		for _, lang := range langs {
			reserve(ledger.TranslateKey(base, lang), rates.Translate(textLen))
		}
		if opts.Summarize {
			reserve(ledger.SummarizeKey(base), rates.Summarize(textLen))
		}
	}

	payload := protocol.StartRunPayload{
		ItemIDs:     itemIDs,
		Transcribe:  opts.Transcribe,
		Model:       opts.Model,
		TranslateTo: langs,
		Summarize:   opts.Summarize,
	}
	if !s.socket.Send(protocol.TypeStartRun, payload, uuid.NewString()) {
		s.rollback(reserved)
		return faults.Wrap(faults.ErrTransport, "run", "start", "socket not open", nil)
	}
	s.log.Info("run submitted",
		logging.Args(
			logging.String("thread_id", threadID),
			logging.Int("items", len(itemIDs)),
			logging.Bool("transcribe", opts.Transcribe),
			logging.Int("translations", len(langs)),
			logging.Bool("summarize", opts.Summarize))...)
	return nil
}

// RetryTranscribe re-runs a failed transcription on a chat item.
func (s *Starter) RetryTranscribe(threadID, chatItemID, model string) error {
	item, err := s.retryTarget(threadID, chatItemID)
	if err != nil {
		return err
	}
	if item.Status.Transcribe == nil || item.Status.Transcribe.State != threads.OpFailed {
		return faults.Wrap(faults.ErrApplication, "run", "retry-transcribe", "transcription has not failed", nil)
	}

	key := ledger.ChatKey(threadID, chatItemID)
	amount := rates.Transcribe(item.Media.DurationSec, model)
	if item.Media.DurationSec <= 0 {
		amount = rates.TranscribeFallback(item.Media.Size, model)
	}
	s.ledger.Reserve(key, amount)

	payload := protocol.RetryPayload{ChatItemID: chatItemID, Model: model}
	if !s.socket.Send(protocol.TypeRetryTranscribe, payload, uuid.NewString()) {
		s.rollback([]string{key})
		return faults.Wrap(faults.ErrTransport, "run", "retry-transcribe", "socket not open", nil)
	}
	return nil
}

// RetryTranslate re-runs a failed translation for one target language.
func (s *Starter) RetryTranslate(threadID, chatItemID, lang string) error {
	item, err := s.retryTarget(threadID, chatItemID)
	if err != nil {
		return err
	}
	normalized := language.Normalize(lang)
	if normalized == "" {
		return faults.Wrap(faults.ErrApplication, "run", "retry-translate", "no target language", nil)
	}
	var status *threads.OpStatus
	if item.Status.Translate != nil {
		status = item.Status.Translate.ByLang[normalized]
	}
	if status == nil || status.State != threads.OpFailed {
		return faults.Wrap(faults.ErrApplication, "run", "retry-translate",
			fmt.Sprintf("translation to %s has not failed", normalized), nil)
	}

	key := ledger.TranslateKey(ledger.ChatKey(threadID, chatItemID), normalized)
	s.ledger.Reserve(key, rates.Translate(transcriptLen(item)))

	payload := protocol.RetryPayload{ChatItemID: chatItemID, Lang: normalized}
	if !s.socket.Send(protocol.TypeRetryTranslate, payload, uuid.NewString()) {
		s.rollback([]string{key})
		return faults.Wrap(faults.ErrTransport, "run", "retry-translate", "socket not open", nil)
	}
	return nil
}

// RetrySummarize re-runs a failed summary on a chat item.
func (s *Starter) RetrySummarize(threadID, chatItemID string) error {
	item, err := s.retryTarget(threadID, chatItemID)
	if err != nil {
		return err
	}
	if item.Status.Summarize == nil || item.Status.Summarize.State != threads.OpFailed {
		return faults.Wrap(faults.ErrApplication, "run", "retry-summarize", "summary has not failed", nil)
	}

	key := ledger.SummarizeKey(ledger.ChatKey(threadID, chatItemID))
	s.ledger.Reserve(key, rates.Summarize(transcriptLen(item)))

	payload := protocol.RetryPayload{ChatItemID: chatItemID}
	if !s.socket.Send(protocol.TypeRetrySummarize, payload, uuid.NewString()) {
		s.rollback([]string{key})
		return faults.Wrap(faults.ErrTransport, "run", "retry-summarize", "socket not open", nil)
	}
	return nil
}

func (s *Starter) retryTarget(threadID, chatItemID string) (*threads.ChatItem, error) {
	if threadID == "" {
		return nil, faults.Wrap(faults.ErrApplication, "run", "retry", "no thread selected", nil)
	}
	item, ok := s.store.ChatItem(threadID, chatItemID)
	if !ok {
		return nil, faults.Wrap(faults.ErrApplication, "run", "retry", fmt.Sprintf("unknown chat item %q", chatItemID), nil)
	}
	return item, nil
}

func (s *Starter) rollback(keys []string) {
	for _, key := range keys {
		s.ledger.Release(key)
	}
}

func estimateTranscribe(f threads.DraftFile, model string) int64 {
	if f.DurationSec > 0 {
		return rates.Transcribe(f.DurationSec, model)
	}
	return rates.TranscribeFallback(f.Size, model)
}

// estimateTextLen guesses the transcript length for text-derived
// operations before any transcript exists. Roughly 15 characters per
// second of speech; size stands in when duration is unknown.
func estimateTextLen(f threads.DraftFile) int {
	if f.DurationSec > 0 {
		return int(f.DurationSec * 15)
	}
	if f.Size > 0 {
		return int(f.Size / 1000)
	}
	return 0
}

func transcriptLen(item *threads.ChatItem) int {
	if item.Results.Transcript == nil {
		return 0
	}
	return len(item.Results.Transcript.Text)
}
