package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"threadsync/internal/cache"
	"threadsync/internal/faults"
	"threadsync/internal/ledger"
	"threadsync/internal/logging"
	"threadsync/internal/protocol"
	"threadsync/internal/threads"
)

const (
	OpTranscribe = "transcribe"
	OpTranslate  = "translate"
	OpSummarize  = "summarize"
)

const mediaURLTimeout = 15 * time.Second

// Socket is the slice of the session client the engine drives.
type Socket interface {
	Send(msgType string, payload any, requestID string) bool
	OnMessage(fn func(protocol.Envelope)) func()
	WaitForReply(ctx context.Context, match func(protocol.Envelope) bool, timeout time.Duration) (protocol.Envelope, error)
	Bind(threadID string)
}

// Backend is the HTTP surface used for delta sync and media fetches.
type Backend interface {
	ThreadIndex(ctx context.Context, since time.Time) ([]threads.IndexRow, error)
	Thread(ctx context.Context, threadID string) (*threads.Thread, error)
	DownloadMedia(ctx context.Context, mediaURL string, w io.Writer) (int64, error)
}

// OwnerScope derives the persistence key from the credential: guests
// share one scope, signed-in users get a scope derived from the
// credential so two accounts on one machine never mix caches.
func OwnerScope(credential string) string {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return "guest"
	}
	sum := sha256.Sum256([]byte(credential))
	return "user:" + hex.EncodeToString(sum[:8])
}

// Options wires the engine's collaborators. Cache and Backend may be
// nil, disabling persistence and HTTP sync respectively.
type Options struct {
	Socket  Socket
	Store   *threads.Store
	Ledger  *ledger.Ledger
	Cache   *cache.Cache
	Backend Backend
	Scope   string
	Logger  *slog.Logger
}

// Engine applies inbound events to local state. All handlers run on
// the session's dispatch goroutine, so each one completes its
// read-modify-write before the next event is seen.
type Engine struct {
	socket  Socket
	store   *threads.Store
	ledger  *ledger.Ledger
	cache   *cache.Cache
	backend Backend
	scope   string
	log     *slog.Logger

	sampler     *logging.ProgressSampler
	unsubscribe func()
}

func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	scope := opts.Scope
	if scope == "" {
		scope = "guest"
	}
	return &Engine{
		socket:  opts.Socket,
		store:   opts.Store,
		ledger:  opts.Ledger,
		cache:   opts.Cache,
		backend: opts.Backend,
		scope:   scope,
		log:     logger.With(logging.String("component", "engine")),
		sampler: logging.NewProgressSampler(10),
	}
}

// Start subscribes the engine to the socket. Restore should usually be
// called first so merges land on the persisted baseline.
func (e *Engine) Start() {
	if e.unsubscribe != nil {
		return
	}
	e.unsubscribe = e.socket.OnMessage(e.handle)
}

// Stop detaches from the socket and persists a final snapshot.
func (e *Engine) Stop() {
	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
	e.persist()
}

// Restore loads the persisted snapshot for this owner scope into the
// store. A missing snapshot leaves the store at its initial state.
func (e *Engine) Restore(ctx context.Context) error {
	if e.cache == nil {
		return nil
	}
	state, err := e.cache.LoadState(ctx, e.scope)
	if err != nil {
		return err
	}
	if len(state.Threads) > 0 || state.ActiveThreadID != "" {
		e.store.Import(state)
	}
	return nil
}

// Bind selects a thread locally and points the socket at it.
func (e *Engine) Bind(threadID string) error {
	if err := e.store.SetActiveThreadID(threadID); err != nil {
		return err
	}
	e.socket.Bind(threadID)
	return nil
}

// RequestSnapshot asks the server for a full authoritative copy of one
// thread.
func (e *Engine) RequestSnapshot(threadID string) bool {
	return e.socket.Send(protocol.TypeGetThreadSnapshot, protocol.GetThreadSnapshotPayload{ThreadID: threadID}, uuid.NewString())
}

// FetchMedia resolves a playable URL for a stored file and caches the
// blob locally, returning the cached path. Cached blobs are reused.
func (e *Engine) FetchMedia(ctx context.Context, threadID, fileID string) (string, error) {
	if e.cache == nil || e.backend == nil {
		return "", faults.Wrap(faults.ErrApplication, "engine", "fetch-media", "media cache not configured", nil)
	}
	if e.cache.HasMedia(threadID, fileID) {
		return e.cache.MediaPath(threadID, fileID), nil
	}

	requestID := uuid.NewString()
	if !e.socket.Send(protocol.TypeGetMediaURL, protocol.GetMediaURLPayload{ChatItemID: fileID}, requestID) {
		return "", faults.Wrap(faults.ErrTransport, "engine", "fetch-media", "socket not open", nil)
	}
	env, err := e.socket.WaitForReply(ctx, func(env protocol.Envelope) bool {
		return env.Type == protocol.TypeMediaURL && env.RequestID == requestID
	}, mediaURLTimeout)
	if err != nil {
		return "", err
	}
	var reply protocol.MediaURLPayload
	if err := env.DecodePayload(&reply); err != nil {
		return "", faults.Wrap(faults.ErrProtocol, "engine", "fetch-media", "malformed media url reply", err)
	}

	pipeR, pipeW := io.Pipe()
	done := make(chan error, 1)
	go func() {
		_, saveErr := e.cache.SaveMedia(threadID, fileID, pipeR)
		// Unblock the download writer if the save side quit early.
		pipeR.CloseWithError(saveErr)
		done <- saveErr
	}()
	if _, err := e.backend.DownloadMedia(ctx, reply.URL, pipeW); err != nil {
		pipeW.CloseWithError(err)
		<-done
		return "", err
	}
	pipeW.Close()
	if err := <-done; err != nil {
		return "", err
	}
	return e.cache.MediaPath(threadID, fileID), nil
}

// persist writes the current store snapshot to the cache. Persistence
// is best effort: a failed save is logged, never fatal to the event
// that triggered it.
func (e *Engine) persist() {
	if e.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.cache.SaveState(ctx, e.scope, e.store.Export()); err != nil {
		e.log.Warn("failed to persist state", logging.Args(logging.String("scope", e.scope), logging.Error(err))...)
	}
}

// reservationKey maps an operation on a chat item to its ledger key.
func reservationKey(threadID, chatItemID, op, lang string) string {
	base := ledger.ChatKey(threadID, chatItemID)
	switch op {
	case OpTranslate:
		return ledger.TranslateKey(base, lang)
	case OpSummarize:
		return ledger.SummarizeKey(base)
	default:
		return base
	}
}
