package upload

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"io"
	"log/slog"
	"sync"
	"time"

	"threadsync/internal/faults"
	"threadsync/internal/logging"
	"threadsync/internal/protocol"
	"threadsync/internal/threads"
)

const (
	defaultBeginTimeout    = 15 * time.Second
	defaultCompleteTimeout = 60 * time.Second
	defaultChunkBytes      = 256 * 1024
	defaultBufferedLimit   = 1024 * 1024
	backpressureTimeout    = 30 * time.Second
)

// Session is the slice of the socket client the uploader needs.
type Session interface {
	Send(msgType string, payload any, requestID string) bool
	OnMessage(fn func(protocol.Envelope)) func()
	WaitForBufferedBelow(maxBytes int64, timeout time.Duration) error
}

// FileInfo describes the source being uploaded.
type FileInfo struct {
	ClientFileID string
	Name         string
	Mime         string
	Size         int64
	Meta         map[string]any
}

// Result is the server's finalized record for a completed upload.
type Result struct {
	File     threads.DraftFile
	DraftRev int64
}

// Options tunes timeouts and chunking. Zero values fall back to
// conservative defaults.
type Options struct {
	BeginTimeout       time.Duration
	CompleteTimeout    time.Duration
	MaxChunkBytes      int64
	BufferedLimitBytes int64
	ProgressInterval   time.Duration
	OnProgress         func(Progress)
	Logger             *slog.Logger
}

// Uploader runs the begin/chunk/end sequence for one file at a time.
type Uploader struct {
	session Session
	opts    Options
	log     *slog.Logger
}

func New(session Session, opts Options) *Uploader {
	if opts.BeginTimeout <= 0 {
		opts.BeginTimeout = defaultBeginTimeout
	}
	if opts.CompleteTimeout <= 0 {
		opts.CompleteTimeout = defaultCompleteTimeout
	}
	if opts.MaxChunkBytes <= 0 {
		opts.MaxChunkBytes = defaultChunkBytes
	}
	if opts.BufferedLimitBytes <= 0 {
		opts.BufferedLimitBytes = defaultBufferedLimit
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Uploader{
		session: session,
		opts:    opts,
		log:     logger.With(logging.String("component", "upload")),
	}
}

// tracker routes inbound frames for one upload. Failure frames matched
// by upload id abort immediately even if they arrive while the caller
// is waiting on something else.
type tracker struct {
	clientFileID string

	mu       sync.Mutex
	uploadID string

	accepted chan protocol.UploadAcceptedPayload
	complete chan protocol.UploadCompletePayload
	failed   chan error
}

func newTracker(clientFileID string) *tracker {
	return &tracker{
		clientFileID: clientFileID,
		accepted:     make(chan protocol.UploadAcceptedPayload, 1),
		complete:     make(chan protocol.UploadCompletePayload, 1),
		failed:       make(chan error, 1),
	}
}

func (t *tracker) setUploadID(id string) {
	t.mu.Lock()
	t.uploadID = id
	t.mu.Unlock()
}

func (t *tracker) matches(uploadID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.uploadID == "" {
		// Nothing accepted yet: a bare rejection addresses the begin.
		return uploadID == ""
	}
	return uploadID == t.uploadID
}

func (t *tracker) fail(err error) {
	select {
	case t.failed <- err:
	default:
	}
}

// Upload streams src to the server and blocks until the server
// finalizes or rejects it. The source is read exactly once; any
// failure abandons the chunk sequence wholesale.
func (u *Uploader) Upload(ctx context.Context, src io.Reader, info FileInfo) (*Result, error) {
	trk := newTracker(info.ClientFileID)
	throttle := newProgressThrottle(u.opts.ProgressInterval, u.opts.OnProgress)
	unsubscribe := u.session.OnMessage(func(env protocol.Envelope) {
		u.route(trk, throttle, env)
	})
	defer unsubscribe()

	begin := protocol.UploadBeginPayload{
		ClientFileID: info.ClientFileID,
		Name:         info.Name,
		Mime:         info.Mime,
		Size:         info.Size,
		Meta:         info.Meta,
	}
	if !u.session.Send(protocol.TypeUploadBegin, begin, info.ClientFileID) {
		return nil, faults.Wrap(faults.ErrTransport, "upload", "begin", "socket not open", nil)
	}

	accepted, err := u.waitAccepted(ctx, trk)
	if err != nil {
		return nil, err
	}
	trk.setUploadID(accepted.UploadID)
	u.log.Info("upload accepted",
		logging.Args(
			logging.String("upload_id", accepted.UploadID),
			logging.String("name", info.Name),
			logging.Int64("size", info.Size))...)

	sent, chunks, checksum, err := u.streamChunks(ctx, trk, throttle, src, info, accepted)
	if err != nil {
		return nil, err
	}

	end := protocol.UploadEndPayload{UploadID: accepted.UploadID, Chunks: chunks, SHA256: checksum}
	if !u.session.Send(protocol.TypeUploadEnd, end, "") {
		return nil, faults.Wrap(faults.ErrTransport, "upload", "end", "socket not open", nil)
	}

	result, err := u.waitComplete(ctx, trk)
	if err != nil {
		return nil, err
	}
	throttle.Emit(Progress{Stage: "complete", Pct: 100, SentBytes: sent, ReceivedBytes: sent})
	throttle.Flush()
	u.log.Info("upload complete",
		logging.Args(
			logging.String("upload_id", accepted.UploadID),
			logging.Int64("bytes", sent),
			logging.Int64("draft_rev", result.DraftRev))...)
	return result, nil
}

// route dispatches one inbound frame to the tracker. ERROR and
// UPLOAD_FAILED abort as soon as they match, regardless of what the
// caller is currently waiting for.
func (u *Uploader) route(trk *tracker, throttle *progressThrottle, env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeUploadAccepted:
		var p protocol.UploadAcceptedPayload
		if env.DecodePayload(&p) != nil {
			return
		}
		if p.ClientFileID != "" && p.ClientFileID != trk.clientFileID {
			return
		}
		select {
		case trk.accepted <- p:
		default:
		}
	case protocol.TypeUploadProgress, protocol.TypeUploadStage:
		var p protocol.UploadProgressPayload
		if env.DecodePayload(&p) != nil || !trk.matches(p.UploadID) {
			return
		}
		throttle.Emit(Progress{Stage: p.Stage, Pct: p.Percent, ReceivedBytes: p.ReceivedBytes})
	case protocol.TypeUploadComplete:
		var p protocol.UploadCompletePayload
		if env.DecodePayload(&p) != nil || !trk.matches(p.UploadID) {
			return
		}
		select {
		case trk.complete <- p:
		default:
		}
	case protocol.TypeUploadFailed:
		var p protocol.UploadFailedPayload
		if env.DecodePayload(&p) != nil || !trk.matches(p.UploadID) {
			return
		}
		serverErr := &faults.ServerError{ErrCode: p.Code, Message: p.Message}
		trk.fail(faults.Wrap(faults.ErrResource, "upload", "server", "upload failed", serverErr))
	case protocol.TypeError:
		var p protocol.ErrorPayload
		if env.DecodePayload(&p) != nil || !trk.matches(p.UploadID) {
			return
		}
		serverErr := &faults.ServerError{ErrCode: p.Code, Message: p.Message, Payload: p.Payload}
		trk.fail(faults.Wrap(faults.ErrResource, "upload", "server", "upload rejected", serverErr))
	}
}

func (u *Uploader) waitAccepted(ctx context.Context, trk *tracker) (protocol.UploadAcceptedPayload, error) {
	timer := time.NewTimer(u.opts.BeginTimeout)
	defer timer.Stop()
	select {
	case p := <-trk.accepted:
		return p, nil
	case err := <-trk.failed:
		return protocol.UploadAcceptedPayload{}, err
	case <-timer.C:
		return protocol.UploadAcceptedPayload{}, faults.Wrap(faults.ErrProtocol, "upload", "begin", "acceptance timed out", nil)
	case <-ctx.Done():
		return protocol.UploadAcceptedPayload{}, faults.Wrap(faults.ErrProtocol, "upload", "begin", "cancelled", ctx.Err())
	}
}

// streamChunks reads src once, sending bounded base64 slices with
// increasing sequence numbers and pausing on backpressure. It returns
// the raw bytes sent, the chunk count, and the hex sha256 of the
// source.
func (u *Uploader) streamChunks(ctx context.Context, trk *tracker, throttle *progressThrottle, src io.Reader, info FileInfo, accepted protocol.UploadAcceptedPayload) (int64, int64, string, error) {
	encodedCap := accepted.MaxChunkBytes
	if encodedCap <= 0 {
		encodedCap = u.opts.MaxChunkBytes
	}
	// The cap bounds the encoded payload; base64 inflates 3 raw bytes
	// to 4 characters.
	rawChunk := encodedCap / 4 * 3
	if rawChunk <= 0 {
		rawChunk = defaultChunkBytes / 4 * 3
	}

	hash := sha256.New()
	buf := make([]byte, rawChunk)
	var sent int64
	var seq int64
	for {
		select {
		case err := <-trk.failed:
			return sent, seq, "", err
		case <-ctx.Done():
			return sent, seq, "", faults.Wrap(faults.ErrProtocol, "upload", "chunk", "cancelled", ctx.Err())
		default:
		}

		n, readErr := io.ReadFull(src, buf)
		if n > 0 {
			if err := u.session.WaitForBufferedBelow(u.opts.BufferedLimitBytes, backpressureTimeout); err != nil {
				return sent, seq, "", err
			}
			chunk := protocol.UploadChunkPayload{
				UploadID: accepted.UploadID,
				Seq:      seq,
				Data:     base64.StdEncoding.EncodeToString(buf[:n]),
			}
			if !u.session.Send(protocol.TypeUploadChunk, chunk, "") {
				return sent, seq, "", faults.Wrap(faults.ErrTransport, "upload", "chunk", "send failed mid-stream", nil)
			}
			hash.Write(buf[:n])
			sent += int64(n)
			seq++
			pct := float64(0)
			if info.Size > 0 {
				pct = float64(sent) / float64(info.Size) * 100
			}
			throttle.Emit(Progress{Stage: "sending", Pct: pct, SentBytes: sent})
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			return sent, seq, "", faults.Wrap(faults.ErrApplication, "upload", "read", "reading source", readErr)
		}
	}
	return sent, seq, hex.EncodeToString(hash.Sum(nil)), nil
}

func (u *Uploader) waitComplete(ctx context.Context, trk *tracker) (*Result, error) {
	timer := time.NewTimer(u.opts.CompleteTimeout)
	defer timer.Stop()
	select {
	case p := <-trk.complete:
		return &Result{File: p.File, DraftRev: p.DraftRev}, nil
	case err := <-trk.failed:
		return nil, err
	case <-timer.C:
		return nil, faults.Wrap(faults.ErrProtocol, "upload", "end", "completion timed out", nil)
	case <-ctx.Done():
		return nil, faults.Wrap(faults.ErrProtocol, "upload", "end", "cancelled", ctx.Err())
	}
}
