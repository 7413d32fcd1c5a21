package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/mattmillen888/bedrock-proxy/pkg/transform"
	"github.com/mattmillen888/bedrock-proxy/pkg/types"
)

// Recorder receives per-stream events. *metrics.Collector implements it.
type Recorder interface {
	StreamChunk()
	StreamInterrupted()
}

// Options configures a stream relay
type Options struct {
	Logger   *slog.Logger
	Recorder Recorder
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

func (o Options) chunk() {
	if o.Recorder != nil {
		o.Recorder.StreamChunk()
	}
}

func (o Options) interrupted() {
	if o.Recorder != nil {
		o.Recorder.StreamInterrupted()
	}
}

// newChunkSampler limits per-chunk debug logs on long streams
func newChunkSampler() *rate.Sometimes {
	return &rate.Sometimes{First: 5, Interval: time.Second}
}

// Stream relays every chunk from src to sse as one data: event, in order and
// as soon as it arrives. It returns the number of chunks relayed.
//
// A clean end of the upstream stream ends the relay with a nil error and no
// extra frame. Upstream exceptions and interruptions are reported to the
// client as an error event and returned. When ctx is done the relay stops
// without writing anything further.
func Stream(ctx context.Context, src ChunkSource, sse *SSEWriter, opts Options) (int, error) {
	logger := opts.logger()
	sampler := newChunkSampler()
	relayed := 0

	for {
		if err := ctx.Err(); err != nil {
			return relayed, err
		}

		chunk, err := src.Next()
		if err != nil {
			if endOfStream(err) {
				logger.DebugContext(ctx, "upstream stream completed", "chunks", relayed)
				return relayed, nil
			}
			return relayed, failStream(ctx, sse, err, opts)
		}

		if err := sse.WriteEvent(chunk); err != nil {
			return relayed, err
		}
		relayed++
		opts.chunk()

		sampler.Do(func() {
			logger.DebugContext(ctx, "relayed chunk", "index", relayed, "bytes", len(chunk))
		})
	}
}

// StreamOpenAI relays src as OpenAI chat completion chunks. Upstream events
// that carry nothing for a chat client are dropped. A stream that produced
// no chunks gets one empty chunk, and every stream ends with data: [DONE].
func StreamOpenAI(ctx context.Context, src ChunkSource, sse *SSEWriter, conv *transform.ChunkConverter, opts Options) (int, error) {
	logger := opts.logger()
	sampler := newChunkSampler()
	received := 0

	for {
		if err := ctx.Err(); err != nil {
			return conv.Emitted(), err
		}

		event, err := src.Next()
		if err != nil {
			if !endOfStream(err) {
				err = failStream(ctx, sse, err, opts)
				_ = sse.WriteDone()
				return conv.Emitted(), err
			}
			break
		}
		received++
		opts.chunk()

		chunk, ok := conv.Convert(event)
		if !ok {
			continue
		}
		if err := sse.WriteJSON(chunk); err != nil {
			return conv.Emitted(), err
		}

		sampler.Do(func() {
			logger.DebugContext(ctx, "relayed chat chunk", "index", conv.Emitted(), "upstream_events", received)
		})
	}

	if conv.Emitted() == 0 {
		if err := sse.WriteJSON(conv.Empty()); err != nil {
			return conv.Emitted(), err
		}
	}
	if err := sse.WriteDone(); err != nil {
		return conv.Emitted(), err
	}

	logger.DebugContext(ctx, "upstream stream completed", "chunks", conv.Emitted(), "upstream_events", received)
	return conv.Emitted(), nil
}

// endOfStream reports whether err is the clean end of an upstream stream. A
// stream cut inside a frame also unwraps to io.EOF but is an interruption.
func endOfStream(err error) bool {
	return errors.Is(err, io.EOF) && !errors.Is(err, types.ErrStreamInterrupted)
}

// failStream reports a failed upstream stream to the client and returns the
// error the caller should surface
func failStream(ctx context.Context, sse *SSEWriter, err error, opts Options) error {
	logger := opts.logger()

	// Client went away; nobody is left to tell
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	var perr *types.ProxyError
	if !errors.As(err, &perr) {
		perr = types.NewStreamInterruptedError(err)
	}

	code, message := perr.Code(), perr.Message
	var exc *StreamException
	if errors.As(perr, &exc) {
		code, message = exc.Type, exc.Message
	}

	if perr.Kind == types.KindStreamInterrupted {
		opts.interrupted()
		logger.WarnContext(ctx, "upstream stream interrupted", "error", err)
	} else {
		logger.WarnContext(ctx, "upstream stream failed", "error", err)
	}

	if werr := sse.WriteError(code, message); werr != nil {
		logger.DebugContext(ctx, "failed to write stream error event", "error", werr)
	}
	return perr
}
