package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/fraudflow-dev/fraudflow/internal/chat"
)

// chanStream is a channel-backed Stream. Producers push chunks with
// send and terminate with finish; consumers drain through Recv.
type chanStream struct {
	ctx       context.Context
	cancel    context.CancelFunc
	chunks    chan *chat.StreamingChunk
	err       error
	errMu     sync.Mutex
	closeOnce sync.Once
}

func newChanStream(ctx context.Context) *chanStream {
	ctx, cancel := context.WithCancel(ctx)
	return &chanStream{
		ctx:    ctx,
		cancel: cancel,
		chunks: make(chan *chat.StreamingChunk, 64),
	}
}

// Recv implements Stream.
func (s *chanStream) Recv() (*chat.StreamingChunk, error) {
	select {
	case <-s.ctx.Done():
		return nil, s.ctx.Err()
	case chunk, ok := <-s.chunks:
		if !ok {
			s.errMu.Lock()
			err := s.err
			s.errMu.Unlock()
			if err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		return chunk, nil
	}
}

// Close implements Stream.
func (s *chanStream) Close() error {
	s.cancel()
	return nil
}

func (s *chanStream) send(chunk *chat.StreamingChunk) bool {
	select {
	case <-s.ctx.Done():
		return false
	case s.chunks <- chunk:
		return true
	}
}

// finish terminates the stream, optionally recording a trailing error.
func (s *chanStream) finish(err error) {
	s.closeOnce.Do(func() {
		if err != nil && !errors.Is(err, io.EOF) {
			s.errMu.Lock()
			s.err = err
			s.errMu.Unlock()
		}
		close(s.chunks)
	})
}

// Collector drains a Stream into a completed Response, assembling tool
// call argument fragments per index. It consumes the stream exactly
// once.
type Collector struct {
	// Forward, when set, receives every chunk as it is drained. This
	// is how the loop tees provider chunks to the caller while still
	// assembling the full reply.
	Forward func(*chat.StreamingChunk)
}

// Collect drains the stream to completion.
func (c *Collector) Collect(stream Stream) (*Response, error) {
	defer func() {
		_ = stream.Close()
	}()

	var content strings.Builder
	var finish string
	type partial struct {
		id   string
		name string
		args strings.Builder
	}
	calls := make(map[int]*partial)

	for {
		chunk, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}

		if c.Forward != nil {
			c.Forward(chunk)
		}

		content.WriteString(chunk.Content)
		for _, delta := range chunk.ToolCalls {
			p, ok := calls[delta.Index]
			if !ok {
				p = &partial{}
				calls[delta.Index] = p
			}
			if delta.CallID != "" {
				p.id = delta.CallID
			}
			if delta.ToolName != "" {
				p.name = delta.ToolName
			}
			p.args.WriteString(delta.ArgumentsFragment)
		}
		if chunk.FinishReason != "" {
			finish = chunk.FinishReason
		}
	}

	indexes := make([]int, 0, len(calls))
	for i := range calls {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	msg := chat.Assistant(content.String())
	for _, i := range indexes {
		p := calls[i]
		id := p.id
		if id == "" {
			id = fmt.Sprintf("call_%d", i)
		}
		msg.ToolCalls = append(msg.ToolCalls, chat.ToolCall{
			ID:        id,
			Name:      p.name,
			Arguments: p.args.String(),
		})
	}

	return &Response{Message: msg, FinishReason: finish}, nil
}
