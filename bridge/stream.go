package bridge

import (
	"context"

	"github.com/santif/pgbridge/data"
	"github.com/santif/pgbridge/handle"
)

type streamState uint8

const (
	streamOpen streamState = iota
	streamExhausted
	streamClosed
)

// stream is a forward-only pass over a result set.
// At most one row token is live at a time.
type stream struct {
	owner  *connection
	cursor data.Cursor
	cancel context.CancelFunc
	state  streamState
	row    handle.Token
}

// NextRow advances the stream, invalidating the previous row.
// It returns handle.Nil with StatusOK once the rows are exhausted, and keeps doing so.
// A database error while reading is reported once; the stream is exhausted afterwards.
func (b *Bridge) NextRow(st handle.Token) (env Envelope[handle.Token]) {
	defer guard(b, opNextRow, &env)

	tok, err := b.nextRow(st)
	return complete(b, opNextRow, tok, err)
}

func (b *Bridge) nextRow(tok handle.Token) (handle.Token, error) {
	s, err := handle.Unwrap[*stream](b.handles, tok)
	if err != nil {
		return handle.Nil, boundaryError(err, "next row")
	}
	if err := s.owner.lock(); err != nil {
		return handle.Nil, err
	}
	defer s.owner.unlock()
	if s.state == streamClosed {
		return handle.Nil, boundaryError(handle.ErrStaleHandle, "next row")
	}

	b.dropRow(s)
	if s.state != streamOpen {
		return handle.Nil, nil
	}

	if !s.cursor.Next() {
		s.state = streamExhausted
		if err := s.cursor.Err(); err != nil {
			return handle.Nil, newError(StatusExecution, err, "reading rows failed")
		}
		return handle.Nil, nil
	}

	s.row = handle.Wrap(b.handles, &row{
		owner:  s.owner,
		fields: s.cursor.Fields(),
		values: s.cursor.Values(),
	})
	return s.row, nil
}

// dropRow invalidates the stream's current row, if any
func (b *Bridge) dropRow(s *stream) {
	if s.row == handle.Nil {
		return
	}
	// The caller may already have closed it.
	_, _ = handle.Release[*row](b.handles, s.row)
	s.row = handle.Nil
}

// StreamClose closes the cursor and releases the stream together with its current row
func (b *Bridge) StreamClose(st handle.Token) (env Envelope[Void]) {
	defer guard(b, opStreamClose, &env)

	err := b.streamClose(st)
	return complete(b, opStreamClose, Void{}, err)
}

func (b *Bridge) streamClose(st handle.Token) error {
	s, err := handle.Unwrap[*stream](b.handles, st)
	if err != nil {
		return boundaryError(err, "close stream")
	}

	// A closed connection has already closed its streams.
	if err := s.owner.lock(); err != nil {
		return boundaryError(handle.ErrStaleHandle, "close stream")
	}
	defer s.owner.unlock()

	if _, err := handle.Release[*stream](b.handles, st); err != nil {
		return boundaryError(err, "close stream")
	}
	s.owner.untrack(st)
	return b.finishStream(st, s)
}

// finishStream closes a stream that was already removed from the handle table.
// The caller holds the connection lock.
func (b *Bridge) finishStream(tok handle.Token, s *stream) error {
	b.dropRow(s)
	s.state = streamClosed

	err := s.cursor.Close()
	s.cancel()
	if err != nil {
		return newError(StatusExecution, err, "close stream %s", tok)
	}
	return nil
}
