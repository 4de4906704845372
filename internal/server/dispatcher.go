package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net"

	"github.com/5cover/tchatator413/internal/action"
	"github.com/5cover/tchatator413/internal/metrics"
	"github.com/5cover/tchatator413/internal/response"
	"github.com/5cover/tchatator413/internal/scope"
	"github.com/5cover/tchatator413/internal/turnstile"
)

// maxRequestSize bounds one connection's single JSON read.
const maxRequestSize = 64 * 1024

// handle serves exactly one request over conn: turnstile check, read,
// parse, evaluate every action in order, encode, write, close. A
// connection carries a single request/response cycle.
func (s *Listener) handle(conn net.Conn) {
	defer conn.Close()

	// sc owns every buffer this request allocates (the raw read, the
	// parsed action fragments, the encoded response) and releases them on
	// every exit path, regardless of where in the pipeline the request
	// stops.
	sc := scope.New()
	defer sc.Close()

	addr := conn.RemoteAddr().String()
	trace := s.trace.next()
	decision := s.ts.Check(addr)
	if !decision.Allowed {
		s.log.Info("[%s] %s: rate limited", trace, addr)
		// Drain the request first: closing with unread input resets the
		// connection and can discard the 429 before the client reads it.
		readOne(conn)
		s.writeRateLimited(conn, decision)
		return
	}

	raw, err := readOne(conn)
	if err != nil {
		s.log.Warning("[%s] read from %s: %v", trace, addr, err)
		return
	}
	sc.Add(&raw, func() { raw = nil })
	s.log.Debug("[%s] %s: %d bytes", trace, addr, len(raw))

	actions, parseErr := action.ParseRequest(raw)
	sc.Add(&actions, func() { actions = nil })
	var responses []response.Response
	if parseErr != nil {
		responses = []response.Response{response.ErrorResponse(action.VerbError, parseErr)}
	} else {
		responses = make([]response.Response, len(actions))
		ctx := context.Background()
		for i, fragment := range actions {
			a := action.ParseAction(ctx, s.ev.DB(), fragment, s.log.Error)
			responses[i] = s.ev.Evaluate(ctx, a)
			metrics.ActionsEvaluated.WithLabelValues(a.Verb.String()).Inc()
		}
	}
	sc.Add(&responses, func() { responses = nil })

	body, err := response.EncodeRequest(responses)
	if err != nil {
		s.log.Error("encode response for %s: %v", addr, err)
		return
	}
	sc.Add(&body, func() { body = nil })
	writeFull(conn, append(body, 0))
}

func (s *Listener) writeRateLimited(conn net.Conn, d turnstile.Decision) {
	errBody := response.Response{Verb: action.VerbError, Err: &action.Error{
		Kind:          action.ErrRateLimit,
		NextRequestAt: d.NextRequestAt,
	}}
	body, err := response.EncodeRequest([]response.Response{errBody})
	if err != nil {
		s.log.Error("encode rate_limit response: %v", err)
		return
	}
	writeFull(conn, append(body, 0))
}

// readOne reads a single JSON value terminated by EOF, bounded by
// maxRequestSize.
func readOne(conn net.Conn) (json.RawMessage, error) {
	r := bufio.NewReaderSize(conn, maxRequestSize)
	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			break
		}
		if len(buf) >= maxRequestSize {
			break
		}
	}
	return json.RawMessage(buf), nil
}

// writeFull loops a partial write to completion. No deadline is set: the
// store's own timeout is the only one that applies to a request.
func writeFull(conn net.Conn, b []byte) {
	for len(b) > 0 {
		n, err := conn.Write(b)
		if err != nil {
			return
		}
		b = b[n:]
	}
}
