package server

import (
	"strconv"

	"github.com/tinode/snowflake"
)

// traceGen mints an opaque per-connection correlation id: a Snowflake
// 64-bit id used only in log lines, never on the wire.
type traceGen struct {
	sf *snowflake.SnowFlake
}

// newTraceGen builds a generator for the given worker id. A single process
// only ever runs one listener, so workerID is always 0; the parameter
// exists so a future multi-process deployment can assign disjoint ids.
func newTraceGen(workerID uint32) (*traceGen, error) {
	sf, err := snowflake.NewSnowFlake(workerID)
	if err != nil {
		return nil, err
	}
	return &traceGen{sf: sf}, nil
}

// next returns the next trace id as a compact string suitable for a log
// prefix. A nil generator, or a generator whose clock went backwards past
// its tolerance, yields "-" — a trace id is never worth failing a request
// over.
func (g *traceGen) next() string {
	if g == nil {
		return "-"
	}
	id, err := g.sf.Next()
	if err != nil {
		return "-"
	}
	return strconv.FormatUint(id, 16)
}
