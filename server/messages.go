package server

import (
	"time"

	"github.com/chazu/marksweep/vm"
)

type CreateSessionRequest struct {
	Name string `cbor:"1,keyasint,omitempty"`
}

type CreateSessionResponse struct {
	SessionID string `cbor:"1,keyasint"`
}

type CloseSessionRequest struct {
	SessionID string `cbor:"1,keyasint"`
}

type CloseSessionResponse struct{}

type PushIntRequest struct {
	SessionID string `cbor:"1,keyasint"`
	Value     int64  `cbor:"2,keyasint"`
}

type PushPairRequest struct {
	SessionID string `cbor:"1,keyasint"`
}

// PushResponse reports the ref of the pushed object and the heap state
// after the push, including any collection it triggered.
type PushResponse struct {
	Ref  uint64    `cbor:"1,keyasint"`
	Heap HeapStats `cbor:"2,keyasint"`
}

type PopRequest struct {
	SessionID string `cbor:"1,keyasint"`
}

// PopResponse carries the popped value rendered as an s-expression.
// It is rendered on the worker before any later allocation can reclaim it.
type PopResponse struct {
	Value string    `cbor:"1,keyasint"`
	Heap  HeapStats `cbor:"2,keyasint"`
}

type CollectRequest struct {
	SessionID string `cbor:"1,keyasint"`
}

type CollectResponse struct {
	Cycle Cycle     `cbor:"1,keyasint"`
	Heap  HeapStats `cbor:"2,keyasint"`
}

type StatsRequest struct {
	SessionID string `cbor:"1,keyasint"`
}

type StatsResponse struct {
	Heap HeapStats `cbor:"1,keyasint"`
	Last *Cycle    `cbor:"2,keyasint,omitempty"`
}

// HeapStats is a point-in-time view of a session's VM.
type HeapStats struct {
	Strategy    string `cbor:"1,keyasint"`
	Objects     int    `cbor:"2,keyasint"`
	Threshold   int    `cbor:"3,keyasint"`
	StackDepth  int    `cbor:"4,keyasint"`
	Collections uint64 `cbor:"5,keyasint"`
}

// Cycle mirrors vm.CycleStats on the wire.
type Cycle struct {
	Number     uint64        `cbor:"1,keyasint"`
	LiveBefore int           `cbor:"2,keyasint"`
	Marked     int           `cbor:"3,keyasint"`
	Reclaimed  int           `cbor:"4,keyasint"`
	LiveAfter  int           `cbor:"5,keyasint"`
	Threshold  int           `cbor:"6,keyasint"`
	Duration   time.Duration `cbor:"7,keyasint"`
}

func heapStats(v *vm.VM) HeapStats {
	return HeapStats{
		Strategy:    v.Strategy().String(),
		Objects:     v.NumObjects(),
		Threshold:   v.Threshold(),
		StackDepth:  v.StackDepth(),
		Collections: v.Collections(),
	}
}

func cycleFromStats(s vm.CycleStats) Cycle {
	return Cycle{
		Number:     s.Cycle,
		LiveBefore: s.LiveBefore,
		Marked:     s.Marked,
		Reclaimed:  s.Reclaimed,
		LiveAfter:  s.LiveAfter,
		Threshold:  s.Threshold,
		Duration:   s.Duration,
	}
}
