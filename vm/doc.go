// Package vm implements a stack VM whose heap is managed by a
// mark-and-sweep collector.
//
// This package contains:
//   - Int and Pair objects addressed by generation-checked Refs
//   - Arena and linked heap storage strategies
//   - The root stack and the collector with its adaptive threshold
//   - Heap verification and CBOR snapshots
package vm
