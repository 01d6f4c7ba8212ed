// Package dag defines the DAG data model: task identifiers, thunks, chunks
// and the dependents index computed once per run.
package dag

import (
	"crypto/sha256"
	"encoding/json"
)

// TaskID stably identifies a thunk independent of when or where it runs.
// Equal TaskIDs denote the same computation.
type TaskID [sha256.Size]byte

// Zero reports whether id is the zero value (never a valid fingerprint).
func (id TaskID) Zero() bool {
	return id == TaskID{}
}

// Kind tags the variant a Thunk input (or a top-level Executable) carries.
type Kind int

const (
	// KindThunk is a deferred computation with its own inputs.
	KindThunk Kind = iota
	// KindFunction is a zero-argument callable, invoked with no inputs.
	KindFunction
	// KindChunk is a handle to an already-materialized value.
	KindChunk
	// KindLiteral is a plain value passed through untouched.
	KindLiteral
)

// Func is the pure function a Thunk applies to its collected inputs.
// meta thunks receive raw Input values (possibly Chunks); non-meta thunks
// receive collected values.
type Func func(args []any) (any, error)

// Input is one operand of a Thunk, or a standalone root executable: exactly
// one of Thunk, Function, Chunk or Literal is set, selected by Kind.
type Input struct {
	Kind     Kind
	Thunk    *Thunk
	Function Func
	Chunk    *Chunk
	Literal  any
}

// ThunkInput wraps a *Thunk as an Input.
func ThunkInput(t *Thunk) Input { return Input{Kind: KindThunk, Thunk: t} }

// FunctionInput wraps a zero-argument Func as an Input.
func FunctionInput(f Func) Input { return Input{Kind: KindFunction, Function: f} }

// ChunkInput wraps a *Chunk as an Input.
func ChunkInput(c *Chunk) Input { return Input{Kind: KindChunk, Chunk: c} }

// LiteralInput wraps a plain value as an Input.
func LiteralInput(v any) Input { return Input{Kind: KindLiteral, Literal: v} }

// Thunk is an immutable DAG node.
type Thunk struct {
	ID     TaskID
	F      Func
	Inputs []Input

	// Meta, if true, causes F to receive Inputs uncollected (Chunks passed
	// through rather than materialized).
	Meta bool
	// GetResult, if false, causes the scheduler to box F's result into a
	// Chunk after execution.
	GetResult bool
	// Persist and Cache influence chunk retention on result placement.
	Persist bool
	Cache   bool
}

// Chunk is a handle to a materialized value, in-process or off-heap.
type Chunk struct {
	Handle  string
	Persist bool
	Cache   bool
}

// Fingerprint derives a TaskID from a thunk's structural shape: the
// function identity is opaque to us, so the fingerprint covers the
// thunk's input count and flags plus the caller-supplied seed, which
// callers derive from the function's own identity (e.g. a registered name
// or closure address encoded by the driver). Input kinds and input values
// (literals, chunks, upstream thunks) are not hashed: two thunks that
// differ only in their inputs get the same TaskID under the same seed.
// The scheme hashes a JSON-marshaled task definition with sha256, so two
// thunks with identical shape and seed collide deliberately.
func Fingerprint(seed string, t *Thunk) TaskID {
	shape := struct {
		Seed      string `json:"seed"`
		NInputs   int    `json:"n_inputs"`
		Meta      bool   `json:"meta"`
		GetResult bool   `json:"get_result"`
		Persist   bool   `json:"persist"`
		Cache     bool   `json:"cache"`
	}{
		Seed:      seed,
		NInputs:   len(t.Inputs),
		Meta:      t.Meta,
		GetResult: t.GetResult,
		Persist:   t.Persist,
		Cache:     t.Cache,
	}
	data, _ := json.Marshal(shape)
	return sha256.Sum256(data)
}
