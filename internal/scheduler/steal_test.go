package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/taskmesh/dagcore/internal/dag"
	"github.com/taskmesh/dagcore/internal/peer"
	"github.com/taskmesh/dagcore/internal/queue"
	"github.com/taskmesh/dagcore/internal/schederr"
)

func stealID(b byte) dag.TaskID {
	var t dag.TaskID
	t[0] = b
	return t
}

func TestStealSkipsAlreadyStolenAndDrains(t *testing.T) {
	s := testScheduler(t, 10)
	peerShared := queue.NewShared(10)
	peerShared.Push(stealID(1))
	peerShared.Push(stealID(2))
	h := &peer.Handle{Name: "peer1", Transport: peer.NewLocalTransport(peerShared, nil)}

	// id(1) is already in s.stolen from a prior round; Steal must skip
	// straight over it without handing it back a second time.
	s.stolen[stealID(1)] = struct{}{}

	got, err := s.Steal(context.Background(), h)
	if err != nil {
		t.Fatalf("Steal: %v", err)
	}
	if got != stealID(2) {
		t.Fatalf("Steal = %x, want id(2) (id(1) was already stolen)", got)
	}

	// Deque now drained; a further steal must report NoTask.
	_, err = s.Steal(context.Background(), h)
	if !errors.Is(err, schederr.ErrNoTask) {
		t.Fatalf("Steal on drained peer = %v, want ErrNoTask", err)
	}
}

func TestStealRecordsTaskAsStolen(t *testing.T) {
	s := testScheduler(t, 10)
	peerShared := queue.NewShared(10)
	peerShared.Push(stealID(1))
	h := &peer.Handle{Name: "peer1", Transport: peer.NewLocalTransport(peerShared, nil)}

	first, err := s.Steal(context.Background(), h)
	if err != nil {
		t.Fatalf("Steal: %v", err)
	}
	if first != stealID(1) {
		t.Fatalf("Steal = %x, want id(1)", first)
	}
	if _, ok := s.stolen[first]; !ok {
		t.Fatalf("stolen task must be recorded in s.stolen")
	}
}

func TestStealOnEmptyPeerReturnsNoTask(t *testing.T) {
	s := testScheduler(t, 10)
	peerShared := queue.NewShared(1)
	h := &peer.Handle{Name: "peer1", Transport: peer.NewLocalTransport(peerShared, nil)}

	_, err := s.Steal(context.Background(), h)
	if !errors.Is(err, schederr.ErrNoTask) {
		t.Fatalf("Steal on empty peer = %v, want ErrNoTask", err)
	}
}

func TestStealAnySkipsUnavailablePeersAndTriesOthers(t *testing.T) {
	s := testScheduler(t, 10)
	liveShared := queue.NewShared(1)
	liveShared.Push(stealID(5))

	s.peers = map[string]*peer.Handle{
		"dead": {Name: "dead", Transport: failingTransport{}},
		"live": {Name: "live", Transport: peer.NewLocalTransport(liveShared, nil)},
	}

	task, name, err := s.StealAny(context.Background())
	if err != nil {
		t.Fatalf("StealAny: %v", err)
	}
	if task != stealID(5) || name != "live" {
		t.Fatalf("StealAny = %x,%s, want id(5),live", task, name)
	}
}

func TestStealAnyReturnsNoTaskWhenPeersEmptyOrUnavailable(t *testing.T) {
	s := testScheduler(t, 10)
	s.peers = map[string]*peer.Handle{
		"a": {Name: "a", Transport: peer.NewLocalTransport(queue.NewShared(1), nil)},
		"b": {Name: "b", Transport: failingTransport{}},
	}

	_, _, err := s.StealAny(context.Background())
	if !errors.Is(err, schederr.ErrNoTask) {
		t.Fatalf("StealAny with nothing available = %v, want ErrNoTask", err)
	}
}

// failingTransport simulates an unreachable peer: every call degrades to
// ErrPeerUnavailable, which StealAny must treat as skip-and-continue.
type failingTransport struct{}

func (failingTransport) Steal(ctx context.Context) (dag.TaskID, bool, error) {
	return dag.TaskID{}, false, schederr.ErrPeerUnavailable
}

func (failingTransport) Len(ctx context.Context) (int, error) {
	return 0, schederr.ErrPeerUnavailable
}

func (failingTransport) Ping(ctx context.Context) error { return nil }
