package tdsim

import (
	"errors"
	"log"
	"sync"

	multierror "github.com/hashicorp/go-multierror"
)

// SimTransport is the in-process Transport: it still serializes every
// message through the wire codec and back before delivery, so a
// message that wouldn't survive the wire format is caught by tests
// even though no real socket is involved.
//
// Messages sent during a tick are only handed to their destination's
// Deliver when Flush is called, so nothing is delivered within the
// tick in which it was sent; the driver calls Flush once after every
// node has ticked.
type SimTransport struct {
	mu      sync.Mutex
	nodes   map[NodeID]*Node
	pending []Message
}

// NewSimTransport builds an empty transport; nodes register themselves
// with Register once constructed.
func NewSimTransport() *SimTransport {
	return &SimTransport{nodes: make(map[NodeID]*Node)}
}

// Register makes n reachable as a delivery destination.
func (t *SimTransport) Register(n *Node) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nodes[n.ID()] = n
}

// Send implements Transport. It round-trips msg through the wire codec
// and queues it for the next Flush.
func (t *SimTransport) Send(msg Message) error {
	b, err := encodeMessage(msg)
	if err != nil {
		return err
	}
	decoded, err := decodeMessage(b)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.pending = append(t.pending, decoded)
	t.mu.Unlock()
	return nil
}

// Flush delivers every message queued since the last Flush, in send
// order, and clears the queue. A fatal unknown-message-type error from a
// single destination is logged and not returned here (Node.Deliver has
// already marked that node OUT_OF_TREE and recorded the error in
// Node.Err) rather than aborting delivery to every other destination in
// the batch.
func (t *SimTransport) Flush() error {
	t.mu.Lock()
	batch := t.pending
	t.pending = nil
	t.mu.Unlock()

	var merr *multierror.Error
	for _, msg := range batch {
		t.mu.Lock()
		dst, ok := t.nodes[msg.Dst]
		t.mu.Unlock()
		if !ok {
			continue
		}
		if err := dst.Deliver(msg); err != nil {
			if errors.Is(err, ErrUnknownMessageType) {
				log.Printf("[ERR] %v", err)
			} else {
				merr = multierror.Append(merr, err)
			}
		}
	}
	return merr.ErrorOrNil()
}

// Pending reports how many messages are queued for the next Flush; it
// exists mainly for tests that want to assert nothing leaked across a
// tick boundary.
func (t *SimTransport) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
