package tdsim

import (
	"math/rand"

	"github.com/google/btree"
	multierror "github.com/hashicorp/go-multierror"
)

// Status is a node's application-layer lifecycle state.
type Status uint8

const (
	StatusActive Status = iota
	StatusPassive
	StatusOutOfClock
	StatusOutOfTree
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "ACTIVE"
	case StatusPassive:
		return "PASSIVE"
	case StatusOutOfClock:
		return "OUT_OF_CLOCK"
	case StatusOutOfTree:
		return "OUT_OF_TREE"
	default:
		return "UNKNOWN"
	}
}

// Transport delivers a message to its destination before the
// destination's next tick. The in-process implementation lives in
// transport.go; tests may substitute their own.
type Transport interface {
	Send(msg Message) error
}

// TickResult is the tuple a node hands back to the driver each tick: its
// new status, the peer it sent a BASIC to (if any), and how many control
// and wave messages it emitted since the previous flush.
type TickResult struct {
	NextStatus      Status
	SentBasicTo     *NodeID
	ControlMessages int
	WaveMessages    int
}

const waveBucketDegree = 32

// voteItem is a single wave vote, ordered by responder so the bucket
// collapses duplicate or re-sent votes from the same responder within one
// wave round to the latest one and can be walked in a deterministic order.
type voteItem struct {
	responder NodeID
	vote      WaveVote
}

func (v voteItem) Less(than btree.Item) bool {
	return v.responder < than.(voteItem).responder
}

// Node is the per-node application-layer state machine, combined with
// the tree bookkeeping and wave engine that its tick interleaves. It is
// not safe for concurrent use; the tick driver owns it exclusively for
// the duration of a tick, and Deliver is only ever called between ticks.
type Node struct {
	id   NodeID
	cfg  *Config
	dir  *Directory
	tr   Transport
	rng  *rand.Rand

	status            Status
	aliveForNextTicks int
	passiveCounter    int
	inTree            bool
	parent            *NodeID
	children          map[NodeID]struct{}
	tickN             int64
	hardStop          int64
	basicQueue        []Message
	waveBucket        *btree.BTree
	announcePending   bool
	exited            bool

	cms int
	wms int

	fatalErr error
}

// NewNode constructs a node in its start-of-simulation state: the root
// begins in-tree and active, everyone else begins passive and out of
// the tree.
func NewNode(id NodeID, cfg *Config, dir *Directory, tr Transport, runSeed int64) *Node {
	n := &Node{
		id:         id,
		cfg:        cfg,
		dir:        dir,
		tr:         tr,
		rng:        newNodeRNG(runSeed, id),
		children:   make(map[NodeID]struct{}),
		waveBucket: btree.New(waveBucketDegree),
		hardStop:   cfg.hardStopFor(id),
	}

	n.aliveForNextTicks = cfg.initialLivenessFor(id)
	if id == cfg.Root {
		n.inTree = true
		dir.Add(id)
	}
	if n.aliveForNextTicks > 0 {
		n.status = StatusActive
	} else {
		n.status = StatusPassive
	}
	return n
}

// ID, Status, InTree, Parent, AnnouncePending, Exited, TickN and Err are
// read-only introspection used by the driver and by tests; none of them
// mutate node state.
func (n *Node) ID() NodeID            { return n.id }
func (n *Node) Status() Status        { return n.status }
func (n *Node) InTree() bool          { return n.inTree }
func (n *Node) AnnouncePending() bool { return n.announcePending }
func (n *Node) Exited() bool          { return n.exited }
func (n *Node) TickN() int64          { return n.tickN }
func (n *Node) Err() error            { return n.fatalErr }

// Parent reports the node's current parent, if any.
func (n *Node) Parent() (NodeID, bool) {
	if n.parent == nil {
		return 0, false
	}
	return *n.parent, true
}

// ChildCount reports how many outstanding (un-ACKed) children the node
// currently tracks.
func (n *Node) ChildCount() int { return len(n.children) }

func (n *Node) send(msg Message) error {
	return n.tr.Send(msg)
}

func (n *Node) emitControl(dst NodeID) error {
	n.cms++
	return n.send(controlAckMessage(n.id, dst))
}

func (n *Node) emitWaveReq(dst NodeID) error {
	n.wms++
	return n.send(waveReqMessage(n.id, dst, n.id))
}

func (n *Node) emitWaveResp(dst, tag NodeID, vote WaveVote) error {
	n.wms++
	return n.send(waveRespMessage(n.id, dst, tag, vote))
}

func (n *Node) emitBasic(dst NodeID) error {
	n.children[dst] = struct{}{}
	return n.send(basicMessage(n.id, dst, "work"))
}

// Deliver applies one inbound message's effect on tree/wave bookkeeping
// immediately. It is distinct from the draining that Tick performs on
// the basic queue, which only consumes already-delivered entries to
// decide liveness re-arming.
func (n *Node) Deliver(msg Message) error {
	switch msg.Type {
	case MessageBasic:
		n.basicQueue = append(n.basicQueue, msg)
		if n.exited {
			// Tolerated anomaly: queued but never processed further.
			return nil
		}
		if n.inTree {
			return n.emitControl(msg.Src)
		}
		src := msg.Src
		n.parent = &src
		n.inTree = true
		n.dir.Add(n.id)
		return nil

	case MessageControlAck:
		delete(n.children, msg.Src)
		return nil

	case MessageWaveReq:
		vote := VoteActive
		if n.exited {
			vote = VoteFinished
		}
		return n.emitWaveResp(msg.Src, msg.Tag, vote)

	case MessageWaveResp:
		return n.handleWaveResp(msg)

	default:
		n.fatalErr = newFatalNodeError(n.id, msg)
		n.status = StatusOutOfTree
		return n.fatalErr
	}
}

// handleWaveResp records one vote of this node's own wave. Once N-1
// distinct responders have voted, the node announces if every vote is
// FINISHED; otherwise the bucket is cleared and this node starts no
// further wave of its own, so termination is then announced by the wave
// of some node that exits later.
func (n *Node) handleWaveResp(msg Message) error {
	if msg.Tag != n.id {
		return nil // tolerated anomaly: misrouted response
	}
	n.waveBucket.ReplaceOrInsert(voteItem{responder: msg.Src, vote: msg.Vote})
	if n.waveBucket.Len() != n.cfg.N-1 {
		return nil
	}

	allFinished := true
	n.waveBucket.Ascend(func(it btree.Item) bool {
		if it.(voteItem).vote != VoteFinished {
			allFinished = false
			return false
		}
		return true
	})
	if allFinished {
		n.announcePending = true
	} else {
		n.waveBucket = btree.New(waveBucketDegree)
	}
	return nil
}

// callWave broadcasts a WAVE-REQ to every other node in the simulation,
// addressed by the full [0, N) roster rather than the alive-nodes
// directory: exited nodes are no longer "alive" but must still answer.
func (n *Node) callWave() error {
	n.waveBucket = btree.New(waveBucketDegree)
	if n.cfg.N-1 == 0 {
		// No peers to ask: zero required votes are vacuously all FINISHED.
		n.announcePending = true
		return nil
	}

	var merr *multierror.Error
	for id := NodeID(0); int(id) < n.cfg.N; id++ {
		if id == n.id {
			continue
		}
		if err := n.emitWaveReq(id); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	return merr.ErrorOrNil()
}

// exitTree idempotently removes the node from the tree, acking its
// parent if it had one, then calls callWave to start proving
// termination from this node's perspective.
func (n *Node) exitTree() error {
	if n.exited {
		return nil
	}

	var merr *multierror.Error
	if n.inTree {
		n.inTree = false
		if n.parent != nil {
			if err := n.emitControl(*n.parent); err != nil {
				merr = multierror.Append(merr, err)
			}
		}
	}
	n.parent = nil
	n.dir.Remove(n.id)
	n.exited = true

	if err := n.callWave(); err != nil {
		merr = multierror.Append(merr, err)
	}
	return merr.ErrorOrNil()
}

func randBetween(rng *rand.Rand, min, max int) int {
	if max <= min {
		return min
	}
	return min + rng.Intn(max-min+1)
}

// dequeue drops up to k entries from the front of the basic queue,
// reporting how many were removed. The messages were already applied to
// tree bookkeeping at Deliver time; draining them here only feeds the
// liveness re-arm decision below.
func (n *Node) dequeue(k int) int {
	count := 0
	for count < k && len(n.basicQueue) > 0 {
		n.basicQueue = n.basicQueue[1:]
		count++
	}
	return count
}

func (n *Node) flush(status Status, sentTo *NodeID) TickResult {
	res := TickResult{NextStatus: status, SentBasicTo: sentTo, ControlMessages: n.cms, WaveMessages: n.wms}
	n.cms = 0
	n.wms = 0
	return res
}

// Tick advances the node's state machine by exactly one tick. Step
// ordering is load-bearing: pruning happens before the PASSIVE
// empty-children exit check, and the termination predicates are
// checked before any PASSIVE/ACTIVE work so a dying node can't emit
// new basic traffic on its way out.
func (n *Node) Tick() (TickResult, error) {
	for id := range n.children {
		if !n.dir.Contains(id) {
			delete(n.children, id)
		}
	}

	if n.announcePending {
		return n.flush(n.status, nil), nil
	}

	var merr *multierror.Error
	note := func(err error) {
		if err != nil {
			merr = multierror.Append(merr, err)
		}
	}

	var nextStatus Status
	var sentTo *NodeID

	switch {
	case n.status == StatusOutOfTree:
		note(n.exitTree())
		nextStatus = StatusOutOfTree

	case n.tickN >= int64(n.cfg.SimulationTicks):
		note(n.exitTree())
		nextStatus = StatusOutOfTree

	case n.passiveCounter >= n.cfg.PassivenessDeathThresh:
		note(n.exitTree())
		nextStatus = StatusOutOfTree

	case n.tickN >= n.hardStop:
		note(n.exitTree())
		nextStatus = StatusOutOfTree

	default:
		switch n.status {
		case StatusOutOfClock:
			nextStatus = StatusOutOfClock

		case StatusPassive:
			if len(n.basicQueue) == 0 || n.exited {
				// An exited node never processes basic messages queued
				// after its exit.
				if n.inTree && len(n.children) == 0 {
					// exited flips now; the Status field itself only
					// catches up once one of the termination conditions
					// above fires on a later tick (passive_counter is
					// already accruing toward that).
					note(n.exitTree())
				}
				nextStatus = StatusPassive
			} else {
				n.dequeue(n.cfg.NodePackageProcessPerTick)
				n.aliveForNextTicks = randBetween(n.rng, n.cfg.MinActivenessAfterReceive, n.cfg.MaxActivenessAfterReceive)
				nextStatus = StatusActive
			}

		case StatusActive:
			dequeued := n.dequeue(n.cfg.NodePackageProcessPerTick)

			if n.rng.Float64() <= n.cfg.CommunicationOnActiveProb {
				if peer, ok := n.dir.RandomPeerExcept(n.id, n.rng); ok {
					note(n.emitBasic(peer))
					sentTo = &peer
				}
			}

			n.aliveForNextTicks--
			switch {
			case n.aliveForNextTicks != 0:
				// Matches shavit_francez.py's own post-decrement check: only
				// an exact zero ends the clock, so min_activeness_after_receive
				// == 0 (clock already at zero on entry) still counts as "still
				// ticking" once decremented negative, same as the original.
				nextStatus = StatusActive
			case dequeued > 0:
				nextStatus = StatusActive
				n.aliveForNextTicks = randBetween(n.rng, n.cfg.MinActivenessAfterReceive, n.cfg.MaxActivenessAfterReceive)
			default:
				nextStatus = StatusPassive
			}
		}
	}

	switch nextStatus {
	case StatusPassive:
		n.passiveCounter++
	case StatusActive:
		n.passiveCounter = 0
	}
	n.tickN++
	n.status = nextStatus

	result := n.flush(nextStatus, sentTo)
	return result, merr.ErrorOrNil()
}
