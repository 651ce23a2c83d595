package tdsim

import (
	"context"
	"log"
	"time"

	multierror "github.com/hashicorp/go-multierror"
)

// Simulation is the tick driver: it owns every node, the shared
// directory, and the in-process transport, and advances all of them by
// exactly one tick per call to Tick.
type Simulation struct {
	cfg   *Config
	dir   *Directory
	tr    *SimTransport
	addrs *AddressBook
	nodes []*Node
	stats *Stats
	tickN int64
}

// NewSimulation validates cfg and wires up a fresh simulation: a node
// directory, an in-process transport, and one Node per configured id.
func NewSimulation(cfg *Config) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	addrs, err := NewAddressBook(cfg.AddressSpace)
	if err != nil {
		return nil, err
	}

	dir := NewDirectory()
	tr := NewSimTransport()
	runSeed := newRunSeed(cfg)

	nodes := make([]*Node, cfg.N)
	for i := 0; i < cfg.N; i++ {
		n := NewNode(NodeID(i), cfg, dir, tr, runSeed)
		nodes[i] = n
		tr.Register(n)
	}

	return &Simulation{
		cfg:   cfg,
		dir:   dir,
		tr:    tr,
		addrs: addrs,
		nodes: nodes,
		stats: NewStats(time.Hour),
	}, nil
}

// Nodes exposes the live node handles for introspection (tests, the CLI
// report, etc). Callers must not call Tick or Deliver on them directly —
// that's the driver's job.
func (s *Simulation) Nodes() []*Node { return s.nodes }

// AddressFor returns node id's display address; it has no bearing on
// delivery.
func (s *Simulation) AddressFor(id NodeID) string { return s.addrs.AddressFor(id) }

// Tick advances every node by one tick (fair order: ascending id), then
// flushes the transport so messages sent this round are visible to
// their destinations starting next tick.
func (s *Simulation) Tick() ([]TickResult, error) {
	results := make([]TickResult, len(s.nodes))
	var merr *multierror.Error

	for i, n := range s.nodes {
		res, err := n.Tick()
		results[i] = res
		s.stats.observeTick(res)
		if err != nil {
			merr = multierror.Append(merr, err)
		}
	}

	if err := s.tr.Flush(); err != nil {
		merr = multierror.Append(merr, err)
	}

	s.tickN++
	inTree, exited := 0, 0
	for _, n := range s.nodes {
		if n.InTree() {
			inTree++
		}
		if n.Exited() {
			exited++
		}
	}
	s.stats.observePopulation(s.tickN, inTree, exited, len(s.nodes))

	return results, merr.ErrorOrNil()
}

// Terminated reports whether any node currently has an announce
// pending, and which one: some exiting node's wave will eventually see
// all FINISHED once the whole network has wound down.
func (s *Simulation) Terminated() (bool, NodeID) {
	for _, n := range s.nodes {
		if n.AnnouncePending() {
			return true, n.ID()
		}
	}
	return false, 0
}

// RunReport summarizes a completed (or aborted) Run.
type RunReport struct {
	Announced   bool
	AnnouncedBy NodeID
	Ticks       int
}

// Run drives ticks until some node announces termination or maxTicks is
// reached, honoring ctx cancellation between ticks (e.g. SIGINT from the
// CLI) so a long run can be stopped cleanly without corrupting statistics
// already flushed. maxTicks is a driver-level ceiling distinct from
// cfg.SimulationTicks (the per-node clock-expiry predicate): nodes stop
// doing application work at SimulationTicks, but the wave protocol needs
// a further handful of ticks to converge afterwards.
func (s *Simulation) Run(ctx context.Context, maxTicks int) (*RunReport, error) {
	for tick := 0; tick < maxTicks; tick++ {
		select {
		case <-ctx.Done():
			return &RunReport{Ticks: tick}, ctx.Err()
		default:
		}

		if _, err := s.Tick(); err != nil {
			log.Printf("[WARN] tick %d: %v", tick, err)
		}

		if done, who := s.Terminated(); done {
			return &RunReport{Announced: true, AnnouncedBy: who, Ticks: tick + 1}, nil
		}
	}
	return &RunReport{Ticks: maxTicks}, nil
}

// Stats exposes the statistics tap for callers (e.g. the CLI) that want
// to read back aggregated counters once a run finishes.
func (s *Simulation) Stats() *Stats { return s.stats }
