package tdsim

import (
	"encoding/binary"
	"math/rand"
	"sync"

	iradix "github.com/hashicorp/go-immutable-radix"
)

// Directory is the "all-seeing-eye" node registry: the externally
// visible set of currently alive nodes. It backs membership with a
// copy-on-write radix tree so that Alive() can hand out a stable
// ordered snapshot (used for random peer selection) without holding a
// lock for the duration of the iteration. The wave engine does not use
// it: waves address the full [0, N) roster.
type Directory struct {
	mu   sync.Mutex
	tree *iradix.Tree
}

func idKey(id NodeID) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(int64(id)))
	return b[:]
}

// NewDirectory builds a directory with the given ids already marked alive.
func NewDirectory(alive ...NodeID) *Directory {
	d := &Directory{tree: iradix.New()}
	for _, id := range alive {
		d.Add(id)
	}
	return d
}

// Add registers id as alive. It is a no-op if id is already present.
func (d *Directory) Add(id NodeID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tree, _, _ = d.tree.Insert(idKey(id), id)
}

// Remove deregisters id. It is a no-op if id is absent.
func (d *Directory) Remove(id NodeID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tree, _, _ = d.tree.Delete(idKey(id))
}

// Contains reports whether id is currently alive.
func (d *Directory) Contains(id NodeID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.tree.Get(idKey(id))
	return ok
}

// Len returns the number of alive nodes.
func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tree.Len()
}

// Alive returns an ascending snapshot of every currently alive node id.
func (d *Directory) Alive() []NodeID {
	d.mu.Lock()
	tree := d.tree
	d.mu.Unlock()

	ids := make([]NodeID, 0, tree.Len())
	iter := tree.Root().Iterator()
	for {
		_, v, ok := iter.Next()
		if !ok {
			break
		}
		ids = append(ids, v.(NodeID))
	}
	return ids
}

// RandomPeerExcept picks a uniformly random alive id other than self,
// reporting false if none exists.
func (d *Directory) RandomPeerExcept(self NodeID, rng *rand.Rand) (NodeID, bool) {
	ids := d.Alive()
	candidates := ids[:0]
	for _, id := range ids {
		if id != self {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		return 0, false
	}
	return candidates[rng.Intn(len(candidates))], true
}
