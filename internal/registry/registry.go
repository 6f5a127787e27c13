// Package registry implements the server's shared state: the four tightly
// coupled indexes (connected set, name registry, pair-chat map, group
// table) described in the system design, all guarded by one serialization
// discipline.
package registry

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Peer is the registry's view of a connection. The server package's
// Connection type implements this; the registry never holds a net.Conn
// directly so indexes can be tested without real sockets.
type Peer interface {
	ID() string
	Name() string
	Send(line string)
	Addr() string
	ConnectedAt() time.Time
	Sent() uint64
	Received() uint64
}

// RegisterResult classifies the outcome of a name-registration attempt.
type RegisterResult int

const (
	RegisterOK RegisterResult = iota
	RegisterEmpty
	RegisterTooLong
	RegisterBadChars
	RegisterDuplicate
)

// Registry is the union of the connected set, name index, pair map, and
// group table. A single RWMutex serializes every mutation and every
// snapshot read; outbound writes are non-blocking channel sends performed
// by Peer.Send, so calling Send while holding the lock does not risk
// blocking the server on a slow peer (see DESIGN.md).
type Registry struct {
	mu sync.RWMutex

	byID   map[string]Peer // connected set, keyed by connection id
	byName map[string]Peer // name registry, keyed by registered name

	partner map[string]string // peer id -> partner peer id

	groups   map[string]*group          // group name -> group
	memberOf map[string]map[string]bool // peer id -> set of group names

	totalReceived uint64
	totalSent     uint64
}

type group struct {
	name    string
	members map[string]bool // peer id -> true
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		byID:     make(map[string]Peer),
		byName:   make(map[string]Peer),
		partner:  make(map[string]string),
		groups:   make(map[string]*group),
		memberOf: make(map[string]map[string]bool),
	}
}

// Connect adds p to the connected set. It must be called once, before any
// other registry operation for p, typically right after accept.
func (r *Registry) Connect(p Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[p.ID()] = p
}

// Register validates and assigns name to p. See RegisterResult for the
// possible outcomes; only RegisterOK leaves p registered under name.
func (r *Registry) Register(p Peer, name string, maxNameLength int) RegisterResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" {
		return RegisterEmpty
	}
	if len(name) > maxNameLength {
		return RegisterTooLong
	}
	if strings.ContainsAny(name, "\r\n") {
		return RegisterBadChars
	}
	if _, exists := r.byName[name]; exists {
		return RegisterDuplicate
	}

	r.byName[name] = p
	return RegisterOK
}

// Lookup returns the peer currently registered under name.
func (r *Registry) Lookup(name string) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byName[name]
	return p, ok
}

// Names returns every registered name in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// BroadcastToOthers sends line to every connected peer except exceptID,
// under the lock, over a stable snapshot of the connected set.
func (r *Registry) BroadcastToOthers(exceptID, line string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	r.broadcastToOthersLocked(exceptID, line)
}

func (r *Registry) broadcastToOthersLocked(exceptID, line string) {
	for id, p := range r.byID {
		if id == exceptID {
			continue
		}
		p.Send(line)
	}
}

// RemoveName removes p's name-registry entry, if any.
func (r *Registry) RemoveName(p Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.Name() != "" {
		delete(r.byName, p.Name())
	}
}

// RemoveConnected removes p from the connected set. This must be the last
// index mutation performed for p, and must happen only after the caller's
// own last scheduled Send has already been issued.
func (r *Registry) RemoveConnected(p Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, p.ID())
}

// IncReceived / IncSent update the server-wide message counters used by
// the statistics surface.
func (r *Registry) IncReceived() {
	r.mu.Lock()
	r.totalReceived++
	r.mu.Unlock()
}

func (r *Registry) IncSent() {
	r.mu.Lock()
	r.totalSent++
	r.mu.Unlock()
}
