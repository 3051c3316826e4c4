// Package registry owns all session state: which connections exist, which
// username each one has claimed, and which rooms it has joined. It is the
// single serialization point for that state; no I/O happens here.
package registry

import (
	"errors"
	"sort"
	"sync"

	"chat-relay/internal/models"

	"github.com/google/uuid"
)

var (
	// ErrNameTaken is returned when a username is already bound to a live
	// connection. The existing binding is never overwritten.
	ErrNameTaken = errors.New("username already taken")

	// ErrNotLoggedIn is returned for operations that require a bound
	// identity on a connection that has none.
	ErrNotLoggedIn = errors.New("not logged in")

	// ErrUnknownConnection is returned when the connection id was never
	// registered or has already been unregistered.
	ErrUnknownConnection = errors.New("unknown connection")
)

// ConnID is the opaque handle for one live connection.
type ConnID string

type entry struct {
	username string
	rooms    map[string]struct{}
}

// Registry tracks live connections, identity bindings, and room
// membership. Every method takes the registry lock, so each mutation is
// atomic with respect to concurrent callers: two simultaneous logins with
// the same name race inside BindIdentity and exactly one wins.
//
// Usernames are remembered in the roster for the process lifetime even
// after their owning connection closes; only the binding is released, so
// the name is immediately claimable again.
type Registry struct {
	mu    sync.Mutex
	conns map[ConnID]*entry
	names map[string]ConnID
	rooms map[string]map[ConnID]struct{}
	seen  map[string]struct{}
}

func New() *Registry {
	return &Registry{
		conns: make(map[ConnID]*entry),
		names: make(map[string]ConnID),
		rooms: make(map[string]map[ConnID]struct{}),
		seen:  make(map[string]struct{}),
	}
}

// Register admits a new, identity-less connection and returns its handle.
func (r *Registry) Register() ConnID {
	id := ConnID(uuid.NewString())

	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[id] = &entry{rooms: make(map[string]struct{})}
	return id
}

// BindIdentity atomically checks and claims username for the given
// connection. It fails with ErrNameTaken if the name is bound to any live
// connection, and never blocks waiting for the name to free up.
func (r *Registry) BindIdentity(id ConnID, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[id]
	if !ok {
		return ErrUnknownConnection
	}
	if _, taken := r.names[username]; taken {
		return ErrNameTaken
	}

	e.username = username
	r.names[username] = id
	r.seen[username] = struct{}{}
	return nil
}

// Unregister releases the connection's identity binding, removes it from
// every room it had joined, and forgets the connection. Idempotent. The
// username stays in the roster as offline.
func (r *Registry) Unregister(id ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[id]
	if !ok {
		return
	}

	if e.username != "" {
		delete(r.names, e.username)
	}
	for room := range e.rooms {
		members := r.rooms[room]
		delete(members, id)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
	delete(r.conns, id)
}

// JoinRoom adds the connection to the room's member set. Re-joining is a
// no-op. Connections without a bound identity cannot join rooms.
func (r *Registry) JoinRoom(id ConnID, room string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[id]
	if !ok {
		return ErrUnknownConnection
	}
	if e.username == "" {
		return ErrNotLoggedIn
	}

	e.rooms[room] = struct{}{}
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[ConnID]struct{})
		r.rooms[room] = members
	}
	members[id] = struct{}{}
	return nil
}

// MembersOf returns the ids of every connection currently joined to room.
func (r *Registry) MembersOf(room string) []ConnID {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.rooms[room]
	ids := make([]ConnID, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	return ids
}

// Resolve maps a username to the connection currently holding it.
func (r *Registry) Resolve(username string) (ConnID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.names[username]
	return id, ok
}

// Roster returns one entry per username ever bound during this process's
// lifetime, online iff the name currently resolves to a live connection.
// Sorted by name so repeated pushes are stable.
func (r *Registry) Roster() []models.PresenceEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	roster := make([]models.PresenceEntry, 0, len(r.seen))
	for name := range r.seen {
		status := models.StatusOffline
		if _, online := r.names[name]; online {
			status = models.StatusOnline
		}
		roster = append(roster, models.PresenceEntry{Name: name, Status: status})
	}
	sort.Slice(roster, func(i, j int) bool { return roster[i].Name < roster[j].Name })
	return roster
}
