// Package conn identifies live client connections and remembers which user
// identity was last asserted on each of them.
package conn

import "github.com/google/uuid"

// ID is the handle of one live duplex channel. A reconnecting client gets a
// new ID.
type ID string

// NewID allocates a fresh connection handle.
func NewID() ID {
	return ID("c_" + uuid.NewString())
}

// Registry maps live connections to the user identity last asserted on them.
// It is not safe for concurrent use; the owner serialises access.
type Registry struct {
	users map[ID]string
}

func NewRegistry() *Registry {
	return &Registry{users: make(map[ID]string)}
}

// Add registers a connection with no identity yet.
func (r *Registry) Add(id ID) {
	if _, ok := r.users[id]; !ok {
		r.users[id] = ""
	}
}

// Assert records userID as the identity of id. Unknown connections are ignored.
func (r *Registry) Assert(id ID, userID string) {
	if _, ok := r.users[id]; ok && userID != "" {
		r.users[id] = userID
	}
}

// UserOf returns the last identity asserted on id.
func (r *Registry) UserOf(id ID) (string, bool) {
	u, ok := r.users[id]
	return u, ok && u != ""
}

// Has reports whether id is a live connection.
func (r *Registry) Has(id ID) bool {
	_, ok := r.users[id]
	return ok
}

func (r *Registry) Remove(id ID) {
	delete(r.users, id)
}

func (r *Registry) Len() int {
	return len(r.users)
}
