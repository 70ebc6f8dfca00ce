package server

import "net"

// Registry holds the live sessions, keyed by remote endpoint. At most one
// session per remote address:port pair exists at a time. Lookups are a
// linear scan; deliberately so, since max_connections is expected to stay
// small (default 100) and a hashmap keyed on *net.UDPAddr would need its
// own comparable key type anyway.
type Registry struct {
	sessions []*Session
	max      int
}

// NewRegistry creates a registry that refuses to grow past max sessions.
func NewRegistry(max int) *Registry {
	return &Registry{max: max}
}

// Lookup finds the session whose remote endpoint matches addr, comparing
// both IP and port.
func (r *Registry) Lookup(addr *net.UDPAddr) *Session {
	for _, s := range r.sessions {
		if udpAddrEqual(s.Remote, addr) {
			return s
		}
	}

	return nil
}

// Add registers a new session. It fails if the registry is already at
// capacity; callers are expected to have already confirmed no session
// exists for this remote via Lookup.
func (r *Registry) Add(s *Session) bool {
	if len(r.sessions) >= r.max {
		return false
	}

	r.sessions = append(r.sessions, s)

	return true
}

// Remove drops the session for addr, closing its stream and socket first.
func (r *Registry) Remove(addr *net.UDPAddr) {
	for i, s := range r.sessions {
		if udpAddrEqual(s.Remote, addr) {
			s.Close()
			r.sessions = append(r.sessions[:i], r.sessions[i+1:]...)

			return
		}
	}
}

// All returns the live sessions. Callers must not mutate the slice; it is
// intended for read-only iteration (idle sweep, socket polling).
func (r *Registry) All() []*Session {
	return r.sessions
}

// Len reports the current session count.
func (r *Registry) Len() int {
	return len(r.sessions)
}

// CloseAll tears down every session without notifying clients, used on
// listener shutdown.
func (r *Registry) CloseAll() {
	for _, s := range r.sessions {
		s.Close()
	}

	r.sessions = nil
}

func udpAddrEqual(a, b *net.UDPAddr) bool {
	return a.Port == b.Port && a.IP.Equal(b.IP)
}
