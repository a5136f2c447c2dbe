package signal

import (
	"sync"

	"huddle/internal/core/domain"
)

// Directory maps (session, participant) to the live transport handle. It is
// the broadcast group for a session: detaching a participant here is what
// cuts it off from further session traffic. Last writer wins on reconnect
// races; entries die with their transport via the connection cleanup path.
type Directory struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]map[domain.ParticipantID]*Conn
}

func NewDirectory() *Directory {
	return &Directory{
		sessions: make(map[domain.SessionID]map[domain.ParticipantID]*Conn),
	}
}

// Register installs the transport for (session, participant) and returns the
// superseded transport, if any, so the caller can close it.
func (d *Directory) Register(session domain.SessionID, participant domain.ParticipantID, conn *Conn) *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()

	members, ok := d.sessions[session]
	if !ok {
		members = make(map[domain.ParticipantID]*Conn)
		d.sessions[session] = members
	}

	prev := members[participant]
	members[participant] = conn
	if prev == conn {
		return nil
	}
	return prev
}

// Unregister removes (session, participant) only while conn is still the
// registered transport. Returns false when a newer transport took over,
// which tells a disconnecting connection to skip its leave side effects.
func (d *Directory) Unregister(session domain.SessionID, participant domain.ParticipantID, conn *Conn) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	members, ok := d.sessions[session]
	if !ok {
		return false
	}
	current, ok := members[participant]
	if !ok || current != conn {
		return false
	}

	delete(members, participant)
	if len(members) == 0 {
		delete(d.sessions, session)
	}
	return true
}

// Detach removes the participant's transport regardless of which connection
// holds it and returns the removed handle. Used by host removal.
func (d *Directory) Detach(session domain.SessionID, participant domain.ParticipantID) *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()

	members, ok := d.sessions[session]
	if !ok {
		return nil
	}
	conn, ok := members[participant]
	if !ok {
		return nil
	}

	delete(members, participant)
	if len(members) == 0 {
		delete(d.sessions, session)
	}
	return conn
}

// Lookup returns the live transport for (session, participant).
func (d *Directory) Lookup(session domain.SessionID, participant domain.ParticipantID) (*Conn, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	members, ok := d.sessions[session]
	if !ok {
		return nil, false
	}
	conn, ok := members[participant]
	return conn, ok
}

// Members returns the participants with a live transport in the session.
func (d *Directory) Members(session domain.SessionID) []domain.ParticipantID {
	d.mu.RLock()
	defer d.mu.RUnlock()

	members := make([]domain.ParticipantID, 0, len(d.sessions[session]))
	for id := range d.sessions[session] {
		members = append(members, id)
	}
	return members
}

// Broadcast fans a message out to every transport in the session, except
// the given participant when except is non-empty. Sends are best-effort;
// a failed write is left for that connection's own read loop to clean up.
func (d *Directory) Broadcast(session domain.SessionID, except domain.ParticipantID, v interface{}) {
	d.mu.RLock()
	conns := make([]*Conn, 0, len(d.sessions[session]))
	for id, conn := range d.sessions[session] {
		if except != "" && id == except {
			continue
		}
		conns = append(conns, conn)
	}
	d.mu.RUnlock()

	for _, conn := range conns {
		conn.Send(v)
	}
}

// ConnectionCount reports the number of live transports across sessions.
func (d *Directory) ConnectionCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	count := 0
	for _, members := range d.sessions {
		count += len(members)
	}
	return count
}
