// Package subscription tracks which live viewer sessions are joined to which delivery
// channel. It stores opaque Session handles, so it knows nothing about the transport.
package subscription

import (
	"fmt"
	"sort"
	"sync"

	"fleet-tracker/internal/fleet/domain"
)

// ChannelKind distinguishes the two kinds of delivery channel.
type ChannelKind uint8

const (
	// KindEmployee is the channel of one employee's identity.
	KindEmployee ChannelKind = iota + 1
	// KindSupervisory is the single channel of the supervisory audience.
	KindSupervisory
)

func (k ChannelKind) String() string {
	switch k {
	case KindEmployee:
		return "employee"
	case KindSupervisory:
		return "supervisory"
	}
	return "unknown"
}

// Channel is a comparable delivery target key. Build it with Employee or Supervisory.
type Channel struct {
	Kind       ChannelKind
	EmployeeID domain.UserID // zero for KindSupervisory
}

// Employee returns the channel of the given employee.
func Employee(id domain.UserID) Channel {
	return Channel{Kind: KindEmployee, EmployeeID: id}
}

// Supervisory returns the supervisory channel.
func Supervisory() Channel {
	return Channel{Kind: KindSupervisory}
}

func (c Channel) String() string {
	if c.Kind == KindEmployee {
		return fmt.Sprintf("employee:%d", c.EmployeeID)
	}
	return c.Kind.String()
}

// SessionID identifies one live viewer connection.
type SessionID string

// Session is a live viewer connection as seen by the directory.
type Session interface {
	ID() SessionID
	// TrySend queues payload for delivery without blocking. It returns false when the
	// payload could not be queued (queue full, session closed).
	TrySend(payload []byte) bool
}

// FanoutResult counts the outcome of one Fanout call.
type FanoutResult struct {
	Delivered int
	Failed    int
}

// Directory is a concurrent multimap from Channel to live sessions.
type Directory struct {
	mu        sync.RWMutex
	channels  map[Channel]map[SessionID]Session
	bySession map[SessionID]map[Channel]struct{}
}

// NewDirectory returns an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		channels:  make(map[Channel]map[SessionID]Session),
		bySession: make(map[SessionID]map[Channel]struct{}),
	}
}

// Join adds s to ch. Joining twice is a no-op.
func (d *Directory) Join(ch Channel, s Session) {
	id := s.ID()
	d.mu.Lock()
	defer d.mu.Unlock()
	members, ok := d.channels[ch]
	if !ok {
		members = make(map[SessionID]Session)
		d.channels[ch] = members
	}
	members[id] = s
	joined, ok := d.bySession[id]
	if !ok {
		joined = make(map[Channel]struct{})
		d.bySession[id] = joined
	}
	joined[ch] = struct{}{}
}

// Leave removes the session from ch. Unknown pairs are ignored. Once Leave returns, no
// Fanout to ch reaches the session.
func (d *Directory) Leave(ch Channel, id SessionID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.leaveLocked(ch, id)
}

// LeaveAll removes the session from every channel it joined. Call it on disconnect.
func (d *Directory) LeaveAll(id SessionID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for ch := range d.bySession[id] {
		d.leaveLocked(ch, id)
	}
	delete(d.bySession, id)
}

func (d *Directory) leaveLocked(ch Channel, id SessionID) {
	if members, ok := d.channels[ch]; ok {
		delete(members, id)
		if len(members) == 0 {
			delete(d.channels, ch)
		}
	}
	if joined, ok := d.bySession[id]; ok {
		delete(joined, ch)
		if len(joined) == 0 {
			delete(d.bySession, id)
		}
	}
}

// LiveSessions returns a sorted snapshot of the sessions joined to ch. It may already be
// stale when it returns.
func (d *Directory) LiveSessions(ch Channel) []SessionID {
	d.mu.RLock()
	members := d.channels[ch]
	ids := make([]SessionID, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	d.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ChannelsOf returns the channels the session is joined to.
func (d *Directory) ChannelsOf(id SessionID) []Channel {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Channel, 0, len(d.bySession[id]))
	for ch := range d.bySession[id] {
		out = append(out, ch)
	}
	return out
}

// SessionCount returns the number of distinct sessions joined to at least one channel.
func (d *Directory) SessionCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.bySession)
}

// Fanout offers payload once to every session joined to any of channels.
// TrySend never blocks, so the read lock is held for the whole pass; this is what makes
// Leave a hard cut-off for later fan-outs.
func (d *Directory) Fanout(channels []Channel, payload []byte) FanoutResult {
	var res FanoutResult
	d.mu.RLock()
	defer d.mu.RUnlock()
	var seen map[SessionID]struct{}
	if len(channels) > 1 {
		seen = make(map[SessionID]struct{})
	}
	for _, ch := range channels {
		for id, s := range d.channels[ch] {
			if seen != nil {
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
			}
			if s.TrySend(payload) {
				res.Delivered++
			} else {
				res.Failed++
			}
		}
	}
	return res
}
