package town

import (
	"sort"
	"sync"
	"time"
)

// PresenceTimeout is how long a user stays in the roster without a heartbeat.
const PresenceTimeout = 30 * time.Second

// Presence tracks which users are online based on recent heartbeats. It is
// in-memory only and resets with the process.
type Presence struct {
	mu       sync.Mutex
	lastSeen map[string]time.Time
	now      func() time.Time
}

func NewPresence() *Presence {
	return &Presence{
		lastSeen: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Touch records a heartbeat for user.
func (p *Presence) Touch(user string) {
	if user == "" {
		return
	}
	p.mu.Lock()
	p.lastSeen[user] = p.now()
	p.mu.Unlock()
}

// Remove drops user from the roster, reporting whether they were present.
func (p *Presence) Remove(user string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.lastSeen[user]; !ok {
		return false
	}
	delete(p.lastSeen, user)
	return true
}

// List sweeps out users not seen within PresenceTimeout and returns the
// remaining names in a stable order.
func (p *Presence) List() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	users := make([]string, 0, len(p.lastSeen))
	for user, seen := range p.lastSeen {
		if now.Sub(seen) > PresenceTimeout {
			delete(p.lastSeen, user)
			continue
		}
		users = append(users, user)
	}
	sort.Strings(users)
	return users
}
