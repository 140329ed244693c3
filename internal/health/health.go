// Package health tracks availability and load of every edge server.
//
// Each edge server gets exactly one Monitor, and a Monitor is the only
// writer of its server's entry in the shared Table. Readers take a copy
// under the table lock; the lock is never held across a network call.
package health

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/curtisra-gif/cdn-geodns/internal/model"
)

type Table struct {
	mu     sync.Mutex
	states map[string]*model.HealthState
}

// NewTable creates an entry in the initial state for every address.
func NewTable(addrs []string) *Table {
	t := &Table{states: make(map[string]*model.HealthState, len(addrs))}
	for _, a := range addrs {
		s := model.InitialHealth()
		t.states[a] = &s
	}
	return t
}

func (t *Table) State(addr string) (model.HealthState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.states[addr]
	if !ok {
		return model.HealthState{}, false
	}
	return *s, true
}

// Snapshot copies every entry under a single lock acquisition.
func (t *Table) Snapshot() map[string]model.HealthState {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]model.HealthState, len(t.states))
	for a, s := range t.states {
		out[a] = *s
	}
	return out
}

func (t *Table) Addresses() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]string, 0, len(t.states))
	for a := range t.states {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// markUp records a successful probe. A body that does not parse as a
// percentage keeps the previous load.
func (t *Table) markUp(addr, body string) (prev, cur model.HealthState, parsed bool) {
	load, err := strconv.ParseFloat(strings.TrimSpace(body), 64)
	parsed = err == nil

	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.entry(addr)
	prev = *s
	s.Available = true
	if parsed {
		s.Load = load
	}
	return prev, *s, parsed
}

// markDown records a failed probe. Load is left as last reported.
func (t *Table) markDown(addr string) (prev, cur model.HealthState) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.entry(addr)
	prev = *s
	s.Available = false
	return prev, *s
}

func (t *Table) entry(addr string) *model.HealthState {
	s, ok := t.states[addr]
	if !ok {
		init := model.InitialHealth()
		s = &init
		t.states[addr] = s
	}
	return s
}
