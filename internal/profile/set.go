package profile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Set is the ordered collection of profiles keyed by index
type Set struct {
	entries map[int]*Profile
}

// NewSet returns an empty set
func NewSet() *Set {
	return &Set{entries: make(map[int]*Profile)}
}

// Len returns the number of profiles
func (s *Set) Len() int {
	return len(s.entries)
}

// Indices returns the profile indices in ascending order
func (s *Set) Indices() []int {
	idx := make([]int, 0, len(s.entries))
	for i := range s.entries {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}

// Ordered returns the profiles in index order
func (s *Set) Ordered() []*Profile {
	out := make([]*Profile, 0, len(s.entries))
	for _, i := range s.Indices() {
		out = append(out, s.entries[i])
	}
	return out
}

// Get returns the profile stored at index i
func (s *Set) Get(i int) (*Profile, bool) {
	p, ok := s.entries[i]
	return p, ok
}

// ByName returns the first profile in index order named name
func (s *Set) ByName(name string) (*Profile, bool) {
	for _, p := range s.Ordered() {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// Put stores p at index i, replacing any previous profile
func (s *Set) Put(i int, p *Profile) {
	s.entries[i] = p
}

// Add appends p after the highest index and returns its index
func (s *Set) Add(p *Profile) int {
	next := 0
	for i := range s.entries {
		if i >= next {
			next = i + 1
		}
	}
	s.entries[next] = p
	return next
}

// Delete removes the profile at index i
func (s *Set) Delete(i int) {
	delete(s.entries, i)
}

// Compact renumbers the profiles 0..n-1 keeping their order
func (s *Set) Compact() {
	ordered := s.Ordered()
	s.entries = make(map[int]*Profile, len(ordered))
	for i, p := range ordered {
		s.entries[i] = p
	}
}

// Clone returns a deep copy of the set
func (s *Set) Clone() *Set {
	c := NewSet()
	for i, p := range s.entries {
		c.entries[i] = p.Clone()
	}
	return c
}

// MarshalJSON writes an object keyed by index in ascending numeric order.
func (s *Set) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for n, i := range s.Indices() {
		if n > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(strconv.Itoa(i))
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(s.entries[i])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (s *Set) UnmarshalJSON(data []byte) error {
	var raw map[string]*Profile
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	entries := make(map[int]*Profile, len(raw))
	for key, p := range raw {
		i, err := strconv.Atoi(key)
		if err != nil {
			return fmt.Errorf("profile: invalid index %q", key)
		}
		if p == nil {
			return fmt.Errorf("profile: index %d is null", i)
		}
		if err := p.Validate(); err != nil {
			return fmt.Errorf("profile %q: %w", p.Name, err)
		}
		entries[i] = p
	}
	s.entries = entries
	return nil
}
