package store

import (
	"github.com/cespare/xxhash/v2"
)

type StringID uint32

// Strings interns strings. IDs are dense and start at 0, which is always the empty string.
type Strings struct {
	// byHash maps the xxhash of a string to the IDs of all interned strings with that hash. Almost every hash has
	// exactly one string.
	byHash     map[uint64][]StringID
	strs       []string
	collisions int
}

func NewStrings() *Strings {
	s := &Strings{byHash: make(map[uint64][]StringID)}
	s.Intern("")
	return s
}

func (s *Strings) Intern(str string) StringID {
	h := xxhash.Sum64String(str)
	ids := s.byHash[h]
	for _, id := range ids {
		if s.strs[id] == str {
			return id
		}
	}
	if len(ids) > 0 {
		s.collisions++
	}
	id := StringID(len(s.strs))
	s.strs = append(s.strs, str)
	s.byHash[h] = append(ids, id)
	return id
}

func (s *Strings) Get(id StringID) string { return s.strs[id] }

func (s *Strings) Len() int { return len(s.strs) }

// Collisions returns the number of interned strings whose hash was shared with a different, previously interned
// string.
func (s *Strings) Collisions() int { return s.collisions }
