package engine

import "encoding/binary"

type objectKey struct {
	id      ObjectID
	version uint64
}

// objectStore keeps every version of every object plus the owner index.
type objectStore struct {
	versions map[objectKey]*Object
	latest   map[ObjectID]uint64
	coins    map[Address]ObjectID
}

func newObjectStore() *objectStore {
	return &objectStore{
		versions: make(map[objectKey]*Object),
		latest:   make(map[ObjectID]uint64),
		coins:    make(map[Address]ObjectID),
	}
}

// live returns the latest version of id.
func (s *objectStore) live(id ObjectID) (*Object, bool) {
	v, ok := s.latest[id]
	if !ok {
		return nil, false
	}
	return s.versions[objectKey{id, v}], true
}

func (s *objectStore) at(id ObjectID, version uint64) (*Object, bool) {
	o, ok := s.versions[objectKey{id, version}]
	return o, ok
}

// coinOf returns the owner's gas coin.
func (s *objectStore) coinOf(owner Address) (*Object, bool) {
	id, ok := s.coins[owner]
	if !ok {
		return nil, false
	}
	return s.live(id)
}

// put stores o as its owner's coin at o.Version. o must not be mutated
// afterwards.
func (s *objectStore) put(o *Object) {
	o.Digest = o.computeDigest()
	s.versions[objectKey{o.ObjectID, o.Version}] = o
	s.latest[o.ObjectID] = o.Version
	s.coins[o.Owner] = o.ObjectID
}

func (s *objectStore) count() int { return len(s.latest) }

// deriveObjectID names the index-th object created by tx.
func deriveObjectID(tx Digest, index uint64) ObjectID {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], index)
	return ObjectID(hashParts("ObjectID::", tx[:], buf[:]))
}
