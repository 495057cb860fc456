package api

import (
	"sync"

	"github.com/google/uuid"
	"github.com/samcharles93/diagwarp/pkg/dtw"
)

type alignmentRecord struct {
	Response AlignmentResponse
	Snapshot *dtw.Snapshot
}

// AlignmentStore keeps finished alignments in memory, keyed by id.
type AlignmentStore struct {
	mu         sync.Mutex
	alignments map[string]*alignmentRecord
}

func NewAlignmentStore() *AlignmentStore {
	return &AlignmentStore{
		alignments: make(map[string]*alignmentRecord),
	}
}

// Create assigns an id to resp and stores it with the run's snapshot.
func (s *AlignmentStore) Create(resp AlignmentResponse, snap *dtw.Snapshot) AlignmentResponse {
	resp.ID = uuid.NewString()
	resp.Object = "alignment"

	s.mu.Lock()
	s.alignments[resp.ID] = &alignmentRecord{Response: resp, Snapshot: snap}
	s.mu.Unlock()
	return resp
}

func (s *AlignmentStore) Get(id string) (*alignmentRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.alignments[id]
	return rec, ok
}

func (s *AlignmentStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alignments[id]; !ok {
		return false
	}
	delete(s.alignments, id)
	return true
}

func (s *AlignmentStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alignments)
}
