// Package memstore is the process-local, default store.Store backend:
// an in-memory map guarded by a mutex, suitable for a single-process
// CLI session with no durability requirement.
//
// Grounded on the teacher's internal/sessions/memory.go in-process map
// convention, re-targeted at store.Store's log/checkpoint/blob shape.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/nexuscore/agentcore/internal/store"
)

type projectData struct {
	logs        []store.LogRecord
	checkpoints map[string]store.Checkpoint // key: sessionID + "\x00" + tag
	blobs       map[string][]byte
}

// Store is an in-memory store.Store implementation.
type Store struct {
	mu       sync.Mutex
	projects map[string]*projectData
}

// New creates an empty Store.
func New() *Store {
	return &Store{projects: make(map[string]*projectData)}
}

func (s *Store) project(hash string) *projectData {
	p, ok := s.projects[hash]
	if !ok {
		p = &projectData{checkpoints: make(map[string]store.Checkpoint), blobs: make(map[string][]byte)}
		s.projects[hash] = p
	}
	return p
}

func checkpointKey(sessionID, tag string) string {
	return sessionID + "\x00" + tag
}

func (s *Store) AppendLog(ctx context.Context, projectHash string, rec store.LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.project(projectHash)
	p.logs = append(p.logs, rec)
	return nil
}

func (s *Store) ReadLogs(ctx context.Context, projectHash string, sessionID string) ([]store.LogRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.project(projectHash)
	out := make([]store.LogRecord, 0, len(p.logs))
	for _, r := range p.logs {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) WriteCheckpoint(ctx context.Context, projectHash string, cp store.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.project(projectHash)
	p.checkpoints[checkpointKey(cp.SessionID, cp.Tag)] = cp
	return nil
}

func (s *Store) ReadCheckpoint(ctx context.Context, projectHash string, sessionID string, tag string) (*store.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.project(projectHash)
	cp, ok := p.checkpoints[checkpointKey(sessionID, tag)]
	if !ok {
		return nil, fmt.Errorf("memstore: no checkpoint for session %q tag %q", sessionID, tag)
	}
	return &cp, nil
}

func (s *Store) WriteShadowBlob(ctx context.Context, projectHash string, blob []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.project(projectHash)
	digest := store.BlobDigest(blob)
	p.blobs[digest] = append([]byte(nil), blob...)
	return digest, nil
}

func (s *Store) ReadShadowBlob(ctx context.Context, projectHash string, digest string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.project(projectHash)
	b, ok := p.blobs[digest]
	if !ok {
		return nil, fmt.Errorf("memstore: no blob %q", digest)
	}
	return b, nil
}

func (s *Store) Close() error { return nil }
