// Package store defines the persistent state layout spec.md §6 marks as
// an interface-only external collaborator, expanded here into three
// interchangeable backends (store/memstore, store/sqlstore, store/pgstore)
// so the core can actually exercise checkpointing and log persistence
// end to end.
//
// Grounded on the teacher's internal/sessions package: branch_store.go's
// content-addressed snapshot layout informs the shadow-history subtree,
// and write_lock.go/expiry.go's hashed-subtree-per-project convention
// informs PathHash. Re-targeted at the spec's
// history/<hash>/, tmp/<hash>/logs.json, tmp/<hash>/checkpoint[-<tag>].json
// layout rather than the teacher's own branch/memory model.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/nexuscore/agentcore/pkg/content"
)

// LogRecord is one append-only entry in tmp/<hash>/logs.json.
type LogRecord struct {
	SessionID string `json:"sessionId"`
	MessageID string `json:"messageId"`
	Timestamp int64  `json:"timestamp"`
	Type      string `json:"type"`
	Message   string `json:"message"`
}

// Checkpoint is the pickled curated history saved at
// tmp/<hash>/checkpoint[-<tag>].json.
type Checkpoint struct {
	SessionID string            `json:"sessionId"`
	Tag       string            `json:"tag,omitempty"`
	History   []content.Content `json:"history"`
}

// Store is the persistence capability the Session Manager depends on.
// Every method is keyed by projectHash, the hex SHA-256 of the absolute
// project path, matching spec.md §6's "hashed by absolute path" layout.
type Store interface {
	AppendLog(ctx context.Context, projectHash string, rec LogRecord) error
	ReadLogs(ctx context.Context, projectHash string, sessionID string) ([]LogRecord, error)

	WriteCheckpoint(ctx context.Context, projectHash string, cp Checkpoint) error
	ReadCheckpoint(ctx context.Context, projectHash string, sessionID string, tag string) (*Checkpoint, error)

	// WriteShadowBlob and ReadShadowBlob implement the content-addressed
	// history/<hash>/ snapshot repository used by checkpointing.
	WriteShadowBlob(ctx context.Context, projectHash string, blob []byte) (digest string, err error)
	ReadShadowBlob(ctx context.Context, projectHash string, digest string) ([]byte, error)

	Close() error
}

// PathHash hashes an absolute project path into the hex digest used to
// name its history/tmp subtree, per spec.md §6.
func PathHash(absPath string) string {
	sum := sha256.Sum256([]byte(absPath))
	return hex.EncodeToString(sum[:])
}

// BlobDigest hashes blob content for the content-addressed shadow
// snapshot repository.
func BlobDigest(blob []byte) string {
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:])
}

// MarshalHistory serializes a Checkpoint's history for the SQL backends,
// which store it as a single history_json column rather than a row per
// content.Content the way the filesystem layout's checkpoint file does.
func MarshalHistory(cp Checkpoint) (string, error) {
	b, err := json.Marshal(cp.History)
	if err != nil {
		return "", fmt.Errorf("store: marshal checkpoint history: %w", err)
	}
	return string(b), nil
}

// UnmarshalHistory reverses MarshalHistory into a Checkpoint.
func UnmarshalHistory(sessionID, tag, historyJSON string) (*Checkpoint, error) {
	var history []content.Content
	if err := json.Unmarshal([]byte(historyJSON), &history); err != nil {
		return nil, fmt.Errorf("store: unmarshal checkpoint history: %w", err)
	}
	return &Checkpoint{SessionID: sessionID, Tag: tag, History: history}, nil
}
