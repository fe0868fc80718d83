package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "spawnbot/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.alerts.jsonl        (append-only JSON Lines)
//   - <prefix>.sent.snapshot.json  (periodic snapshot)
//   - <prefix>.sent.journal.jsonl  (append-only journal)
//
// The journal is periodically compacted into the snapshot.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	alertFile *os.File

	sentSnapshotPath string
	sentJournalFile  *os.File
	sent             map[string]int64 // key -> spawn instant, unix milli

	sentWrites int
}

type sentMarker struct {
	Key     string `json:"key"`
	SpawnAt int64  `json:"spawn_at"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	alertsPath := prefix + ".alerts.jsonl"
	snapPath := prefix + ".sent.snapshot.json"
	journalPath := prefix + ".sent.journal.jsonl"

	af, err := os.OpenFile(alertsPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	// Load sent markers from snapshot + journal.
	sent := map[string]int64{}
	_ = loadSentSnapshot(snapPath, sent)
	_ = replaySentJournal(journalPath, sent)

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		_ = af.Close()
		return nil, err
	}

	return &fileStore{
		log:              log,
		alertFile:        af,
		sentSnapshotPath: snapPath,
		sentJournalFile:  jf,
		sent:             sent,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err1, err2 error
	if s.alertFile != nil {
		err1 = s.alertFile.Close()
		s.alertFile = nil
	}
	if s.sentJournalFile != nil {
		err2 = s.sentJournalFile.Close()
		s.sentJournalFile = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

func (s *fileStore) AppendAlert(ctx context.Context, e AlertEntry) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.alertFile == nil {
		return errors.New("alert file closed")
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	return json.NewEncoder(s.alertFile).Encode(e)
}

func (s *fileStore) PutSent(ctx context.Context, key string, spawnAt time.Time) error {
	_ = ctx
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	ms := spawnAt.UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sentJournalFile == nil {
		return errors.New("sent journal closed")
	}
	s.sent[key] = ms

	// Append journal record.
	if err := json.NewEncoder(s.sentJournalFile).Encode(sentMarker{Key: key, SpawnAt: ms}); err != nil {
		return err
	}
	s.sentWrites++
	if s.sentWrites%1000 == 0 {
		// Best-effort compact.
		if err := s.compactLocked(); err != nil {
			s.log.Debug("sent-marker compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) LoadSent(ctx context.Context) (map[string]time.Time, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]time.Time, len(s.sent))
	for k, ms := range s.sent {
		out[k] = time.UnixMilli(ms)
	}
	return out, nil
}

func (s *fileStore) PruneSent(ctx context.Context, cutoff time.Time) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	cut := cutoff.UnixMilli()
	changed := false
	for k, ms := range s.sent {
		if ms < cut {
			delete(s.sent, k)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.compactLocked()
}

func (s *fileStore) compactLocked() error {
	tmp := s.sentSnapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.sent); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.sentSnapshotPath); err != nil {
		return err
	}
	// Truncate journal.
	if err := s.sentJournalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.sentJournalFile.Seek(0, 2)
	return err
}

func loadSentSnapshot(path string, out map[string]int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]int64
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

func replaySentJournal(path string, out map[string]int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r sentMarker
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		if r.Key == "" {
			continue
		}
		out[r.Key] = r.SpawnAt
	}
	return sc.Err()
}
