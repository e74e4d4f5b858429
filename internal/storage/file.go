package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"noticer/internal/task"
	logx "noticer/pkg/logx"
)

const fileCompactEvery = 500

// fileStore keeps all tasks in memory and persists them as:
//   - <prefix>.tasks.snapshot.json (periodic snapshot)
//   - <prefix>.tasks.journal.jsonl (append-only journal of creates and run updates)
//
// The journal is compacted into the snapshot every fileCompactEvery writes
// and on Close.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journal      *os.File

	tasks  map[int64]row
	nextID int64
	writes int
}

type journalRecord struct {
	Op   string `json:"op"` // "create" | "run"
	Task row    `json:"task"`
}

type snapshot struct {
	NextID int64 `json:"next_id"`
	Tasks  []row `json:"tasks"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	st := &fileStore{
		log:          log,
		snapshotPath: prefix + ".tasks.snapshot.json",
		tasks:        map[int64]row{},
		nextID:       1,
	}
	journalPath := prefix + ".tasks.journal.jsonl"

	if err := st.loadSnapshot(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	if err := st.replayJournal(journalPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("replay journal: %w", err)
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	st.journal = jf
	return st, nil
}

func (s *fileStore) List(ctx context.Context) ([]task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil, fmt.Errorf("%w: file store closed", ErrUnavailable)
	}
	out := make([]task.Task, 0, len(s.tasks))
	for _, r := range s.tasks {
		out = append(out, r.task())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fileStore) Get(ctx context.Context, id int64) (task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return task.Task{}, fmt.Errorf("%w: file store closed", ErrUnavailable)
	}
	r, ok := s.tasks[id]
	if !ok {
		return task.Task{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return r.task(), nil
}

func (s *fileStore) Save(ctx context.Context, t task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return fmt.Errorf("%w: file store closed", ErrUnavailable)
	}
	cur, ok := s.tasks[t.ID]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrNotFound, t.ID)
	}
	upd := toRow(t)
	cur.ExecuteTimes = upd.ExecuteTimes
	cur.LastExecutedAt = upd.LastExecutedAt
	if err := s.appendLocked(journalRecord{Op: "run", Task: row{ID: cur.ID, ExecuteTimes: cur.ExecuteTimes, LastExecutedAt: cur.LastExecutedAt}}); err != nil {
		return err
	}
	s.tasks[t.ID] = cur
	s.maybeCompactLocked()
	return nil
}

func (s *fileStore) Create(ctx context.Context, t task.Task) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return 0, fmt.Errorf("%w: file store closed", ErrUnavailable)
	}
	r := toRow(t)
	r.ID = s.nextID
	if err := s.appendLocked(journalRecord{Op: "create", Task: r}); err != nil {
		return 0, err
	}
	s.tasks[r.ID] = r
	s.nextID++
	s.maybeCompactLocked()
	return r.ID, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	err := s.compactLocked()
	if cerr := s.journal.Close(); err == nil {
		err = cerr
	}
	s.journal = nil
	return err
}

func (s *fileStore) appendLocked(rec journalRecord) error {
	if err := json.NewEncoder(s.journal).Encode(rec); err != nil {
		return fmt.Errorf("%w: append journal: %w", ErrUnavailable, err)
	}
	s.writes++
	return nil
}

// maybeCompactLocked runs after the in-memory state holds the journaled
// write, so the snapshot covers every record the truncated journal held.
func (s *fileStore) maybeCompactLocked() {
	if s.writes%fileCompactEvery != 0 {
		return
	}
	if err := s.compactLocked(); err != nil {
		s.log.Warn("task journal compact failed", logx.Err(err))
	}
}

func (s *fileStore) compactLocked() error {
	snap := snapshot{NextID: s.nextID, Tasks: make([]row, 0, len(s.tasks))}
	for _, r := range s.tasks {
		snap.Tasks = append(snap.Tasks, r)
	}
	sort.Slice(snap.Tasks, func(i, j int) bool { return snap.Tasks[i].ID < snap.Tasks[j].ID })

	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(snap); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, 2)
	return err
}

func (s *fileStore) loadSnapshot() error {
	f, err := os.Open(s.snapshotPath)
	if err != nil {
		return err
	}
	defer f.Close()
	var snap snapshot
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return err
	}
	for _, r := range snap.Tasks {
		s.tasks[r.ID] = r
	}
	if snap.NextID > s.nextID {
		s.nextID = snap.NextID
	}
	return nil
}

func (s *fileStore) replayJournal(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var rec journalRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			// A torn final line after a crash is expected; skip it.
			s.log.Debug("skipping bad journal line", logx.Err(err))
			continue
		}
		switch rec.Op {
		case "create":
			s.tasks[rec.Task.ID] = rec.Task
			if rec.Task.ID >= s.nextID {
				s.nextID = rec.Task.ID + 1
			}
		case "run":
			cur, ok := s.tasks[rec.Task.ID]
			if !ok {
				continue
			}
			cur.ExecuteTimes = rec.Task.ExecuteTimes
			cur.LastExecutedAt = rec.Task.LastExecutedAt
			s.tasks[rec.Task.ID] = cur
		}
	}
	return sc.Err()
}

