// Package store is the server's data layer: one JSON file per level and one
// score file per level, both named by the level UUID.
package store

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"github.com/spf13/afero"

	"github.com/lcx/hopnet/log"
	"github.com/lcx/hopnet/message"
	"github.com/lcx/hopnet/metrics"
)

const (
	_levelSuffix = ".json"
	_scoreSuffix = "_scores.txt"
)

// ErrInvalidName rejects names the score file format cannot hold.
var ErrInvalidName = errors.New("invalid score name")

// StoreCfg configures the data layer ("store" section).
type StoreCfg struct {
	DataDir   string `mapstructure:"dataDir"`
	CacheSize int    `mapstructure:"cacheSize"`
}

// GetName implements config.Config.
func (c *StoreCfg) GetName() string {
	return "store"
}

// Validate implements config.Config.
func (c *StoreCfg) Validate() error {
	if c.DataDir == "" {
		return errors.New("dataDir cannot be empty")
	}
	if c.CacheSize < 0 {
		return errors.New("cacheSize cannot be negative")
	}
	return nil
}

// Store reads and writes level and score files. It is safe for concurrent
// use; score updates are serialized.
type Store struct {
	fs        afero.Fs
	dir       string
	scoreLock sync.Mutex
	cache     *lru.Cache
}

// New prepares cfg.DataDir on fs.
func New(fs afero.Fs, cfg *StoreCfg) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := fs.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	size := cfg.CacheSize
	if size == 0 {
		size = 128
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Store{fs: fs, dir: cfg.DataDir, cache: cache}, nil
}

func (s *Store) levelPath(id uuid.UUID) string {
	return filepath.Join(s.dir, id.String()+_levelSuffix)
}

func (s *Store) scorePath(id uuid.UUID) string {
	return filepath.Join(s.dir, id.String()+_scoreSuffix)
}

// writeFile replaces path through a temporary file so readers never see a
// partial write.
func (s *Store) writeFile(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return err
	}
	return s.fs.Rename(tmp, path)
}

// SubmitLevel stores data under a fresh UUID.
func (s *Store) SubmitLevel(data string) (uuid.UUID, error) {
	id := uuid.New()
	if err := s.writeFile(s.levelPath(id), []byte(data)); err != nil {
		return uuid.Nil, fmt.Errorf("write level %s: %w", id, err)
	}
	s.cache.Add(id, data)
	metrics.IncrCounterWithGroup("store", "level_submit_total", 1)
	log.Info().Stringer("uuid", id).Int("bytes", len(data)).Msg("level stored")
	return id, nil
}

// GetLevelData returns the stored payload, or ok == false if there is none.
func (s *Store) GetLevelData(id uuid.UUID) (data string, ok bool, _ error) {
	if v, hit := s.cache.Get(id); hit {
		metrics.IncrCounterWithDimGroup("store", "level_cache_total", 1, metrics.Dimension{"result": "hit"})
		return v.(string), true, nil
	}
	metrics.IncrCounterWithDimGroup("store", "level_cache_total", 1, metrics.Dimension{"result": "miss"})

	b, err := afero.ReadFile(s.fs, s.levelPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read level %s: %w", id, err)
	}
	data = string(b)
	s.cache.Add(id, data)
	return data, true, nil
}

// GetLevels returns up to count level ids that are not in exclude, most
// recently stored first.
func (s *Store) GetLevels(count int, exclude []string) ([]uuid.UUID, error) {
	if count <= 0 {
		return nil, nil
	}
	infos, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return nil, fmt.Errorf("list levels: %w", err)
	}

	skip := make(map[uuid.UUID]struct{}, len(exclude))
	for _, e := range exclude {
		if id, err := uuid.Parse(e); err == nil {
			skip[id] = struct{}{}
		}
	}

	type level struct {
		id    uuid.UUID
		mtime int64
	}
	levels := make([]level, 0, len(infos))
	for _, fi := range infos {
		name := fi.Name()
		if fi.IsDir() || !strings.HasSuffix(name, _levelSuffix) {
			continue
		}
		id, err := uuid.Parse(strings.TrimSuffix(name, _levelSuffix))
		if err != nil {
			continue
		}
		if _, ok := skip[id]; ok {
			continue
		}
		levels = append(levels, level{id: id, mtime: fi.ModTime().UnixNano()})
	}
	slices.SortStableFunc(levels, func(a, b level) int {
		if a.mtime != b.mtime {
			if a.mtime > b.mtime {
				return -1
			}
			return 1
		}
		return strings.Compare(a.id.String(), b.id.String())
	})

	if len(levels) > count {
		levels = levels[:count]
	}
	out := make([]uuid.UUID, len(levels))
	for i, l := range levels {
		out[i] = l.id
	}
	return out, nil
}

// LevelExists reports whether a level file is stored for id.
func (s *Store) LevelExists(id uuid.UUID) (bool, error) {
	if _, hit := s.cache.Get(id); hit {
		return true, nil
	}
	return afero.Exists(s.fs, s.levelPath(id))
}

// GetScoreboard returns the level's entries, fastest first. A level without
// a score file has all slots nil.
func (s *Store) GetScoreboard(id uuid.UUID) ([message.ScoreboardSize]*message.ScoreboardEntry, error) {
	var board [message.ScoreboardSize]*message.ScoreboardEntry

	s.scoreLock.Lock()
	entries, err := s.readScores(id)
	s.scoreLock.Unlock()
	if err != nil {
		return board, err
	}
	for i := 0; i < len(entries) && i < message.ScoreboardSize; i++ {
		board[i] = entries[i]
	}
	return board, nil
}

// SubmitScore inserts name/time into the level's scoreboard. It returns
// false when the time does not make the top entries or the level is unknown.
func (s *Store) SubmitScore(id uuid.UUID, name string, time int64) (bool, error) {
	if name == "" || strings.ContainsAny(name, "=\r\n") {
		return false, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	exists, err := s.LevelExists(id)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}

	s.scoreLock.Lock()
	defer s.scoreLock.Unlock()

	entries, err := s.readScores(id)
	if err != nil {
		return false, err
	}

	// after every entry with time <= the new one, so ties keep the older run first
	pos := len(entries)
	for i, e := range entries {
		if time < e.Time {
			pos = i
			break
		}
	}
	if pos >= message.ScoreboardSize {
		return false, nil
	}
	entries = slices.Insert(entries, pos, &message.ScoreboardEntry{Name: name, Time: time})
	if len(entries) > message.ScoreboardSize {
		entries = entries[:message.ScoreboardSize]
	}

	if err := s.writeScores(id, entries); err != nil {
		return false, err
	}
	metrics.IncrCounterWithGroup("store", "score_accept_total", 1)
	return true, nil
}

// readScores parses the score file. Callers hold scoreLock.
func (s *Store) readScores(id uuid.UUID) ([]*message.ScoreboardEntry, error) {
	f, err := s.fs.Open(s.scorePath(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open scores %s: %w", id, err)
	}
	defer f.Close()

	var entries []*message.ScoreboardEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		name, value, ok := strings.Cut(line, "=")
		if !ok {
			log.Warn().Stringer("uuid", id).Str("line", line).Msg("skip malformed score line")
			continue
		}
		t, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			log.Warn().Stringer("uuid", id).Str("line", line).Msg("skip malformed score line")
			continue
		}
		entries = append(entries, &message.ScoreboardEntry{Name: name, Time: t})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read scores %s: %w", id, err)
	}
	slices.SortStableFunc(entries, func(a, b *message.ScoreboardEntry) int {
		switch {
		case a.Time < b.Time:
			return -1
		case a.Time > b.Time:
			return 1
		}
		return 0
	})
	if len(entries) > message.ScoreboardSize {
		entries = entries[:message.ScoreboardSize]
	}
	return entries, nil
}

func (s *Store) writeScores(id uuid.UUID, entries []*message.ScoreboardEntry) error {
	var sb strings.Builder
	for _, e := range entries {
		sb.WriteString(e.Name)
		sb.WriteByte('=')
		sb.WriteString(strconv.FormatInt(e.Time, 10))
		sb.WriteByte('\n')
	}
	if err := s.writeFile(s.scorePath(id), []byte(sb.String())); err != nil {
		return fmt.Errorf("write scores %s: %w", id, err)
	}
	return nil
}
