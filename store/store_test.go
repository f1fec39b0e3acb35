package store

import (
	"testing"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	s, err := New(fs, &StoreCfg{DataDir: "/data", CacheSize: 4})
	require.NoError(t, err)
	return s, fs
}

func TestSubmitAndGetLevel(t *testing.T) {
	s, fs := newTestStore(t)

	id, err := s.SubmitLevel(`{"tiles":[1,2,3]}`)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)

	raw, err := afero.ReadFile(fs, "/data/"+id.String()+".json")
	require.NoError(t, err)
	assert.Equal(t, `{"tiles":[1,2,3]}`, string(raw))

	data, ok, err := s.GetLevelData(id)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"tiles":[1,2,3]}`, data)

	// bypass the cache
	s.cache.Purge()
	data, ok, err = s.GetLevelData(id)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"tiles":[1,2,3]}`, data)
}

func TestGetLevelDataMissing(t *testing.T) {
	s, _ := newTestStore(t)
	data, ok, err := s.GetLevelData(uuid.New())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, data)
}

func TestScoreboardAscending(t *testing.T) {
	s, fs := newTestStore(t)
	id, err := s.SubmitLevel("{}")
	require.NoError(t, err)

	ok, err := s.SubmitScore(id, "Ann", 5000)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.SubmitScore(id, "Bob", 3000)
	require.NoError(t, err)
	assert.True(t, ok)

	board, err := s.GetScoreboard(id)
	require.NoError(t, err)
	require.NotNil(t, board[0])
	require.NotNil(t, board[1])
	assert.Equal(t, "Bob", board[0].Name)
	assert.Equal(t, int64(3000), board[0].Time)
	assert.Equal(t, "Ann", board[1].Name)
	for i := 2; i < len(board); i++ {
		assert.Nil(t, board[i])
	}

	raw, err := afero.ReadFile(fs, "/data/"+id.String()+"_scores.txt")
	require.NoError(t, err)
	assert.Equal(t, "Bob=3000\nAnn=5000\n", string(raw))
}

func TestScoreboardKeepsTopFive(t *testing.T) {
	s, _ := newTestStore(t)
	id, err := s.SubmitLevel("{}")
	require.NoError(t, err)

	times := []int64{900, 100, 700, 300, 500}
	for i, tm := range times {
		ok, err := s.SubmitScore(id, string(rune('a'+i)), tm)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	ok, err := s.SubmitScore(id, "slow", 1000)
	require.NoError(t, err)
	assert.False(t, ok, "a time slower than every slot does not qualify")

	ok, err = s.SubmitScore(id, "fast", 50)
	require.NoError(t, err)
	assert.True(t, ok)

	board, err := s.GetScoreboard(id)
	require.NoError(t, err)
	var got []int64
	for _, e := range board {
		require.NotNil(t, e)
		got = append(got, e.Time)
	}
	assert.Equal(t, []int64{50, 100, 300, 500, 700}, got)
}

func TestScoreTiesKeepEarlierRunFirst(t *testing.T) {
	s, _ := newTestStore(t)
	id, err := s.SubmitLevel("{}")
	require.NoError(t, err)

	_, err = s.SubmitScore(id, "first", 1000)
	require.NoError(t, err)
	_, err = s.SubmitScore(id, "second", 1000)
	require.NoError(t, err)

	board, err := s.GetScoreboard(id)
	require.NoError(t, err)
	assert.Equal(t, "first", board[0].Name)
	assert.Equal(t, "second", board[1].Name)
}

func TestScoreboardWithoutFileIsEmpty(t *testing.T) {
	s, _ := newTestStore(t)
	board, err := s.GetScoreboard(uuid.New())
	require.NoError(t, err)
	for _, e := range board {
		assert.Nil(t, e)
	}
}

func TestSubmitScoreRejects(t *testing.T) {
	s, fs := newTestStore(t)
	id, err := s.SubmitLevel("{}")
	require.NoError(t, err)

	for _, name := range []string{"", "a=b", "line\nbreak"} {
		ok, err := s.SubmitScore(id, name, 10)
		assert.ErrorIs(t, err, ErrInvalidName)
		assert.False(t, ok)
	}

	unknown := uuid.New()
	ok, err := s.SubmitScore(unknown, "Ann", 10)
	require.NoError(t, err)
	assert.False(t, ok)
	exists, err := afero.Exists(fs, "/data/"+unknown.String()+"_scores.txt")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMalformedScoreLinesAreSkipped(t *testing.T) {
	s, fs := newTestStore(t)
	id, err := s.SubmitLevel("{}")
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, "/data/"+id.String()+"_scores.txt",
		[]byte("Cat=700\ngarbage\nDan=abc\n\nEve=200\n"), 0o644))

	board, err := s.GetScoreboard(id)
	require.NoError(t, err)
	assert.Equal(t, "Eve", board[0].Name)
	assert.Equal(t, "Cat", board[1].Name)
	assert.Nil(t, board[2])
}

func TestGetLevelsExcludesAndLimits(t *testing.T) {
	s, fs := newTestStore(t)

	var ids []uuid.UUID
	for i := 0; i < 4; i++ {
		id, err := s.SubmitLevel("{}")
		require.NoError(t, err)
		ids = append(ids, id)
		_, err = s.SubmitScore(id, "Ann", 100)
		require.NoError(t, err)
	}
	require.NoError(t, afero.WriteFile(fs, "/data/not-a-level.json", []byte("{}"), 0o644))

	got, err := s.GetLevels(10, []string{ids[0].String(), "junk"})
	require.NoError(t, err)
	assert.ElementsMatch(t, ids[1:], got)

	got, err = s.GetLevels(2, nil)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.GetLevels(0, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStoreCfgValidate(t *testing.T) {
	assert.Error(t, (&StoreCfg{}).Validate())
	assert.Error(t, (&StoreCfg{DataDir: "d", CacheSize: -1}).Validate())
	assert.NoError(t, (&StoreCfg{DataDir: "d"}).Validate())
}
