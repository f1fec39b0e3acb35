package handler

import (
	stdnet "net"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcx/hopnet/async"
	"github.com/lcx/hopnet/message"
	"github.com/lcx/hopnet/namecheck"
	"github.com/lcx/hopnet/net"
	"github.com/lcx/hopnet/server"
	"github.com/lcx/hopnet/store"
)

type stubConn struct{}

func (stubConn) ID() uint64                    { return 1 }
func (stubConn) RemoteAddr() stdnet.Addr       { return &stdnet.TCPAddr{} }
func (stubConn) Connected() bool               { return true }
func (stubConn) Send(message.Message) error    { return nil }
func (stubConn) TrySend(message.Message) error { return nil }
func (stubConn) Close() error                  { return nil }

type recordSender struct {
	mu   sync.Mutex
	sent []message.Message
}

func (s *recordSender) Send(_ net.Conn, m message.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, m)
	return true
}

func (s *recordSender) take() []message.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.sent
	s.sent = nil
	return out
}

type fixture struct {
	h      *Handler
	sender *recordSender
	runner *async.Runner
	store  *store.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.New(afero.NewMemMapFs(), &store.StoreCfg{DataDir: "/levels"})
	require.NoError(t, err)
	f := &fixture{sender: &recordSender{}, runner: async.NewRunner(4), store: st}
	f.h = New(f.sender, f.runner, st, namecheck.NewProfanityFilter(&namecheck.NameCfg{ExtraWords: []string{"badword"}}))
	return f
}

// handle runs one message through the handler and its async completion.
func (f *fixture) handle(m message.Message) []message.Message {
	f.h.Handle(server.Received{Conn: stubConn{}, Message: m})
	f.runner.Wait()
	f.runner.Flush()
	return f.sender.take()
}

func (f *fixture) submitLevel(t *testing.T, data string) string {
	t.Helper()
	replies := f.handle(message.NewSubmitLevel("lvl", data))
	require.Len(t, replies, 1)
	r := replies[0].(*message.LevelSubmittedMessage)
	require.True(t, r.Confirmed)
	return r.UUID
}

func TestSubmitLevelRepliesWithUUID(t *testing.T) {
	f := newFixture(t)
	replies := f.handle(message.NewSubmitLevel("My Level", `{"w":10}`))
	require.Len(t, replies, 1)

	r, ok := replies[0].(*message.LevelSubmittedMessage)
	require.True(t, ok)
	assert.Equal(t, "My Level", r.Name)
	assert.True(t, r.Confirmed)
	_, err := uuid.Parse(r.UUID)
	assert.NoError(t, err)
}

func TestRequestLevelData(t *testing.T) {
	f := newFixture(t)
	id := f.submitLevel(t, `{"w":10}`)

	replies := f.handle(message.NewRequestLevelData(id))
	require.Len(t, replies, 1)
	r := replies[0].(*message.LevelDataMessage)
	assert.Equal(t, id, r.UUID)
	assert.Equal(t, `{"w":10}`, r.Data)

	assert.Empty(t, f.handle(message.NewRequestLevelData(uuid.NewString())), "missing level gets no reply")
}

func TestRequestLevelsExcludes(t *testing.T) {
	f := newFixture(t)
	a := f.submitLevel(t, "{}")
	b := f.submitLevel(t, "{}")

	replies := f.handle(message.NewRequestLevels(10, []string{a}))
	require.Len(t, replies, 1)
	assert.Equal(t, []string{b}, replies[0].(*message.LevelsMessage).UUIDs)
}

func TestScoresListFastestFirst(t *testing.T) {
	f := newFixture(t)
	id := f.submitLevel(t, "{}")

	assert.Empty(t, f.handle(message.NewSubmitScore(id, "Ann", 5000)), "score submission has no reply")
	assert.Empty(t, f.handle(message.NewSubmitScore(id, "Bob", 3000)))

	replies := f.handle(message.NewRequestScoreboard(id))
	require.Len(t, replies, 1)
	sb := replies[0].(*message.ScoreboardMessage)
	assert.Equal(t, id, sb.UUID)
	require.NotNil(t, sb.Scoreboard[0])
	require.NotNil(t, sb.Scoreboard[1])
	assert.Equal(t, "Bob", sb.Scoreboard[0].Name)
	assert.Equal(t, "Ann", sb.Scoreboard[1].Name)
	for i := 2; i < message.ScoreboardSize; i++ {
		assert.Nil(t, sb.Scoreboard[i])
	}
}

func TestScoreboardWithoutScoresHasEmptySlots(t *testing.T) {
	f := newFixture(t)
	id := uuid.NewString()

	replies := f.handle(message.NewRequestScoreboard(id))
	require.Len(t, replies, 1)
	sb := replies[0].(*message.ScoreboardMessage)
	for _, e := range sb.Scoreboard {
		assert.Nil(t, e)
	}
}

func TestProfaneScoreNameNotRecorded(t *testing.T) {
	f := newFixture(t)
	id := f.submitLevel(t, "{}")

	f.handle(message.NewSubmitScore(id, "badword", 10))
	board, err := f.store.GetScoreboard(uuid.MustParse(id))
	require.NoError(t, err)
	assert.Nil(t, board[0])
}

func TestCheckName(t *testing.T) {
	f := newFixture(t)

	replies := f.handle(message.NewCheckName("badword"))
	require.Len(t, replies, 1)
	assert.Equal(t, message.NewConfirmName("badword", false), replies[0])

	replies = f.handle(message.NewCheckName("Ann"))
	require.Len(t, replies, 1)
	assert.True(t, replies[0].(*message.ConfirmNameMessage).IsConfirmed)
}

func TestMalformedUUIDIgnored(t *testing.T) {
	f := newFixture(t)
	for _, m := range []message.Message{
		message.NewRequestScoreboard("not-a-uuid"),
		message.NewRequestLevelData("../../etc/passwd"),
		message.NewSubmitScore("", "Ann", 10),
	} {
		assert.NotPanics(t, func() {
			assert.Empty(t, f.handle(m), m.Kind().String())
		})
	}
}

func TestVersionGateDropsSilently(t *testing.T) {
	f := newFixture(t)

	newer := message.NewCheckName("ann")
	newer.VersionMajor = message.VersionMajor + 1
	assert.Empty(t, f.handle(newer))

	strict := New(f.sender, f.runner, f.store, namecheck.NewProfanityFilter(nil), WithGate(message.Gate{Major: 1, Minor: 3}))
	strict.Handle(server.Received{Conn: stubConn{}, Message: message.NewCheckName("ann")})
	assert.Empty(t, f.sender.take(), "minor version older than required")
}

func TestReplyKindsAreNotRouted(t *testing.T) {
	f := newFixture(t)
	assert.Empty(t, f.handle(message.NewLevels([]string{"x"})))
	assert.Empty(t, f.handle(message.NewConfirmName("ann", true)))
}
