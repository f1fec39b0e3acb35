package handler

import (
	"github.com/lcx/hopnet/async"
	"github.com/lcx/hopnet/log"
	"github.com/lcx/hopnet/message"
	"github.com/lcx/hopnet/net"
)

func (h *Handler) onRequestScoreboard(c net.Conn, m *message.RequestScoreboardMessage) {
	id, ok := parseID(m.Kind(), m.UUID)
	if !ok {
		return
	}
	async.Go(h.runner, func() ([message.ScoreboardSize]*message.ScoreboardEntry, error) {
		return h.store.GetScoreboard(id)
	}, func(board [message.ScoreboardSize]*message.ScoreboardEntry, err error) {
		if err != nil {
			log.Error().Stringer("uuid", id).Err(err).Msg("read scoreboard failed")
			return
		}
		h.sender.Send(c, message.NewScoreboard(m.UUID, board))
	})
}

// onSubmitScore records a run. Names the filter rejects are not recorded.
func (h *Handler) onSubmitScore(_ net.Conn, m *message.SubmitScoreMessage) {
	id, ok := parseID(m.Kind(), m.UUID)
	if !ok {
		return
	}
	if h.names.IsProfane(m.Name) {
		log.Info().Str("name", m.Name).Msg("score with rejected name ignored")
		return
	}
	async.Go(h.runner, func() (bool, error) {
		return h.store.SubmitScore(id, m.Name, m.Time)
	}, func(accepted bool, err error) {
		if err != nil {
			log.Warn().Stringer("uuid", id).Str("name", m.Name).Err(err).Msg("submit score failed")
			return
		}
		log.Debug().Stringer("uuid", id).Str("name", m.Name).Int64("time", m.Time).Bool("accepted", accepted).Msg("score submitted")
	})
}
