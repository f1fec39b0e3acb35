package handler

import (
	"github.com/google/uuid"

	"github.com/lcx/hopnet/async"
	"github.com/lcx/hopnet/log"
	"github.com/lcx/hopnet/message"
	"github.com/lcx/hopnet/net"
)

func (h *Handler) onSubmitLevel(c net.Conn, m *message.SubmitLevelMessage) {
	async.Go(h.runner, func() (uuid.UUID, error) {
		return h.store.SubmitLevel(m.Data)
	}, func(id uuid.UUID, err error) {
		if err != nil {
			log.Error().Str("name", m.Name).Err(err).Msg("submit level failed")
			h.sender.Send(c, message.NewLevelSubmitted(m.Name, "", false))
			return
		}
		h.sender.Send(c, message.NewLevelSubmitted(m.Name, id.String(), true))
	})
}

func (h *Handler) onRequestLevels(c net.Conn, m *message.RequestLevelsMessage) {
	count := min(m.Count, MaxLevelsPerRequest)
	async.Go(h.runner, func() ([]uuid.UUID, error) {
		return h.store.GetLevels(count, m.Exclude)
	}, func(ids []uuid.UUID, err error) {
		if err != nil {
			log.Error().Err(err).Msg("list levels failed")
			return
		}
		out := make([]string, len(ids))
		for i, id := range ids {
			out[i] = id.String()
		}
		h.sender.Send(c, message.NewLevels(out))
	})
}

type levelData struct {
	data  string
	found bool
}

func (h *Handler) onRequestLevelData(c net.Conn, m *message.RequestLevelDataMessage) {
	id, ok := parseID(m.Kind(), m.UUID)
	if !ok {
		return
	}
	async.Go(h.runner, func() (levelData, error) {
		data, found, err := h.store.GetLevelData(id)
		return levelData{data: data, found: found}, err
	}, func(r levelData, err error) {
		if err != nil {
			log.Error().Stringer("uuid", id).Err(err).Msg("read level failed")
			return
		}
		if !r.found {
			log.Debug().Stringer("uuid", id).Msg("level not found")
			return
		}
		h.sender.Send(c, message.NewLevelData(m.UUID, r.data))
	})
}
