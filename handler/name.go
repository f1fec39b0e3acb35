package handler

import (
	"github.com/lcx/hopnet/message"
	"github.com/lcx/hopnet/net"
)

func (h *Handler) onCheckName(c net.Conn, m *message.CheckNameMessage) {
	h.sender.Send(c, message.NewConfirmName(m.Name, !h.names.IsProfane(m.Name)))
}
