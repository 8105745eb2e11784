package handler

import (
	"github.com/Vasilion/UnyX-Social/internal/live"
	"github.com/Vasilion/UnyX-Social/internal/service"
)

// Handler HTTP 处理器集合
type Handler struct {
	msgService  service.MessageService
	convService service.ConversationService
	itemService service.ItemService
	bridge      *live.Bridge
}

func New(msgs service.MessageService, convs service.ConversationService, items service.ItemService, bridge *live.Bridge) *Handler {
	return &Handler{
		msgService:  msgs,
		convService: convs,
		itemService: items,
		bridge:      bridge,
	}
}
