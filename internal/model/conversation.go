package model

import "time"

// ConversationKey 会话标识：(item, min(a,b), max(a,b))，与谁最后发言无关
func ConversationKey(itemID, a, b string) string {
	if b < a {
		a, b = b, a
	}
	return itemID + ":" + a + ":" + b
}

// Conversation 由消息派生的会话视图（不落表）
type Conversation struct {
	ID                   string    `json:"conversation_id"`
	ItemID               string    `json:"item_id"`
	ItemTitle            string    `json:"item_title"`
	CounterpartID        string    `json:"other_user_id"`
	CounterpartUsername  string    `json:"other_username"`
	CounterpartAvatarURL *string   `json:"other_avatar_url,omitempty"`
	LastMessage          string    `json:"last_message"`
	LastMessageID        string    `json:"last_message_id"`
	LastSenderID         string    `json:"last_sender_id"`
	LastMessageAt        time.Time `json:"last_message_time"`
	UnreadCount          int       `json:"unread_count"`
}

// ConversationRef 会话在某个用户视角下的定位：商品 + 对方
type ConversationRef struct {
	ItemID        string `json:"item_id"`
	CounterpartID string `json:"counterpart_id"`
}

// Key returns the conversation identity for viewerID.
func (r ConversationRef) Key(viewerID string) string {
	return ConversationKey(r.ItemID, viewerID, r.CounterpartID)
}

// Matches reports whether m belongs to this conversation as seen by viewerID.
func (r ConversationRef) Matches(viewerID string, m *Message) bool {
	if m.ItemID != r.ItemID {
		return false
	}
	return (m.SenderID == viewerID && m.ReceiverID == r.CounterpartID) ||
		(m.SenderID == r.CounterpartID && m.ReceiverID == viewerID)
}
