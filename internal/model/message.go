package model

import "time"

// Message 关于某个商品的一条单向消息
// 不变量：sender != receiver；read 一旦为 true 不再回到 false
type Message struct {
	ID         string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ItemID     string    `json:"item_id" gorm:"type:varchar(36);index:idx_msg_item_created;not null"`
	SenderID   string    `json:"sender_id" gorm:"type:varchar(36);index:idx_msg_sender;not null"`
	ReceiverID string    `json:"receiver_id" gorm:"type:varchar(36);index:idx_msg_receiver_read;not null"`
	Body       string    `json:"message" gorm:"column:message;type:text;not null"`
	Read       bool      `json:"read" gorm:"index:idx_msg_receiver_read;not null;default:false"`
	CreatedAt  time.Time `json:"created_at" gorm:"index:idx_msg_item_created;not null"`
}

func (Message) TableName() string { return "marketplace_messages" }

// Involves reports whether userID is the sender or the receiver.
func (m *Message) Involves(userID string) bool {
	return m.SenderID == userID || m.ReceiverID == userID
}

// Counterpart returns the other participant relative to userID.
func (m *Message) Counterpart(userID string) string {
	if m.SenderID == userID {
		return m.ReceiverID
	}
	return m.SenderID
}

// ConversationKey returns the identity of the conversation this message belongs to.
func (m *Message) ConversationKey() string {
	return ConversationKey(m.ItemID, m.SenderID, m.ReceiverID)
}

// Before orders messages by creation time, then id.
func (m *Message) Before(o *Message) bool {
	if !m.CreatedAt.Equal(o.CreatedAt) {
		return m.CreatedAt.Before(o.CreatedAt)
	}
	return m.ID < o.ID
}
