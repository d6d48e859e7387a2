package chat

import "time"

type Message struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	Principal string    `gorm:"type:varchar(128);not null;index:idx_chat_msg_principal" json:"-"`
	Role      string    `gorm:"type:varchar(16);not null" json:"role"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func (Message) TableName() string { return "chat_messages" }
