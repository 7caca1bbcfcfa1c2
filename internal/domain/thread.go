package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ThreadMessage is one record of a thread's ordered message list. The list
// is persisted as a jsonb array on the thread row.
type ThreadMessage struct {
	Role    string            `json:"role"`
	Content string            `json:"content"`
	TS      time.Time         `json:"ts"`
	Meta    map[string]string `json:"meta,omitempty"`
}

type ChatThread struct {
	ID     int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`

	Title    string `gorm:"not null;default:'New Conversation'" json:"title"`
	Tone     string `gorm:"not null;default:'PlainClinical'" json:"tone"`
	Language string `gorm:"not null;default:'en-US'" json:"lang"`

	Messages datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"messages"`
	Archived bool           `gorm:"not null;default:false;index" json:"archived"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;index" json:"updated_at"`
}

func (ChatThread) TableName() string { return "chat_thread" }

// DecodeMessages unmarshals the persisted message array. An empty or null
// column decodes to an empty slice.
func (t *ChatThread) DecodeMessages() ([]ThreadMessage, error) {
	if len(t.Messages) == 0 {
		return []ThreadMessage{}, nil
	}
	var msgs []ThreadMessage
	if err := json.Unmarshal(t.Messages, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func EncodeMessages(msgs []ThreadMessage) (datatypes.JSON, error) {
	raw, err := json.Marshal(msgs)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
