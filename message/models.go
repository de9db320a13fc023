package message

import (
	"time"

	"mediationflow/identity"
)

// Type enumerates the supported message media.
type Type string

const (
	TypeText     Type = "text"
	TypeImage    Type = "image"
	TypeDocument Type = "document"
	TypeVoice    Type = "voice"
)

// Message mirrors the messages table. Messages are append-only: once created
// they are never mutated or deleted.
type Message struct {
	ID              string
	SessionID       string
	SenderID        string
	SenderRole      identity.Role
	Type            Type
	Content         *string
	FileURL         *string
	FileName        *string
	DurationSeconds *int
	CreatedAt       time.Time
}

// AppendParams enumerates the fields required to append a message. Media
// types carry the reference returned by a prior successful intake; voice
// additionally carries the client-timed recording length in whole seconds.
type AppendParams struct {
	SessionID       string
	SenderID        string
	SenderRole      identity.Role
	Type            Type
	Content         string
	FileURL         string
	FileName        string
	DurationSeconds int
}
