package gateway

import "github.com/mymmrac/telego"

// Kind identifies the content type of a message.
type Kind int

const (
	KindText Kind = iota
	KindPhoto
	KindVideo
	KindDocument
	KindVoice
	KindAudio
	KindSticker
	KindAnimation
	KindOther
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindText:
		return "Text"
	case KindPhoto:
		return "Photo"
	case KindVideo:
		return "Video"
	case KindDocument:
		return "Document"
	case KindVoice:
		return "Voice"
	case KindAudio:
		return "Audio"
	case KindSticker:
		return "Sticker"
	case KindAnimation:
		return "Animation"
	default:
		return "Unknown"
	}
}

// Content is the tagged union of message payloads the gateway can deliver.
// Text carries the message text for KindText; FileID and Caption carry the
// media reference otherwise. SourceChatID and MessageID identify the
// original message so KindOther can fall back to a platform-side forward.
type Content struct {
	Kind         Kind
	Text         string
	FileID       string
	Caption      string
	SourceChatID int64
	MessageID    int
}

// FromMessage maps an incoming Telegram message onto a Content value.
// Animation is checked before Document because the platform sets both
// fields on GIF messages.
func FromMessage(message *telego.Message) Content {
	content := Content{
		Caption:      message.Caption,
		SourceChatID: message.Chat.ID,
		MessageID:    message.MessageID,
	}

	switch {
	case message.Text != "":
		content.Kind = KindText
		content.Text = message.Text
	case len(message.Photo) > 0:
		content.Kind = KindPhoto
		// last entry is the largest resolution
		content.FileID = message.Photo[len(message.Photo)-1].FileID
	case message.Video != nil:
		content.Kind = KindVideo
		content.FileID = message.Video.FileID
	case message.Animation != nil:
		content.Kind = KindAnimation
		content.FileID = message.Animation.FileID
	case message.Document != nil:
		content.Kind = KindDocument
		content.FileID = message.Document.FileID
	case message.Voice != nil:
		content.Kind = KindVoice
		content.FileID = message.Voice.FileID
	case message.Audio != nil:
		content.Kind = KindAudio
		content.FileID = message.Audio.FileID
	case message.Sticker != nil:
		content.Kind = KindSticker
		content.FileID = message.Sticker.FileID
	default:
		content.Kind = KindOther
	}

	return content
}

// Summary returns a short description suitable for session logs.
func (c Content) Summary() string {
	switch c.Kind {
	case KindText:
		return c.Text
	case KindPhoto:
		return "[Photo]"
	case KindVideo:
		return "[Video]"
	case KindDocument:
		return "[Document]"
	case KindVoice:
		return "[Voice Message]"
	case KindAudio:
		return "[Audio]"
	case KindSticker:
		return "[Sticker]"
	case KindAnimation:
		return "[GIF]"
	default:
		return "[Media/File]"
	}
}
