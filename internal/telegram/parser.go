package telegram

import (
	"fmt"

	"github.com/ArDangerUS/LegalFlowService-sub000/internal/store"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Update kinds produced by ParseUpdate.
const (
	UpdateMessage   = "message"
	UpdateEdited    = "edited"
	UpdateSelection = "selection"
	UpdateIgnored   = "ignored"
)

// unsupportedContent is the sentinel for payload shapes the normalizer does
// not recognize. The loop must never stall on one bad item.
const unsupportedContent = "Unsupported message"

// Update is one transport-delivered event, classified and normalized.
type Update struct {
	ID        int64
	Kind      string
	Inbound   *Inbound
	Selection *Selection
}

// Inbound is a normalized message candidate ready for ingestion.
type Inbound struct {
	ChatID      int64
	ChatName    string
	MessageID   int64
	SenderID    int64
	SenderName  string
	Content     string
	Type        string
	Attachments []store.Attachment
	Timestamp   int64 // unix millis
	IsEdit      bool
	EditedAt    int64 // unix millis, edits only
	IsCommand   bool
	Command     string
	CommandArgs string
}

// Selection is a menu-choice callback event carrying an opaque token.
type Selection struct {
	CallbackID string
	ChatID     int64
	ChatName   string
	SenderID   int64
	SenderName string
	Token      string
}

// ParseUpdate classifies a raw transport update. Updates that are neither a
// message, an edit, nor a selection are marked ignored; the poller advances
// past them without processing.
func ParseUpdate(u tgbotapi.Update) Update {
	out := Update{ID: int64(u.UpdateID), Kind: UpdateIgnored}

	switch {
	case u.Message != nil:
		out.Kind = UpdateMessage
		out.Inbound = parseInbound(u.Message, false)
	case u.EditedMessage != nil:
		out.Kind = UpdateEdited
		out.Inbound = parseInbound(u.EditedMessage, true)
	case u.CallbackQuery != nil:
		sel := parseSelection(u.CallbackQuery)
		if sel != nil {
			out.Kind = UpdateSelection
			out.Selection = sel
		}
	}
	return out
}

func parseInbound(m *tgbotapi.Message, isEdit bool) *Inbound {
	content, msgType, attachments := normalize(m)

	in := &Inbound{
		MessageID:   int64(m.MessageID),
		Content:     content,
		Type:        msgType,
		Attachments: attachments,
		Timestamp:   int64(m.Date) * 1000,
		IsEdit:      isEdit,
	}
	if m.Chat != nil {
		in.ChatID = m.Chat.ID
		in.ChatName = chatName(m.Chat)
	}
	if m.From != nil {
		in.SenderID = m.From.ID
		in.SenderName = senderName(m.From)
	}
	if isEdit && m.EditDate != 0 {
		in.EditedAt = int64(m.EditDate) * 1000
	}
	if m.IsCommand() {
		in.IsCommand = true
		in.Command = m.Command()
		in.CommandArgs = m.CommandArguments()
	}
	return in
}

func parseSelection(q *tgbotapi.CallbackQuery) *Selection {
	if q.Message == nil || q.Message.Chat == nil {
		return nil
	}
	sel := &Selection{
		CallbackID: q.ID,
		ChatID:     q.Message.Chat.ID,
		ChatName:   chatName(q.Message.Chat),
		Token:      q.Data,
	}
	if q.From != nil {
		sel.SenderID = q.From.ID
		sel.SenderName = senderName(q.From)
	}
	return sel
}

// normalize converts a raw payload into (content, messageType, attachments).
// Pure and total: every shape yields non-empty content, unrecognized shapes
// yield the sentinel with no attachments.
func normalize(m *tgbotapi.Message) (string, string, []store.Attachment) {
	switch {
	case m.Text != "":
		return m.Text, store.TypeText, nil

	case len(m.Photo) > 0:
		best := largestPhoto(m.Photo)
		att := store.Attachment{
			FileSize:       int64(best.FileSize),
			MimeType:       "image/jpeg",
			ExternalFileID: best.FileID,
			Width:          best.Width,
			Height:         best.Height,
		}
		if len(m.Photo) > 1 {
			thumb := m.Photo[0]
			att.ThumbFileID = thumb.FileID
			att.ThumbWidth = thumb.Width
			att.ThumbHeight = thumb.Height
		}
		return caption(m, "Photo"), store.TypeImage, []store.Attachment{att}

	case m.Document != nil:
		d := m.Document
		att := store.Attachment{
			FileName:       d.FileName,
			FileSize:       int64(d.FileSize),
			MimeType:       d.MimeType,
			ExternalFileID: d.FileID,
		}
		applyThumb(&att, d.Thumbnail)
		fallback := d.FileName
		if fallback == "" {
			fallback = "Document"
		}
		return caption(m, fallback), store.TypeDocument, []store.Attachment{att}

	case m.Video != nil:
		v := m.Video
		att := store.Attachment{
			FileName:       v.FileName,
			FileSize:       int64(v.FileSize),
			MimeType:       v.MimeType,
			ExternalFileID: v.FileID,
			Duration:       v.Duration,
			Width:          v.Width,
			Height:         v.Height,
		}
		applyThumb(&att, v.Thumbnail)
		fallback := fmt.Sprintf("Video (%s)", formatDuration(v.Duration))
		return caption(m, fallback), store.TypeVideo, []store.Attachment{att}

	case m.Audio != nil:
		a := m.Audio
		att := store.Attachment{
			FileName:       a.FileName,
			FileSize:       int64(a.FileSize),
			MimeType:       a.MimeType,
			ExternalFileID: a.FileID,
			Duration:       a.Duration,
		}
		applyThumb(&att, a.Thumbnail)
		return caption(m, audioTitle(a)), store.TypeAudio, []store.Attachment{att}

	case m.Voice != nil:
		v := m.Voice
		att := store.Attachment{
			FileSize:       int64(v.FileSize),
			MimeType:       v.MimeType,
			ExternalFileID: v.FileID,
			Duration:       v.Duration,
		}
		fallback := fmt.Sprintf("Voice message (%s)", formatDuration(v.Duration))
		return caption(m, fallback), store.TypeVoice, []store.Attachment{att}

	case m.Sticker != nil:
		s := m.Sticker
		att := store.Attachment{
			FileSize:       int64(s.FileSize),
			MimeType:       "image/webp",
			ExternalFileID: s.FileID,
			Width:          s.Width,
			Height:         s.Height,
		}
		applyThumb(&att, s.Thumbnail)
		fallback := s.Emoji
		if fallback == "" {
			fallback = "Sticker"
		}
		return fallback, store.TypeSticker, []store.Attachment{att}

	default:
		return unsupportedContent, store.TypeText, nil
	}
}

func caption(m *tgbotapi.Message, fallback string) string {
	if m.Caption != "" {
		return m.Caption
	}
	return fallback
}

// largestPhoto picks the variant with the largest reported byte size.
func largestPhoto(sizes []tgbotapi.PhotoSize) tgbotapi.PhotoSize {
	best := sizes[0]
	for _, s := range sizes[1:] {
		if s.FileSize > best.FileSize {
			best = s
		}
	}
	return best
}

func applyThumb(att *store.Attachment, thumb *tgbotapi.PhotoSize) {
	if thumb == nil {
		return
	}
	att.ThumbFileID = thumb.FileID
	att.ThumbWidth = thumb.Width
	att.ThumbHeight = thumb.Height
}

func audioTitle(a *tgbotapi.Audio) string {
	switch {
	case a.Performer != "" && a.Title != "":
		return a.Performer + " - " + a.Title
	case a.Title != "":
		return a.Title
	default:
		return "Audio"
	}
}

// formatDuration renders seconds as m:ss.
func formatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// senderName builds a display name: "First Last", first name, @username,
// then "User <id>" as the last resort.
func senderName(u *tgbotapi.User) string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.UserName != "":
		return "@" + u.UserName
	default:
		return fmt.Sprintf("User %d", u.ID)
	}
}

func chatName(c *tgbotapi.Chat) string {
	switch {
	case c.Title != "":
		return c.Title
	case c.FirstName != "":
		name := c.FirstName
		if c.LastName != "" {
			name += " " + c.LastName
		}
		return name
	case c.UserName != "":
		return "@" + c.UserName
	default:
		return "Unknown"
	}
}
