package store

// Message statuses.
const (
	StatusSending   = "sending"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
)

// Message directions.
const (
	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"
)

// Message types, one per recognized transport payload kind.
const (
	TypeText     = "text"
	TypeImage    = "image"
	TypeDocument = "document"
	TypeVideo    = "video"
	TypeAudio    = "audio"
	TypeVoice    = "voice"
	TypeSticker  = "sticker"
)

// Message is the canonical stored message.
type Message struct {
	ID             string
	ConversationID string
	// ExternalID is the transport-assigned message id, unique within a
	// conversation. Zero for locally synthesized messages (degraded-mode
	// outbound), stored as NULL.
	ExternalID  int64
	SenderID    string
	SenderName  string
	Content     string
	Type        string
	Direction   string
	Status      string
	IsEdited    bool
	EditedAt    int64 // unix millis, 0 = never edited
	Timestamp   int64 // unix millis
	Attachments []Attachment
}

// Attachment is a file carried by a message. ExternalFileID is the opaque
// transport handle usable to fetch bytes later; empty for outgoing files
// whose bytes were already local.
type Attachment struct {
	ID             string
	MessageID      string
	FileName       string
	FileSize       int64
	MimeType       string
	ExternalFileID string
	ThumbFileID    string
	ThumbWidth     int
	ThumbHeight    int
	Duration       int // seconds, audio/video/voice
	Width          int
	Height         int
}

// Conversation is the durable record for one external chat. Metadata carries
// in-progress selection state (selectionStep, regionId, officeId, companyId)
// until the conversation is bound to an office.
type Conversation struct {
	ID             string
	ExternalChatID string
	Name           string
	RegionID       string
	OfficeID       string
	CompanyID      string
	Metadata       map[string]string
	UnreadCount    int
	CreatedAt      int64
	UpdatedAt      int64
}

// Bound reports whether the conversation has completed the selection flow.
func (c *Conversation) Bound() bool {
	return c.OfficeID != ""
}

// Region is a first-level selection choice.
type Region struct {
	ID   string
	Code string
	Name string
}

// Company owns offices.
type Company struct {
	ID   string
	Name string
}

// Office is a second-level selection choice within a region.
type Office struct {
	ID        string
	RegionID  string
	CompanyID string
	Name      string
	Address   string
}

// SearchResult holds a message with a search snippet.
type SearchResult struct {
	Message Message
	Snippet string
}
