package outbox

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ArDangerUS/LegalFlowService-sub000/internal/bus"
	"github.com/ArDangerUS/LegalFlowService-sub000/internal/cache"
	"github.com/ArDangerUS/LegalFlowService-sub000/internal/health"
	"github.com/ArDangerUS/LegalFlowService-sub000/internal/store"
	"github.com/ArDangerUS/LegalFlowService-sub000/internal/telegram"
)

// MessageSender is the transport surface needed for outbound delivery.
type MessageSender interface {
	SendText(ctx context.Context, chatID int64, text string) (telegram.Sent, error)
	SendFile(ctx context.Context, chatID int64, file telegram.FileUpload) (telegram.Sent, error)
}

// ConnectionState exposes the health monitor's current snapshot.
type ConnectionState interface {
	Health() health.Snapshot
}

// Sender delivers operator-originated messages to the external chat and
// records them alongside inbound history.
type Sender struct {
	db     *store.DB
	cache  *cache.Cache
	sender MessageSender
	state  ConnectionState
	bus    *bus.Bus
	logger *zap.Logger
}

// NewSender creates an outbound sender.
func NewSender(db *store.DB, c *cache.Cache, sender MessageSender, state ConnectionState, b *bus.Bus, logger *zap.Logger) *Sender {
	return &Sender{
		db:     db,
		cache:  c,
		sender: sender,
		state:  state,
		bus:    b,
		logger: logger.Named("outbox"),
	}
}

// Send delivers text, or a file with text as its caption, to the
// conversation's external chat. The transport's accepted id and timestamp
// become authoritative for the stored record. While degraded the message is
// recorded locally instead, so the operator always sees it; it reaches the
// external party only after reconnection. Reports whether a message record
// was written; on transport failure nothing is written and the call is safe
// to retry.
func (s *Sender) Send(ctx context.Context, conversationID, text string, file *telegram.FileUpload) bool {
	conv, err := s.db.GetConversation(conversationID)
	if err != nil {
		s.logger.Error("load conversation", zap.Error(err))
		return false
	}
	if conv == nil {
		s.logger.Error("unknown conversation", zap.String("conversation", conversationID))
		return false
	}

	chatID, err := strconv.ParseInt(conv.ExternalChatID, 10, 64)
	if err != nil {
		s.logger.Error("bad external chat id",
			zap.String("conversation", conversationID), zap.String("chat", conv.ExternalChatID))
		return false
	}

	msg := store.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Content:        text,
		Type:           store.TypeText,
		Direction:      store.DirectionOutgoing,
		Status:         store.StatusSent,
	}
	if file != nil {
		msg.Type = store.TypeDocument
		if msg.Content == "" {
			msg.Content = file.Name
		}
		msg.Attachments = []store.Attachment{{
			FileName: file.Name,
			FileSize: int64(len(file.Data)),
		}}
	}

	if s.state.Health().State == health.Degraded {
		msg.Timestamp = time.Now().UnixMilli()
		s.logger.Info("recording message locally while degraded",
			zap.String("conversation", conv.ID))
		return s.record(conv, msg)
	}

	var sent telegram.Sent
	if file != nil {
		up := *file
		up.Caption = text
		sent, err = s.sender.SendFile(ctx, chatID, up)
	} else {
		sent, err = s.sender.SendText(ctx, chatID, text)
	}
	if err != nil {
		s.logger.Error("send failed",
			zap.String("conversation", conv.ID), zap.Error(err))
		s.publishStatus(msg.ID, store.StatusFailed)
		return false
	}

	msg.ExternalID = sent.MessageID
	msg.Timestamp = sent.Timestamp
	return s.record(conv, msg)
}

// record runs the shared insert path: store, cache, events. The cache write
// and events still happen on a failed store write so the UI reflects the
// delivered message; it is just not durably committed.
func (s *Sender) record(conv *store.Conversation, msg store.Message) bool {
	if err := s.db.InsertMessage(&msg); err != nil {
		if errors.Is(err, store.ErrDuplicateMessage) {
			s.logger.Debug("duplicate outbound discarded",
				zap.Int64("external_id", msg.ExternalID))
			return true
		}
		s.logger.Error("store outbound message", zap.Error(err))
		s.publishError("store outbound message: " + err.Error())
	}

	s.cache.Insert(*conv, msg)
	if err := s.db.TouchConversation(conv.ID, msg.Timestamp); err != nil {
		s.logger.Error("touch conversation", zap.Error(err))
	}

	s.bus.Publish(bus.Event{
		Kind:      bus.KindMessageNew,
		Timestamp: time.Now(),
		Payload:   msg,
	})
	s.publishStatus(msg.ID, msg.Status)

	s.logger.Info("message sent",
		zap.String("conversation", conv.ID),
		zap.String("type", msg.Type),
		zap.Int64("external_id", msg.ExternalID))
	return true
}

func (s *Sender) publishStatus(messageID, status string) {
	s.bus.Publish(bus.Event{
		Kind:      bus.KindMessageStatus,
		Timestamp: time.Now(),
		Payload:   bus.StatusUpdate{MessageID: messageID, Status: status},
	})
}

func (s *Sender) publishError(message string) {
	s.bus.Publish(bus.Event{
		Kind:      bus.KindError,
		Timestamp: time.Now(),
		Payload:   bus.ErrorNotice{Message: message},
	})
}
