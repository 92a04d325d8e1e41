package relay

import (
	"errors"
	"strconv"

	"go.uber.org/zap"

	"github.com/ArDangerUS/LegalFlowService-sub000/internal/store"
	"github.com/ArDangerUS/LegalFlowService-sub000/internal/telegram"
)

// reconcile applies the dedup/edit contract: within a conversation, repeated
// delivery of one external message id stores exactly one row. New messages
// insert and announce; known ids either apply an edit in place or are
// dropped as redeliveries.
func (e *Engine) reconcile(conv *store.Conversation, in *telegram.Inbound) {
	existing, err := e.db.FindMessageByExternalID(conv.ID, in.MessageID)
	if err != nil {
		e.fail("lookup message", err)
		return
	}

	switch {
	case existing == nil:
		e.insertInbound(conv, in)
	case in.IsEdit:
		e.applyEdit(conv, existing, in)
	default:
		e.logger.Debug("duplicate update discarded",
			zap.String("conversation", conv.ID), zap.Int64("external_id", in.MessageID))
	}
}

func (e *Engine) insertInbound(conv *store.Conversation, in *telegram.Inbound) {
	msg := store.Message{
		ConversationID: conv.ID,
		ExternalID:     in.MessageID,
		SenderID:       strconv.FormatInt(in.SenderID, 10),
		SenderName:     in.SenderName,
		Content:        in.Content,
		Type:           in.Type,
		Direction:      store.DirectionIncoming,
		Status:         store.StatusDelivered,
		IsEdited:       in.IsEdit,
		EditedAt:       in.EditedAt,
		Timestamp:      in.Timestamp,
		Attachments:    in.Attachments,
	}

	if err := e.db.InsertMessage(&msg); err != nil {
		if errors.Is(err, store.ErrDuplicateMessage) {
			e.logger.Debug("duplicate insert discarded", zap.Int64("external_id", in.MessageID))
			return
		}
		// Keep the UI responsive on a failed write; the message is cached
		// but not durably committed.
		e.fail("store message", err)
	}

	e.cache.Insert(*conv, msg)
	e.publishNew(msg)

	if err := e.db.IncrementUnread(conv.ID); err != nil {
		e.logger.Error("increment unread", zap.Error(err))
	}
	e.cache.IncrementUnread(conv.ID)
	e.publishUnread()

	if err := e.db.TouchConversation(conv.ID, msg.Timestamp); err != nil {
		e.logger.Error("touch conversation", zap.Error(err))
	}

	e.logger.Info("message ingested",
		zap.String("conversation", conv.ID),
		zap.String("type", msg.Type),
		zap.String("sender", msg.SenderName))
}

func (e *Engine) applyEdit(conv *store.Conversation, existing *store.Message, in *telegram.Inbound) {
	if err := e.db.ApplyEdit(existing.ID, in.Content, in.Timestamp, in.EditedAt, in.Attachments); err != nil {
		e.fail("apply edit", err)
	}

	updated := *existing
	updated.Content = in.Content
	updated.Timestamp = in.Timestamp
	updated.IsEdited = true
	updated.EditedAt = in.EditedAt
	updated.Attachments = in.Attachments

	e.cache.Update(conv.ID, updated)
	e.publishUpdated(updated)

	e.logger.Info("message edit applied",
		zap.String("conversation", conv.ID), zap.String("id", existing.ID))
}
