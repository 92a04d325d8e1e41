package relay

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/ArDangerUS/LegalFlowService-sub000/internal/telegram"
)

// process routes one update through the pipeline. Handler errors are logged
// and surfaced but never abort the loop.
func (e *Engine) process(ctx context.Context, u telegram.Update) {
	switch u.Kind {
	case telegram.UpdateMessage, telegram.UpdateEdited:
		if u.Inbound != nil {
			e.handleInbound(ctx, u.Inbound)
		}
	case telegram.UpdateSelection:
		if u.Selection != nil {
			e.handleSelection(ctx, u.Selection)
		}
	default:
		e.logger.Debug("skipping update",
			zap.Int64("update_id", u.ID), zap.String("kind", u.Kind))
	}
}

func (e *Engine) handleInbound(ctx context.Context, in *telegram.Inbound) {
	conv, err := e.db.GetOrCreateConversation(strconv.FormatInt(in.ChatID, 10), in.ChatName)
	if err != nil {
		e.fail("resolve conversation", err)
		return
	}
	e.cache.Track(*conv)

	e.reconcile(conv, in)

	if in.IsCommand {
		e.handleCommand(ctx, conv, in)
		return
	}
	if !in.IsEdit && !conv.Bound() {
		if conv.Metadata[metaStep] == "" {
			e.beginSelection(ctx, conv)
		} else {
			e.remindSelection(ctx, conv)
		}
	}
}
