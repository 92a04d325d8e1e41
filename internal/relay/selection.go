package relay

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ArDangerUS/LegalFlowService-sub000/internal/store"
	"github.com/ArDangerUS/LegalFlowService-sub000/internal/telegram"
)

// Conversation metadata keys carrying in-progress selection state. Cleared
// when the conversation is bound to an office.
const (
	metaStep   = "selectionStep"
	metaRegion = "regionId"
)

// Selection steps.
const (
	stepRegion = "region"
	stepOffice = "office"
)

// Choice token prefixes embedded in menu buttons.
const (
	tokenRegion = "region"
	tokenOffice = "office"
)

const staleChoiceNotice = "This menu is no longer active. Send /start to begin again."

// beginSelection opens the region step: the conversation must pick a region,
// then an office, before it is routed to a company.
func (e *Engine) beginSelection(ctx context.Context, conv *store.Conversation) {
	regions, err := e.db.ListRegions()
	if err != nil {
		e.fail("list regions", err)
		return
	}
	if len(regions) == 0 {
		e.logger.Warn("no regions configured, selection skipped",
			zap.String("conversation", conv.ID))
		return
	}

	options := make([]telegram.MenuOption, len(regions))
	for i, r := range regions {
		options[i] = telegram.MenuOption{Label: r.Name, Token: tokenRegion + ":" + r.ID}
	}
	prompt := "Welcome to LegalFlow. Please choose your region to connect with a law office:"
	if err := e.transport.SendMenu(ctx, externalChatID(conv), prompt, options); err != nil {
		e.logger.Error("send region menu", zap.Error(err))
		return
	}

	if err := e.mergeMetadata(conv, map[string]string{metaStep: stepRegion}); err != nil {
		e.fail("persist selection state", err)
	}
}

func (e *Engine) remindSelection(ctx context.Context, conv *store.Conversation) {
	reminder := "Please finish choosing your region and office using the menu above, or send /start to see it again."
	if _, err := e.transport.SendText(ctx, externalChatID(conv), reminder); err != nil {
		e.logger.Debug("selection reminder failed", zap.Error(err))
	}
}

// handleSelection validates a menu choice against the conversation's current
// step. Unknown or stale tokens are rejected with a visible error and leave
// the stored state untouched.
func (e *Engine) handleSelection(ctx context.Context, sel *telegram.Selection) {
	conv, err := e.db.GetOrCreateConversation(strconv.FormatInt(sel.ChatID, 10), sel.ChatName)
	if err != nil {
		e.fail("resolve conversation", err)
		return
	}
	e.cache.Track(*conv)

	kind, id, ok := strings.Cut(sel.Token, ":")
	if !ok || id == "" {
		e.answer(ctx, sel, staleChoiceNotice, true)
		return
	}

	step := conv.Metadata[metaStep]
	switch {
	case kind == tokenRegion && step == stepRegion:
		e.chooseRegion(ctx, conv, sel, id)
	case kind == tokenOffice && step == stepOffice:
		e.chooseOffice(ctx, conv, sel, id)
	default:
		e.answer(ctx, sel, staleChoiceNotice, true)
	}
}

func (e *Engine) chooseRegion(ctx context.Context, conv *store.Conversation, sel *telegram.Selection, regionID string) {
	region, err := e.db.GetRegion(regionID)
	if err != nil {
		e.fail("lookup region", err)
		return
	}
	if region == nil {
		e.answer(ctx, sel, "That region is no longer available. Please pick another.", true)
		return
	}

	offices, err := e.db.ListOffices(region.ID)
	if err != nil {
		e.fail("list offices", err)
		return
	}
	if len(offices) == 0 {
		e.answer(ctx, sel, "No offices are available in "+region.Name+" yet. Please pick another region.", true)
		return
	}

	if err := e.mergeMetadata(conv, map[string]string{
		metaStep:   stepOffice,
		metaRegion: region.ID,
	}); err != nil {
		e.fail("persist selection state", err)
		return
	}

	e.answer(ctx, sel, "Region: "+region.Name, false)

	options := make([]telegram.MenuOption, len(offices))
	for i, o := range offices {
		label := o.Name
		if o.Address != "" {
			label += " (" + o.Address + ")"
		}
		options[i] = telegram.MenuOption{Label: label, Token: tokenOffice + ":" + o.ID}
	}
	if err := e.transport.SendMenu(ctx, externalChatID(conv), "Now choose an office:", options); err != nil {
		e.logger.Error("send office menu", zap.Error(err))
	}
}

func (e *Engine) chooseOffice(ctx context.Context, conv *store.Conversation, sel *telegram.Selection, officeID string) {
	office, err := e.db.GetOffice(officeID)
	if err != nil {
		e.fail("lookup office", err)
		return
	}
	// The office must belong to the region chosen in the previous step.
	if office == nil || office.RegionID != conv.Metadata[metaRegion] {
		e.answer(ctx, sel, "That office is no longer available. Please pick another.", true)
		return
	}

	if err := e.db.BindConversation(conv.ID, office.RegionID, office.ID, office.CompanyID, map[string]string{}); err != nil {
		e.fail("bind conversation", err)
		return
	}
	conv.RegionID = office.RegionID
	conv.OfficeID = office.ID
	conv.CompanyID = office.CompanyID
	conv.Metadata = map[string]string{}

	e.answer(ctx, sel, "Office selected", false)

	confirmation := "You are now connected to " + office.Name
	if office.Address != "" {
		confirmation += ", " + office.Address
	}
	confirmation += ". Describe your case and a lawyer will reply here."
	if _, err := e.transport.SendText(ctx, externalChatID(conv), confirmation); err != nil {
		e.logger.Error("send selection confirmation", zap.Error(err))
	}

	e.logger.Info("conversation bound",
		zap.String("conversation", conv.ID),
		zap.String("office", office.ID),
		zap.String("company", office.CompanyID))
}

func (e *Engine) answer(ctx context.Context, sel *telegram.Selection, text string, alert bool) {
	if err := e.transport.AnswerSelection(ctx, sel.CallbackID, text, alert); err != nil {
		e.logger.Debug("selection ack failed", zap.Error(err))
	}
}

func (e *Engine) mergeMetadata(conv *store.Conversation, kv map[string]string) error {
	if conv.Metadata == nil {
		conv.Metadata = make(map[string]string, len(kv))
	}
	for k, v := range kv {
		conv.Metadata[k] = v
	}
	return e.db.UpdateConversationMetadata(conv.ID, conv.Metadata)
}

func externalChatID(conv *store.Conversation) int64 {
	id, err := strconv.ParseInt(conv.ExternalChatID, 10, 64)
	if err != nil {
		return 0
	}
	return id
}
