package relay

import (
	"context"

	"github.com/ArDangerUS/LegalFlowService-sub000/internal/telegram"
)

// Transport is the external messaging surface the engine drives. Implemented
// by telegram.Client; tests substitute a scripted fake.
type Transport interface {
	// Connect performs the authenticated handshake and returns the bot's
	// username. Called again after degradation when a reconnect is requested.
	Connect(ctx context.Context) (string, error)
	// Updates long-polls for updates with sequence id >= offset.
	Updates(ctx context.Context, offset int64, limit int) ([]telegram.Update, error)
	SendText(ctx context.Context, chatID int64, text string) (telegram.Sent, error)
	SendFile(ctx context.Context, chatID int64, file telegram.FileUpload) (telegram.Sent, error)
	SendMenu(ctx context.Context, chatID int64, text string, options []telegram.MenuOption) error
	AnswerSelection(ctx context.Context, callbackID, text string, alert bool) error
}
