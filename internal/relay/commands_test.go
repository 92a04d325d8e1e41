package relay

import (
	"context"
	"strings"
	"testing"

	"github.com/ArDangerUS/LegalFlowService-sub000/internal/store"
	"github.com/ArDangerUS/LegalFlowService-sub000/internal/telegram"
)

func command(chatID, msgID int64, cmd, args string) *telegram.Inbound {
	in := inbound(chatID, msgID, "/"+cmd)
	if args != "" {
		in.Content += " " + args
	}
	in.IsCommand = true
	in.Command = cmd
	in.CommandArgs = args
	return in
}

func lastText(t *testing.T, ft *fakeTransport) string {
	t.Helper()
	sent := ft.sentTexts()
	if len(sent) == 0 {
		t.Fatal("no reply sent")
	}
	return sent[len(sent)-1].text
}

func TestCommandStartUnbound(t *testing.T) {
	fx := testEngine(t, nil)

	fx.e.handleInbound(context.Background(), command(100, 1, "start", ""))

	if got := len(fx.ft.sentMenus()); got != 1 {
		t.Errorf("menus = %d, want the region menu", got)
	}
	// The command itself lands in history like any other message.
	if n, _ := fx.db.MessageCount(); n != 1 {
		t.Errorf("messages = %d, want 1", n)
	}
	conv, _ := fx.db.GetConversationByExternalID("100")
	if conv.Metadata[metaStep] != stepRegion {
		t.Errorf("step = %q, want region", conv.Metadata[metaStep])
	}
}

func TestCommandStartBound(t *testing.T) {
	fx := testEngine(t, nil)
	ctx := context.Background()

	conv, err := fx.db.GetOrCreateConversation("100", "Anna Kovalenko")
	if err != nil {
		t.Fatal(err)
	}
	if err := fx.db.BindConversation(conv.ID, "r1", "o1", "co1", map[string]string{}); err != nil {
		t.Fatal(err)
	}

	fx.e.handleInbound(ctx, command(100, 1, "start", ""))

	reply := lastText(t, fx.ft)
	if !strings.Contains(reply, "Welcome back. You are connected to Central Office.") {
		t.Errorf("reply = %q", reply)
	}
	if got := len(fx.ft.sentMenus()); got != 0 {
		t.Errorf("menus = %d, want none for a bound conversation", got)
	}
}

func TestCommandHelp(t *testing.T) {
	fx := testEngine(t, nil)

	fx.e.handleInbound(context.Background(), command(100, 1, "help", ""))

	if got := lastText(t, fx.ft); got != helpText {
		t.Errorf("reply = %q, want help text", got)
	}
}

func TestCommandStatusUnbound(t *testing.T) {
	fx := testEngine(t, nil)

	fx.e.handleInbound(context.Background(), command(100, 1, "status", ""))

	reply := lastText(t, fx.ft)
	for _, want := range []string{
		"not assigned yet",
		"Relay: reconnecting",
		"- Messages: 1",
		"- Conversations: 1",
	} {
		if !strings.Contains(reply, want) {
			t.Errorf("status reply missing %q:\n%s", want, reply)
		}
	}
}

func TestCommandStatusBound(t *testing.T) {
	fx := testEngine(t, nil)
	ctx := context.Background()

	conv, err := fx.db.GetOrCreateConversation("100", "Anna Kovalenko")
	if err != nil {
		t.Fatal(err)
	}
	if err := fx.db.BindConversation(conv.ID, "r1", "o1", "co1", map[string]string{}); err != nil {
		t.Fatal(err)
	}

	fx.e.handleInbound(ctx, command(100, 1, "status", ""))

	reply := lastText(t, fx.ft)
	if !strings.Contains(reply, "Your request is assigned to Central Office.") {
		t.Errorf("status reply = %q", reply)
	}
}

func TestCommandHistory(t *testing.T) {
	fx := testEngine(t, nil)
	ctx := context.Background()

	fx.e.handleInbound(ctx, inbound(100, 1, "one"))
	fx.e.handleInbound(ctx, inbound(100, 2, "two"))
	fx.e.handleInbound(ctx, inbound(100, 3, "three"))

	fx.e.handleInbound(ctx, command(100, 4, "history", ""))

	reply := lastText(t, fx.ft)
	if !strings.Contains(reply, "Last 4 messages:") {
		t.Errorf("history reply = %q", reply)
	}
	if !strings.Contains(reply, "Anna Kovalenko: one") {
		t.Errorf("history reply missing first message:\n%s", reply)
	}
}

func TestCommandHistoryClampsLimit(t *testing.T) {
	fx := testEngine(t, nil)
	ctx := context.Background()

	conv, err := fx.db.GetOrCreateConversation("100", "Anna Kovalenko")
	if err != nil {
		t.Fatal(err)
	}
	for i := int64(1); i <= 30; i++ {
		msg := store.Message{
			ConversationID: conv.ID, ExternalID: i, SenderName: "Anna Kovalenko",
			Content: "note", Type: store.TypeText,
			Direction: store.DirectionIncoming, Status: store.StatusDelivered,
			Timestamp: 1700000000000 + i*1000,
		}
		if err := fx.db.InsertMessage(&msg); err != nil {
			t.Fatal(err)
		}
	}

	fx.e.handleCommand(ctx, conv, command(100, 99, "history", "999"))

	reply := lastText(t, fx.ft)
	if !strings.Contains(reply, "Last 25 messages:") {
		t.Errorf("history reply = %q, want clamp at 25", reply)
	}
}

func TestCommandHistoryEmpty(t *testing.T) {
	fx := testEngine(t, nil)

	conv, err := fx.db.GetOrCreateConversation("100", "Anna Kovalenko")
	if err != nil {
		t.Fatal(err)
	}
	fx.e.handleCommand(context.Background(), conv, command(100, 1, "history", ""))

	if got := lastText(t, fx.ft); got != "No messages yet." {
		t.Errorf("reply = %q, want empty history notice", got)
	}
}

func TestCommandUnknown(t *testing.T) {
	fx := testEngine(t, nil)

	fx.e.handleInbound(context.Background(), command(100, 1, "frobnicate", ""))

	if got := lastText(t, fx.ft); !strings.Contains(got, "Unknown command") {
		t.Errorf("reply = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this one is too long", 10, "this one i..."},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
