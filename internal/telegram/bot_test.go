package telegram

import (
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/mosskim/gembot/internal/store"
)

func TestSplitMessage(t *testing.T) {
	if got := splitMessage("short", 4096); len(got) != 1 || got[0] != "short" {
		t.Fatalf("short message split: %v", got)
	}

	long := strings.Repeat("x", 10000)
	chunks := splitMessage(long, 4096)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	if len(chunks[0]) != 4096 || len(chunks[1]) != 4096 || len(chunks[2]) != 10000-2*4096 {
		t.Fatalf("chunk sizes: %d %d %d", len(chunks[0]), len(chunks[1]), len(chunks[2]))
	}
	if strings.Join(chunks, "") != long {
		t.Fatalf("chunks do not reassemble to the original")
	}
}

func TestChatKind(t *testing.T) {
	if k := chatKind(&tgbotapi.Chat{Type: "private"}); k != store.ChatDirect {
		t.Fatalf("private chat mapped to %q", k)
	}
	for _, typ := range []string{"group", "supergroup", "channel"} {
		if k := chatKind(&tgbotapi.Chat{Type: typ}); k != store.ChatGroup {
			t.Fatalf("%s chat mapped to %q", typ, k)
		}
	}
}

func TestDisplayName(t *testing.T) {
	got := displayName(&tgbotapi.User{FirstName: "Alice", LastName: "B"})
	if got != "Alice B" {
		t.Fatalf("display name = %q", got)
	}
	got = displayName(&tgbotapi.User{UserName: "al1ce"})
	if got != "al1ce" {
		t.Fatalf("fallback display name = %q", got)
	}
}
