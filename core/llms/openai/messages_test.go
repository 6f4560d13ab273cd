package openai

import (
	"testing"

	"github.com/koscakluka/hopper/core/conversations"
)

func TestToOpenAIMessagesKeepsOrderAndRoles(t *testing.T) {
	history := []conversations.ChatMessage{
		{Role: conversations.RoleSystem, Content: "Be brief."},
		conversations.NewUserMessage("first prompt"),
		conversations.NewAssistantMessage("It is 21C in Prague."),
		conversations.NewUserMessage("second prompt"),
	}

	messages := toOpenAIMessages("You are Hopper.", history)

	want := []openAIMessage{
		{Type: messageTypeMessage, Role: messageRoleDeveloper, Content: "You are Hopper."},
		{Type: messageTypeMessage, Role: messageRoleDeveloper, Content: "Be brief."},
		{Type: messageTypeMessage, Role: messageRoleUser, Content: "first prompt"},
		{Type: messageTypeMessage, Role: messageRoleAssistant, Content: "It is 21C in Prague."},
		{Type: messageTypeMessage, Role: messageRoleUser, Content: "second prompt"},
	}
	if len(messages) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(messages))
	}
	for i := range want {
		if messages[i] != want[i] {
			t.Fatalf("unexpected message %d: %+v", i, messages[i])
		}
	}
}

func TestToOpenAIMessagesWithoutInstructions(t *testing.T) {
	messages := toOpenAIMessages("", []conversations.ChatMessage{conversations.NewUserMessage("hi")})
	if len(messages) != 1 || messages[0].Role != messageRoleUser {
		t.Fatalf("unexpected messages %+v", messages)
	}
}
