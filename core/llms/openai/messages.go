package openai

import "github.com/koscakluka/hopper/core/conversations"

type openAIMessage struct {
	Type    messageType `json:"type"`
	Role    messageRole `json:"role,omitempty"`
	Content string      `json:"content,omitempty"`
}

type messageRole string

const (
	messageRoleDeveloper messageRole = "developer"
	messageRoleUser      messageRole = "user"
	messageRoleAssistant messageRole = "assistant"
)

type messageType string

const messageTypeMessage messageType = "message"

type requestBody struct {
	Model  string          `json:"model"`
	Input  []openAIMessage `json:"input"`
	Stream bool            `json:"stream"`
}

type responseBodyUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// toOpenAIMessages maps the conversation window onto Responses API input
// items. System messages become developer instructions.
func toOpenAIMessages(instructions string, history []conversations.ChatMessage) []openAIMessage {
	messages := make([]openAIMessage, 0, len(history)+1)
	if instructions != "" {
		messages = append(messages, openAIMessage{
			Type:    messageTypeMessage,
			Role:    messageRoleDeveloper,
			Content: instructions,
		})
	}

	for _, message := range history {
		role := messageRoleUser
		switch message.Role {
		case conversations.RoleAssistant:
			role = messageRoleAssistant
		case conversations.RoleSystem:
			role = messageRoleDeveloper
		}
		messages = append(messages, openAIMessage{
			Type:    messageTypeMessage,
			Role:    role,
			Content: message.Content,
		})
	}
	return messages
}
