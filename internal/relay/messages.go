package relay

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yungbote/tutorbridge-backend/internal/domain"
	"github.com/yungbote/tutorbridge-backend/internal/platform/openai"
)

func PromptMessages(system, prompt string) []openai.Message {
	msgs := make([]openai.Message, 0, 2)
	if s := strings.TrimSpace(system); s != "" {
		msgs = append(msgs, openai.Message{Role: openai.RoleSystem, Content: s})
	}
	return append(msgs, openai.Message{Role: openai.RoleUser, Content: prompt})
}

// HistoryMessages maps a chat transcript onto provider roles. Loading
// placeholders and empty entries are skipped.
func HistoryMessages(system string, history []domain.ChatMessage) []openai.Message {
	msgs := make([]openai.Message, 0, len(history)+1)
	if s := strings.TrimSpace(system); s != "" {
		msgs = append(msgs, openai.Message{Role: openai.RoleSystem, Content: s})
	}
	for _, m := range history {
		if m.Loading || strings.TrimSpace(m.Text) == "" {
			continue
		}
		role := openai.RoleUser
		if m.Sender == domain.SenderTutor {
			role = openai.RoleAssistant
		}
		msgs = append(msgs, openai.Message{Role: role, Content: m.Text})
	}
	return msgs
}

// ParseHistory decodes the ?messages= payload: a JSON array of {sender, text}.
func ParseHistory(raw string) ([]domain.ChatMessage, error) {
	var history []domain.ChatMessage
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		return nil, fmt.Errorf("messages must be a JSON array of {sender, text}: %w", err)
	}
	for i, m := range history {
		if m.Sender != domain.SenderStudent && m.Sender != domain.SenderTutor {
			return nil, fmt.Errorf("messages[%d]: unknown sender %q", i, m.Sender)
		}
	}
	return history, nil
}
