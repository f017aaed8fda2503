package test

import (
	"context"
	"errors"
)

type MockTelegramClient struct {
	ValidationError error
	BotUsername     string

	ClearedTokens []string
}

func NewMockTelegramClient() *MockTelegramClient {
	return &MockTelegramClient{
		BotUsername: "mock_agent_bot",
	}
}

func (m *MockTelegramClient) ValidateBotToken(ctx context.Context, botToken string) (string, error) {
	if m.ValidationError != nil {
		return "", m.ValidationError
	}
	if botToken == "" {
		return "", errors.New("empty bot token")
	}

	return m.BotUsername, nil
}

func (m *MockTelegramClient) ClearWebhook(ctx context.Context, botToken string) error {
	m.ClearedTokens = append(m.ClearedTokens, botToken)
	return nil
}
