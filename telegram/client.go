// Package telegram validates bot tokens before they are handed to a new
// instance. Validation happens before any VM is created so an invalid token
// costs nothing.
package telegram

import (
	"agentboxBackend/config"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type (
	Client interface {
		// ValidateBotToken checks the token against the Bot API and returns
		// the bot's username.
		ValidateBotToken(ctx context.Context, botToken string) (string, error)
		// ClearWebhook removes any webhook subscription left over from a
		// previous owner of the token.
		ClearWebhook(ctx context.Context, botToken string) error
	}

	telegramClient struct {
		apiUrl     string
		httpClient *http.Client
	}

	botApiResponse struct {
		Ok     bool `json:"ok"`
		Result struct {
			Username string `json:"username"`
		} `json:"result"`
		Description string `json:"description"`
	}
)

func CreateClient(config *config.AgentboxConfig) Client {
	return &telegramClient{
		apiUrl:     config.Telegram.ApiUrl,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *telegramClient) ValidateBotToken(ctx context.Context, botToken string) (string, error) {
	response, err := c.call(ctx, botToken, "getMe")
	if err != nil {
		return "", err
	}

	if !response.Ok || response.Result.Username == "" {
		return "", fmt.Errorf("bot API rejected the token: %s", response.Description)
	}

	return response.Result.Username, nil
}

func (c *telegramClient) ClearWebhook(ctx context.Context, botToken string) error {
	response, err := c.call(ctx, botToken, "deleteWebhook?drop_pending_updates=true")
	if err != nil {
		return err
	}

	if !response.Ok {
		return fmt.Errorf("bot API refused to clear the webhook: %s", response.Description)
	}

	return nil
}

func (c *telegramClient) call(ctx context.Context, botToken string, method string) (*botApiResponse, error) {
	url := fmt.Sprintf("%s/bot%s/%s", c.apiUrl, botToken, method)
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, err
	}

	var decoded botApiResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode bot API response: %w", err)
	}

	return &decoded, nil
}
