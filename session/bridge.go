// Package session opens short-lived SSH sessions into running instances, to
// push agent configuration or trigger a value transfer. Every session races
// against a hard timeout and the connection is released on every exit path.
package session

import (
	"agentboxBackend/config"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/crypto/ssh"
)

type (
	Bridge interface {
		PushAgentConfig(ctx context.Context, address string, rootPassword string, patch AgentConfigPatch) error
		Withdraw(ctx context.Context, address string, rootPassword string, destination string, amount uint64) (string, error)
	}

	sshBridge struct {
		user            string
		configTimeout   time.Duration
		withdrawTimeout time.Duration
	}

	// AgentConfigPatch holds the keys this system owns inside the agent's
	// config document. All other keys are preserved verbatim.
	AgentConfigPatch struct {
		TelegramBotToken    *string
		TelegramBotUsername *string
		DisplayName         *string
		Description         *string
	}
)

const agentConfigPath = "/opt/agent/config.json"
const agentServiceName = "agent"
const dialTimeout = 10 * time.Second

func CreateBridge(config *config.AgentboxConfig) Bridge {
	return &sshBridge{
		user:            config.Session.SshUser,
		configTimeout:   config.Session.ConfigTimeout,
		withdrawTimeout: config.Session.WithdrawTimeout,
	}
}

// PushAgentConfig reads the remote config document, overwrites only the keys
// owned by this system and writes it back, then restarts the agent service.
// A timeout is fatal and surfaces to the caller: the remote file may be half
// written and must not be retried blindly.
func (b *sshBridge) PushAgentConfig(ctx context.Context, address string, rootPassword string, patch AgentConfigPatch) error {
	return b.withConnection(ctx, address, rootPassword, b.configTimeout, func(client *ssh.Client) error {
		raw, err := runCommand(client, "cat "+agentConfigPath)
		if err != nil {
			return fmt.Errorf("failed to read agent config: %w", err)
		}

		document := map[string]any{}
		if strings.TrimSpace(raw) != "" {
			if err := json.Unmarshal(([]byte)(raw), &document); err != nil {
				return fmt.Errorf("remote agent config is not valid JSON: %w", err)
			}
		}

		applyPatch(document, patch)

		updated, err := json.MarshalIndent(document, "", "  ")
		if err != nil {
			return err
		}

		if err := writeFile(client, agentConfigPath, string(updated)); err != nil {
			return fmt.Errorf("failed to write agent config: %w", err)
		}

		if _, err := runCommand(client, "systemctl restart "+agentServiceName); err != nil {
			return fmt.Errorf("failed to restart agent service: %w", err)
		}

		return nil
	})
}

// Withdraw invokes the agent CLI transfer command on the instance and returns
// the reported transaction signature.
func (b *sshBridge) Withdraw(ctx context.Context, address string, rootPassword string, destination string, amount uint64) (string, error) {
	var signature string

	err := b.withConnection(ctx, address, rootPassword, b.withdrawTimeout, func(client *ssh.Client) error {
		command := fmt.Sprintf("agentctl transfer --to %q --amount %d", destination, amount)
		output, err := runCommand(client, command)
		if err != nil {
			return fmt.Errorf("transfer command failed: %w", err)
		}

		signature = strings.TrimSpace(output)
		return nil
	})

	return signature, err
}

func (b *sshBridge) withConnection(ctx context.Context, address string, rootPassword string, timeout time.Duration, operation func(client *ssh.Client) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	clientConfig := &ssh.ClientConfig{
		User:            b.user,
		Auth:            []ssh.AuthMethod{ssh.Password(rootPassword)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         dialTimeout,
	}

	client, err := ssh.Dial("tcp", net.JoinHostPort(address, "22"), clientConfig)
	if err != nil {
		return fmt.Errorf("failed to open SSH connection to %s: %w", address, err)
	}

	done := make(chan error, 1)
	go func() {
		done <- operation(client)
	}()

	select {
	case err := <-done:
		_ = client.Close()
		return err
	case <-ctx.Done():
		// Closing the connection aborts whatever command is still in flight.
		_ = client.Close()
		log.Warnf("[SSH] Session to %s timed out after %s", address, timeout)
		return fmt.Errorf("session to %s timed out: %w", address, ctx.Err())
	}
}

func runCommand(client *ssh.Client, command string) (string, error) {
	sshSession, err := client.NewSession()
	if err != nil {
		return "", err
	}
	defer sshSession.Close()

	output, err := sshSession.CombinedOutput(command)
	if err != nil {
		return "", fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output)))
	}

	return string(output), nil
}

func writeFile(client *ssh.Client, path string, content string) error {
	sshSession, err := client.NewSession()
	if err != nil {
		return err
	}
	defer sshSession.Close()

	sshSession.Stdin = strings.NewReader(content)
	return sshSession.Run("cat > " + path)
}

func applyPatch(document map[string]any, patch AgentConfigPatch) {
	if patch.TelegramBotToken != nil {
		document["telegramBotToken"] = *patch.TelegramBotToken
	}
	if patch.TelegramBotUsername != nil {
		document["telegramBotUsername"] = *patch.TelegramBotUsername
	}
	if patch.DisplayName != nil {
		document["displayName"] = *patch.DisplayName
	}
	if patch.Description != nil {
		document["description"] = *patch.Description
	}
}
