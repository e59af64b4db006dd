package notify

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/clearform/photo-upscaler/pkg/schema"
)

// MessengerCLI shells out to an external messaging command-line tool, the
// fallback delivery path when the direct Telegram API is not configured.
type MessengerCLI struct {
	Command string
	Channel string
	Target  string
	Timeout time.Duration
}

func NewMessengerCLI(command, channel, target string) *MessengerCLI {
	return &MessengerCLI{
		Command: command,
		Channel: channel,
		Target:  target,
		Timeout: 15 * time.Second,
	}
}

func (m *MessengerCLI) Send(ctx context.Context, message string, _ schema.BatchDone) error {
	if m.Command == "" || m.Target == "" {
		return fmt.Errorf("messenger CLI not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, m.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, m.Command,
		"message", "send",
		"--channel", m.Channel,
		"--target", m.Target,
		"--message", message,
	)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("messenger CLI send: %w", err)
	}
	return nil
}
