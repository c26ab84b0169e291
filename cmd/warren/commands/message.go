package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/warrenhq/warren/internal/broker"
	"github.com/warrenhq/warren/internal/printer"
	"github.com/warrenhq/warren/pkg/fleet"
)

var (
	messageFrom     string
	messageTo       string
	messageType     string
	messagePriority string
	messageLimit    int
)

var messageCmd = &cobra.Command{
	Use:   "message",
	Short: "Send and inspect agent messages",
	Long: `Send messages between agents and inspect delivery history.

Messages are queued by priority and delivered by the warrend delivery
loop; delivered messages land in bounded per-agent Redis history.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var messageSendCmd = &cobra.Command{
	Use:   "send CONTENT",
	Short: "Queue a message to an agent",
	Long: `Queue a message for delivery.

Examples:
  warren message send --from planner --to builder-1 "How is the parser going?"

  warren message send --from monitor --to planner \
    --type alert --priority CRITICAL "Disk nearly full on host-3"`,
	Args: cobra.ExactArgs(1),
	RunE: runMessageSend,
}

var messageBroadcastCmd = &cobra.Command{
	Use:   "broadcast CONTENT",
	Short: "Queue a broadcast to all subscribed agents",
	Args:  cobra.ExactArgs(1),
	RunE:  runMessageBroadcast,
}

var messageHistoryCmd = &cobra.Command{
	Use:   "history AGENT_ID",
	Short: "Show an agent's delivered messages, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runMessageHistory,
}

var messageStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show broker queue and history statistics",
	RunE:  runMessageStats,
}

func init() {
	messageSendCmd.Flags().StringVar(&messageFrom, "from", "", "Sending agent ID (required)")
	messageSendCmd.Flags().StringVar(&messageTo, "to", "", "Recipient agent ID (required)")
	messageSendCmd.Flags().StringVar(&messageType, "type", string(fleet.MessageTypeQuery), "Message type")
	messageSendCmd.Flags().StringVar(&messagePriority, "priority", "", "LOW, MEDIUM, HIGH, or CRITICAL")
	messageSendCmd.MarkFlagRequired("from")
	messageSendCmd.MarkFlagRequired("to")

	messageBroadcastCmd.Flags().StringVar(&messageFrom, "from", "", "Sending agent ID (required)")
	messageBroadcastCmd.Flags().StringVar(&messagePriority, "priority", "", "LOW, MEDIUM, HIGH, or CRITICAL")
	messageBroadcastCmd.MarkFlagRequired("from")

	messageHistoryCmd.Flags().IntVar(&messageLimit, "limit", 20, "Maximum messages to show (0 = all retained)")

	messageCmd.AddCommand(messageSendCmd, messageBroadcastCmd, messageHistoryCmd, messageStatsCmd)
	rootCmd.AddCommand(messageCmd)
}

func openMessageBroker(ctx context.Context) (*broker.Broker, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, printer.Error("Configuration error", err.Error(), []string{"Run 'warren init' to create a project here"})
	}
	reg, err := openRegistry(ctx, cfg)
	if err != nil {
		return nil, nil, printer.Error("Failed to open registry", err.Error(), nil)
	}
	b, msgHistory, err := openBroker(ctx, cfg, reg)
	if err != nil {
		return nil, nil, printer.Error("Failed to connect to Redis", err.Error(), []string{
			"Start Redis locally on port 6379",
			"Point redis.url in warren.yml at a running server",
		})
	}
	return b, func() { msgHistory.Close() }, nil
}

func runMessageSend(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	b, closeBroker, err := openMessageBroker(ctx)
	if err != nil {
		return err
	}
	defer closeBroker()

	msg, err := b.SendMessage(broker.SendMessageRequest{
		From:     messageFrom,
		To:       messageTo,
		Type:     fleet.MessageType(messageType),
		Content:  args[0],
		Priority: fleet.Priority(messagePriority),
	})
	if err != nil {
		return printer.Error("Failed to queue message", err.Error(), nil)
	}

	// The CLI has no long-running delivery loop, so drain immediately.
	b.DeliverPending(ctx)

	printer.Success("Delivered message %s to '%s'\n", shortID(msg.ID), messageTo)
	return nil
}

func runMessageBroadcast(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	b, closeBroker, err := openMessageBroker(ctx)
	if err != nil {
		return err
	}
	defer closeBroker()

	msg, err := b.BroadcastMessage(messageFrom, args[0], fleet.Priority(messagePriority))
	if err != nil {
		return printer.Error("Failed to queue broadcast", err.Error(), nil)
	}
	b.DeliverPending(ctx)

	printer.Success("Broadcast %s queued from '%s'\n", shortID(msg.ID), messageFrom)
	return nil
}

func runMessageHistory(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	b, closeBroker, err := openMessageBroker(ctx)
	if err != nil {
		return err
	}
	defer closeBroker()

	messages, err := b.GetMessageHistory(ctx, args[0], messageLimit)
	if err != nil {
		return printer.Error("Failed to read history", err.Error(), nil)
	}
	if len(messages) == 0 {
		printer.Info("No messages for '%s'\n", args[0])
		return nil
	}

	for _, msg := range messages {
		printer.Printf("%s  %-9s %s -> %s [%s]\n  %s\n",
			msg.Timestamp.Format("2006-01-02 15:04:05"), msg.Priority, msg.From, msg.To, msg.Type, msg.Content)
	}
	return nil
}

func runMessageStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	b, closeBroker, err := openMessageBroker(ctx)
	if err != nil {
		return err
	}
	defer closeBroker()

	stats, err := b.GetStats(ctx)
	if err != nil {
		return printer.Error("Failed to read broker stats", err.Error(), nil)
	}

	printer.Printf("Queue depth:         %d\n", stats.QueueDepth)
	printer.Printf("Subscriptions:       %d\n", stats.Subscriptions)
	printer.Printf("Agents with history: %d\n", stats.AgentsWithHistory)
	printer.Printf("Messages retained:   %d\n", stats.TotalStored)
	return nil
}
