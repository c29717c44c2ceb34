package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"github.com/sentinelfi/pioneerwatch/internal/models"
)

// categoryTemplate shapes the pioneer notification per category.
type categoryTemplate struct {
	emoji       string
	description string
}

var categoryTemplates = map[models.PioneerCategory]categoryTemplate{
	models.CategoryProtocolScout:      {"🔍", "Early protocol adoption detected"},
	models.CategoryYieldOpportunist:   {"📈", "Complex yield strategy deployed"},
	models.CategoryCrossChainArb:      {"⚡", "Cross-chain opportunity seized"},
	models.CategoryRWAInnovation:      {"🏢", "Real-world asset strategy launched"},
	models.CategoryTreasuryManagement: {"🏦", "Treasury operation executed"},
}

// NotificationService dispatches domain events to Telegram. Dispatch is
// fire-and-forget from the pipeline's perspective: failures are logged here
// and never propagated back to block event processing. Without a bot token
// the service degrades to a logging-only dispatcher.
type NotificationService struct {
	bot    *bot.Bot
	chatID int64
	logger *logrus.Logger
}

// NewNotificationService creates a dispatcher. An empty token leaves the bot
// nil and dispatch becomes log-only.
func NewNotificationService(telegramBotToken, chatID string, logger *logrus.Logger) *NotificationService {
	var telegramBot *bot.Bot
	if telegramBotToken != "" {
		telegramBot, _ = bot.New(telegramBotToken)
	}

	var chat int64
	if chatID != "" {
		if parsed, err := strconv.ParseInt(chatID, 10, 64); err == nil {
			chat = parsed
		} else if logger != nil {
			logger.WithField("chat_id", chatID).Warn("Invalid telegram chat id, notifications disabled")
		}
	}

	return &NotificationService{bot: telegramBot, chatID: chat, logger: logger}
}

// Dispatch sends one domain event. Errors are swallowed after logging.
func (ns *NotificationService) Dispatch(ctx context.Context, event models.DomainEvent) {
	if ns.logger != nil {
		ns.logger.WithFields(logrus.Fields{
			"kind":     event.Kind,
			"severity": event.Severity,
			"title":    event.Title,
		}).Info("Dispatching notification")
	}

	if ns.bot == nil || ns.chatID == 0 {
		return
	}

	message := ns.format(event)
	_, err := ns.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    ns.chatID,
		Text:      message,
		ParseMode: tgmodels.ParseModeMarkdown,
		LinkPreviewOptions: &tgmodels.LinkPreviewOptions{
			IsDisabled: bot.True(),
		},
	})
	if err != nil && ns.logger != nil {
		ns.logger.WithError(err).WithField("kind", event.Kind).Error("Failed to send telegram notification")
	}
}

// DispatchAll sends a batch of events in order.
func (ns *NotificationService) DispatchAll(ctx context.Context, events []models.DomainEvent) {
	for _, event := range events {
		ns.Dispatch(ctx, event)
	}
}

func (ns *NotificationService) format(event models.DomainEvent) string {
	if event.Kind == models.EventPioneerSignal && event.Pattern != nil {
		return ns.formatPioneerSignal(event)
	}
	return ns.formatProtocolEvent(event)
}

func (ns *NotificationService) formatPioneerSignal(event models.DomainEvent) string {
	template, ok := categoryTemplates[event.Pattern.Category]
	if !ok {
		template = categoryTemplate{emoji: "🚨", description: "Pioneer activity detected"}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s*\n", template.emoji, event.Title)
	fmt.Fprintf(&b, "%s\n\n", template.description)
	fmt.Fprintf(&b, "Pattern: %s\n", event.Pattern.Name)
	fmt.Fprintf(&b, "Confidence: %.1f%%\n", event.Pattern.Confidence*100)
	fmt.Fprintf(&b, "%s\n", event.Message)
	if event.TransactionRef != "" {
		fmt.Fprintf(&b, "\n🔗 [View Transaction](https://etherscan.io/tx/%s)", event.TransactionRef)
	}
	return b.String()
}

func (ns *NotificationService) formatProtocolEvent(event models.DomainEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s*\n", severityEmoji(event.Severity), event.Title)
	if event.ProtocolName != "" {
		fmt.Fprintf(&b, "Protocol: %s\n", event.ProtocolName)
	}
	fmt.Fprintf(&b, "%s\n", event.Message)
	if event.ProtocolAddress != "" {
		fmt.Fprintf(&b, "\n🔗 [View Protocol](https://etherscan.io/address/%s)", event.ProtocolAddress)
	}
	return b.String()
}

func severityEmoji(severity models.Severity) string {
	switch severity {
	case models.SeverityHigh:
		return "🚨"
	case models.SeverityMedium:
		return "⚠️"
	default:
		return "ℹ️"
	}
}
