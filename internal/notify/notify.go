// Package notify sends run summaries via the Telegram Bot API.
package notify

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/fixturelab/leaguesim/internal/models"
)

// Client handles Telegram notifications.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}
	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// SendError sends a failed-run notification.
func (c *Client) SendError(runErr error) error {
	text := fmt.Sprintf("⚠️ *Simulation failed*\n`%s`", escapeMarkdownV2(runErr.Error()))
	return c.sendMarkdownV2(text)
}

// SendRunSummary sends the headline numbers of a completed run: the top
// title contenders and the teams most at risk of relegation.
func (c *Client) SendRunSummary(result *models.SimulationResult) error {
	return c.sendMarkdownV2(formatSummary(result))
}

func formatSummary(result *models.SimulationResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🏆 *Simulation complete: %s*\n", escapeMarkdownV2(result.CompetitionID))
	fmt.Fprintf(&b, "📅 %s \\(%d trials, %dms\\)\n\n",
		escapeMarkdownV2(result.ExecutionDate.Format("2006-01-02 15:04:05")),
		result.TrialCount, result.DurationMs)

	b.WriteString("*Title race*\n")
	for i, p := range result.Predictions {
		if i == 3 {
			break
		}
		fmt.Fprintf(&b, "%d\\. %s — %s\n", i+1,
			escapeMarkdownV2(p.TeamName),
			escapeMarkdownV2(fmt.Sprintf("%.2f%%", p.TitleProbability)))
	}

	var atRisk []models.TeamPrediction
	for _, p := range result.Predictions {
		if p.RelegationProbability > 0 {
			atRisk = append(atRisk, p)
		}
	}
	if len(atRisk) > 0 {
		sortByRelegation(atRisk)
		b.WriteString("\n*Relegation risk*\n")
		for i, p := range atRisk {
			if i == 3 {
				break
			}
			fmt.Fprintf(&b, "🔻 %s — %s\n",
				escapeMarkdownV2(p.TeamName),
				escapeMarkdownV2(fmt.Sprintf("%.2f%%", p.RelegationProbability)))
		}
	}
	return b.String()
}

func sortByRelegation(preds []models.TeamPrediction) {
	sort.SliceStable(preds, func(a, b int) bool {
		return preds[a].RelegationProbability > preds[b].RelegationProbability
	})
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4)
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
