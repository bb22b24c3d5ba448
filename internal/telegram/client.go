// Package telegram provides a client for sending notifications via Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/sweepscope/internal/gridsearch"
	"github.com/rewired-gh/sweepscope/internal/models"
	"github.com/rewired-gh/sweepscope/internal/strategy"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// StatusFunc renders the reply to the /status command.
type StatusFunc func() string

// Client handles Telegram notifications.
type Client struct {
	bot            *tgbotapi.BotAPI
	out            sender
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
	status         StatusFunc
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	c := newClient(bot, chatIDInt, maxRetries, retryDelayBase)
	c.bot = bot
	return c, nil
}

func newClient(out sender, chatID int64, maxRetries int, retryDelayBase time.Duration) *Client {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}
	return &Client{
		out:            out,
		chatID:         chatID,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}
}

// SetStatus installs the /status reply renderer.
func (c *Client) SetStatus(fn StatusFunc) {
	c.status = fn
}

// ListenForCommands starts a goroutine that polls for Telegram updates and handles bot commands.
// It returns immediately; the goroutine stops when ctx is cancelled.
func (c *Client) ListenForCommands(ctx context.Context) {
	if c.bot == nil {
		return
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					c.handleCommand(update.Message.Chat.ID, update.Message.Command())
				}
			}
		}
	}()
}

func (c *Client) handleCommand(chatID int64, command string) {
	var text string
	switch command {
	case "ping":
		text = "Pong"
	case "status":
		if c.status == nil {
			text = "No session running"
		} else {
			text = c.status()
		}
	default:
		return
	}
	c.out.Send(tgbotapi.NewMessage(chatID, text)) //nolint:errcheck
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.out.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if i+1 < c.maxRetries {
			time.Sleep(c.retryDelayBase * time.Duration(i+1))
		}
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// SendError sends a monitoring error notification.
// Call this only on the first occurrence of a consecutive error sequence.
func (c *Client) SendError(cycleErr error) error {
	text := fmt.Sprintf("⚠️ *Monitoring error*\n`%s`", escapeMarkdownV2(cycleErr.Error()))
	return c.sendMarkdownV2(text)
}

// SendRecovery sends a recovery notification after consecutive failures.
func (c *Client) SendRecovery(failureCount int) error {
	text := fmt.Sprintf("✅ *Monitoring recovered* after %d consecutive failure\\(s\\)", failureCount)
	return c.sendMarkdownV2(text)
}

// NotifySweep announces a sweep signal and the action it triggered, if any.
func (c *Client) NotifySweep(symbol, signal string, ev models.SweepEvent, action string) error {
	return c.sendMarkdownV2(formatSweep(symbol, signal, ev, action))
}

// NotifyTrade announces a closed paper trade.
func (c *Client) NotifyTrade(symbol string, t *strategy.Trade) error {
	return c.sendMarkdownV2(formatTrade(symbol, t))
}

// SendGridSummary sends the top results of a parameter scan.
func (c *Client) SendGridSummary(symbol string, results []gridsearch.Result, top int) error {
	return c.sendMarkdownV2(formatGrid(symbol, results, top))
}

func formatSweep(symbol, signal string, ev models.SweepEvent, action string) string {
	emoji := "⚡"
	switch ev.Direction {
	case models.DirectionUp:
		emoji = "📈"
	case models.DirectionDown:
		emoji = "📉"
	}
	moveBP := 0.0
	if ev.PriceStart > 0 {
		moveBP = (ev.PriceEnd - ev.PriceStart) / ev.PriceStart * 1e4
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s* %s\n", emoji, escapeMarkdownV2(symbol), escapeMarkdownV2(strings.ToUpper(signal)))
	fmt.Fprintf(&b, "📅 %s\n", escapeMarkdownV2(models.TimeOf(ev.TsEnd).UTC().Format("2006-01-02 15:04:05.000")))
	fmt.Fprintf(&b, "%s → %s \\(%s bp in %s\\)\n",
		escapeMarkdownV2(humanize.CommafWithDigits(ev.PriceStart, 4)),
		escapeMarkdownV2(humanize.CommafWithDigits(ev.PriceEnd, 4)),
		escapeMarkdownV2(fmt.Sprintf("%+.1f", moveBP)),
		escapeMarkdownV2(fmt.Sprintf("%.2fs", ev.TsEnd-ev.TsStart)))
	fmt.Fprintf(&b, "Volume: %s", escapeMarkdownV2(humanize.CommafWithDigits(ev.VolumeTotal, 4)))
	if action != "" {
		fmt.Fprintf(&b, "\n🎯 %s", escapeMarkdownV2(action))
	}
	return b.String()
}

func formatTrade(symbol string, t *strategy.Trade) string {
	emoji := "✅"
	if t.PnL < 0 {
		emoji = "❌"
	}
	side := "LONG"
	if t.Dir == models.DirectionDown {
		side = "SHORT"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s* %s closed\n", emoji, escapeMarkdownV2(symbol), side)
	fmt.Fprintf(&b, "%s → %s in %s\n",
		escapeMarkdownV2(humanize.CommafWithDigits(t.EntryPrice, 4)),
		escapeMarkdownV2(humanize.CommafWithDigits(t.ExitPrice, 4)),
		escapeMarkdownV2(fmt.Sprintf("%.1fs", t.ExitTs-t.EntryTs)))
	fmt.Fprintf(&b, "PnL: *%s*", escapeMarkdownV2(fmt.Sprintf("%+.4f", t.PnL)))
	if t.Notional > 0 {
		fmt.Fprintf(&b, "\nBankroll: %s", escapeMarkdownV2(humanize.CommafWithDigits(t.Bankroll, 2)))
	}
	return b.String()
}

// formatGrid ranks combinations by evaluated events, then by the better of the
// two mean returns.
func formatGrid(symbol string, results []gridsearch.Result, top int) string {
	ranked := append([]gridsearch.Result(nil), results...)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Evaluated != ranked[j].Evaluated {
			return ranked[i].Evaluated > ranked[j].Evaluated
		}
		return bestMean(ranked[i]) > bestMean(ranked[j])
	})
	if top > 0 && len(ranked) > top {
		ranked = ranked[:top]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🔬 *Sweep scan* %s\n", escapeMarkdownV2(symbol))
	fmt.Fprintf(&b, "%d combinations\n\n", len(results))
	for i, r := range ranked {
		fmt.Fprintf(&b, "%d\\. %s\n", i+1, escapeMarkdownV2(r.Params.String()))
		fmt.Fprintf(&b, "   sweeps %d, scored %d\n", r.Events, r.Evaluated)
		fmt.Fprintf(&b, "   up %s \\| down %s\n",
			escapeMarkdownV2(fmt.Sprintf("n=%d mean=%+.3f%%", r.Summary.Up.Ret.Count, r.Summary.Up.Ret.Mean*100)),
			escapeMarkdownV2(fmt.Sprintf("n=%d mean=%+.3f%%", r.Summary.Down.Ret.Count, r.Summary.Down.Ret.Mean*100)))
	}
	return b.String()
}

func bestMean(r gridsearch.Result) float64 {
	if r.Summary.Up.Ret.Mean > r.Summary.Down.Ret.Mean {
		return r.Summary.Up.Ret.Mean
	}
	return r.Summary.Down.Ret.Mean
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
