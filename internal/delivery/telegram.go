package delivery

import (
	"context"
	"fmt"
	"strconv"
	"time"

	tele "gopkg.in/telebot.v4"
)

// TelegramSink delivers alerts to Telegram chats. It only ever sends; the
// poller is never started (this process has no inbound command surface).
type TelegramSink struct {
	bot       *tele.Bot
	highChats []int64
	allChats  []int64
}

// NewTelegram builds a sink from a bot token and newline-delimited chat-id
// lists. Offline skips token verification (tests).
func NewTelegram(token, highChats, allChats string, offline bool) (*TelegramSink, error) {
	bot, err := tele.NewBot(tele.Settings{
		Token:   token,
		Offline: offline,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram init: %w", err)
	}
	high, err := parseChatIDs(highChats)
	if err != nil {
		return nil, err
	}
	all, err := parseChatIDs(allChats)
	if err != nil {
		return nil, err
	}
	return &TelegramSink{bot: bot, highChats: high, allChats: all}, nil
}

func parseChatIDs(raw string) ([]int64, error) {
	ids := SplitTargets(raw)
	out := make([]int64, 0, len(ids))
	for _, s := range ids {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("telegram chat id %q: %w", s, err)
		}
		out = append(out, id)
	}
	return out, nil
}

func (s *TelegramSink) Name() string { return "telegram" }

func (s *TelegramSink) targets(highSeverity bool) []int64 {
	if !highSeverity {
		return s.allChats
	}
	seen := make(map[int64]bool, len(s.highChats)+len(s.allChats))
	out := make([]int64, 0, len(s.highChats)+len(s.allChats))
	for _, id := range append(append([]int64{}, s.highChats...), s.allChats...) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func (s *TelegramSink) Send(ctx context.Context, message string, highSeverity bool) []Result {
	targets := s.targets(highSeverity)
	results := make([]Result, 0, len(targets))
	for _, chatID := range targets {
		results = append(results, Result{
			Target: strconv.FormatInt(chatID, 10),
			Err:    s.sendOne(ctx, chatID, message),
		})
	}
	return results
}

func (s *TelegramSink) sendOne(ctx context.Context, chatID int64, message string) error {
	// telebot has no context plumbing; bound the call ourselves.
	done := make(chan error, 1)
	go func() {
		_, err := s.bot.Send(&tele.Chat{ID: chatID}, message, &tele.SendOptions{DisableWebPagePreview: true})
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(10 * time.Second):
		return fmt.Errorf("telegram send: timeout")
	}
}
