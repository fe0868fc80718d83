package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const discordAPIBase = "https://discord.com/api/v10"

// DiscordSink posts messages to Discord channels over the REST API.
//
// All alerts go to the "all" channel list; high-severity alerts additionally
// go to the high-severity list.
type DiscordSink struct {
	token        string
	highChannels []string
	allChannels  []string

	baseURL string
	http    *http.Client
}

// NewDiscord builds a sink from a bot token and the two newline-delimited
// channel lists from the settings record.
func NewDiscord(token, highChannels, allChannels string) *DiscordSink {
	return &DiscordSink{
		token:        strings.TrimSpace(token),
		highChannels: SplitTargets(highChannels),
		allChannels:  SplitTargets(allChannels),
		baseURL:      discordAPIBase,
		http:         &http.Client{Timeout: 10 * time.Second},
	}
}

// SplitTargets parses a newline-delimited id list, dropping blanks.
func SplitTargets(raw string) []string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		if id := strings.TrimSpace(line); id != "" {
			out = append(out, id)
		}
	}
	return out
}

func (s *DiscordSink) Name() string { return "discord" }

func (s *DiscordSink) targets(highSeverity bool) []string {
	if !highSeverity {
		return s.allChannels
	}
	seen := make(map[string]bool, len(s.highChannels)+len(s.allChannels))
	out := make([]string, 0, len(s.highChannels)+len(s.allChannels))
	for _, id := range append(append([]string{}, s.highChannels...), s.allChannels...) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func (s *DiscordSink) Send(ctx context.Context, message string, highSeverity bool) []Result {
	targets := s.targets(highSeverity)
	results := make([]Result, 0, len(targets))
	for _, channelID := range targets {
		results = append(results, Result{Target: channelID, Err: s.post(ctx, channelID, message)})
	}
	return results
}

func (s *DiscordSink) post(ctx context.Context, channelID, message string) error {
	body, err := json.Marshal(map[string]string{"content": message})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/channels/%s/messages", s.baseURL, channelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bot "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("discord post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("discord post: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}
