package app

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Settings is the operator-facing record the external settings form writes to
// the remote store. It is reloaded on every resync; remote values win over the
// local bootstrap config (last writer wins), including token rotation.
//
// Decoding is deliberately lenient (no DisallowUnknownFields): the form may
// grow fields faster than the bot ships.
type Settings struct {
	GithubToken      string `json:"github_token"`
	GithubUser       string `json:"github_user"`
	GithubRepo       string `json:"github_repo"`
	GithubTimersFile string `json:"github_timers_file"`
	GithubEventsFile string `json:"github_events_file"`

	SendDiscord              bool   `json:"send_discord"`
	DiscordToken             string `json:"discord_token"`
	DiscordHighLevelChannels string `json:"discord_high_level_channels"`
	DiscordAllChannels       string `json:"discord_all_channels"`

	SendTelegram         bool   `json:"send_telegram,omitempty"`
	TelegramToken        string `json:"telegram_token,omitempty"`
	TelegramHighLevelIDs string `json:"telegram_high_level_chats,omitempty"`
	TelegramAllIDs       string `json:"telegram_all_chats,omitempty"`

	// RatePerSec caps outbound deliveries across all sinks.
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

// ParseSettings decodes a settings record.
func ParseSettings(b []byte) (*Settings, error) {
	var s Settings
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	return &s, nil
}

// TimersFile is the remote path of the timers snapshot.
func (s *Settings) TimersFile() string {
	if v := strings.TrimSpace(s.GithubTimersFile); v != "" {
		return v
	}
	return "timers_data.json"
}

// EventsFile is the remote path of the custom events snapshot.
func (s *Settings) EventsFile() string {
	if v := strings.TrimSpace(s.GithubEventsFile); v != "" {
		return v
	}
	return "custom_events.json"
}

// DeliveryEnabled reports whether any outbound channel is switched on.
func (s *Settings) DeliveryEnabled() bool {
	return (s.SendDiscord && strings.TrimSpace(s.DiscordToken) != "") ||
		(s.SendTelegram && strings.TrimSpace(s.TelegramToken) != "")
}

// StoreChanged reports whether the record rotates the remote store identity
// or credentials relative to old.
func (s *Settings) StoreChanged(old *Settings) bool {
	if old == nil {
		return s.GithubToken != "" || s.GithubUser != "" || s.GithubRepo != ""
	}
	return s.GithubToken != old.GithubToken ||
		s.GithubUser != old.GithubUser ||
		s.GithubRepo != old.GithubRepo
}
