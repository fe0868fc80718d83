package app

import (
	"testing"
)

func TestParseSettings(t *testing.T) {
	t.Parallel()
	b := []byte(`{
		"github_token": "tok",
		"github_user": "me",
		"github_repo": "timers",
		"send_discord": true,
		"discord_token": "dtok",
		"discord_high_level_channels": "100\n200",
		"discord_all_channels": "300",
		"unknown_future_field": 1
	}`)
	s, err := ParseSettings(b)
	if err != nil {
		t.Fatalf("ParseSettings: %v", err)
	}
	if s.GithubToken != "tok" || !s.SendDiscord || s.DiscordToken != "dtok" {
		t.Fatalf("settings = %+v", s)
	}
	if s.TimersFile() != "timers_data.json" {
		t.Fatalf("TimersFile = %q", s.TimersFile())
	}
	if s.EventsFile() != "custom_events.json" {
		t.Fatalf("EventsFile = %q", s.EventsFile())
	}

	if _, err := ParseSettings([]byte("{")); err == nil {
		t.Fatal("expected error for malformed settings")
	}
}

func TestSettingsFileOverrides(t *testing.T) {
	t.Parallel()
	s := &Settings{GithubTimersFile: " custom/timers.json ", GithubEventsFile: "ev.json"}
	if s.TimersFile() != "custom/timers.json" {
		t.Fatalf("TimersFile = %q", s.TimersFile())
	}
	if s.EventsFile() != "ev.json" {
		t.Fatalf("EventsFile = %q", s.EventsFile())
	}
}

func TestSettingsDeliveryEnabled(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		s    Settings
		want bool
	}{
		{"none", Settings{}, false},
		{"discord off with token", Settings{DiscordToken: "x"}, false},
		{"discord on without token", Settings{SendDiscord: true}, false},
		{"discord on", Settings{SendDiscord: true, DiscordToken: "x"}, true},
		{"telegram on", Settings{SendTelegram: true, TelegramToken: "x"}, true},
	}
	for _, tc := range cases {
		if got := tc.s.DeliveryEnabled(); got != tc.want {
			t.Errorf("%s: DeliveryEnabled = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestSettingsStoreChanged(t *testing.T) {
	t.Parallel()
	base := &Settings{GithubToken: "t", GithubUser: "u", GithubRepo: "r"}

	if !base.StoreChanged(nil) {
		t.Fatal("first load with creds must count as changed")
	}
	if (&Settings{}).StoreChanged(nil) {
		t.Fatal("first load without creds must not count as changed")
	}

	same := *base
	if same.StoreChanged(base) {
		t.Fatal("identical creds reported as changed")
	}
	rotated := *base
	rotated.GithubToken = "t2"
	if !rotated.StoreChanged(base) {
		t.Fatal("token rotation not detected")
	}
}
