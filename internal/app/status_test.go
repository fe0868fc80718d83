package app

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"spawnbot/internal/config"
	logx "spawnbot/pkg/logx"
)

func waitForHTTP(ctx context.Context, url string) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		reqCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, http.NoBody)
		if err != nil {
			cancel()
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		cancel()
		if err == nil && resp != nil {
			_ = resp.Body.Close()
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func TestStatusServerApplyEnableDisable(t *testing.T) {
	snap := StatusSnapshot{
		GameName:    "testgame",
		Now:         time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
		Confirmed:   []StatusPrediction{{ID: "dawn", Name: "Dawn Boss", In: "1h0m0s"}},
		Unconfirmed: []string{"Drake"},
		Log:         []string{"[2024-05-01T08:00:00Z] INF started"},
	}
	srv := newStatusServer(logx.Nop(), func() StatusSnapshot { return snap })
	t.Cleanup(func() { srv.Stop(context.Background()) })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	srv.Apply(ctx, config.StatusConfig{Enabled: true, Addr: "127.0.0.1:0"})
	addr := srv.Addr()
	if addr == "" {
		t.Fatal("expected status server to expose address")
	}
	url := "http://" + addr + "/status"
	if err := waitForHTTP(ctx, url); err != nil {
		t.Fatalf("status endpoint not reachable: %v", err)
	}

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var got StatusSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.GameName != "testgame" || len(got.Confirmed) != 1 || got.Confirmed[0].ID != "dawn" {
		t.Fatalf("snapshot = %+v", got)
	}
	if len(got.Log) != 1 {
		t.Fatalf("log = %v", got.Log)
	}

	// Non-GET is rejected.
	postResp, err := http.Post(url, "application/json", http.NoBody)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	_ = postResp.Body.Close()
	if postResp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("POST status = %d", postResp.StatusCode)
	}

	// Disable and ensure the listener shuts down.
	srv.Apply(ctx, config.StatusConfig{Enabled: false})
	if addr := srv.Addr(); addr != "" {
		t.Fatalf("expected status server to stop, still at %s", addr)
	}
}
