package remote

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	logx "spawnbot/pkg/logx"
)

func testStore(t *testing.T, handler http.Handler) Store {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	st, err := Open(Config{
		Token: "tok", Owner: "me", Repo: "data", BaseURL: srv.URL,
	}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return st
}

func TestReadDecodesContent(t *testing.T) {
	t.Parallel()
	st := testStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/me/data/contents/settings.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("ref"); got != "main" {
			t.Errorf("ref = %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("auth = %q", got)
		}
		// GitHub wraps base64 at 60 chars; the client must tolerate newlines.
		enc := base64.StdEncoding.EncodeToString([]byte(`{"send_discord":true}`))
		wrapped := enc[:10] + "\n" + enc[10:]
		_ = json.NewEncoder(w).Encode(map[string]string{"content": wrapped, "encoding": "base64", "sha": "abc"})
	}))

	b, err := st.Read(context.Background(), "settings.json")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(b) != `{"send_discord":true}` {
		t.Fatalf("content = %s", b)
	}
}

func TestReadNotFound(t *testing.T) {
	t.Parallel()
	st := testStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	}))

	_, err := st.Read(context.Background(), "missing.json")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestReadTransportErrorIsNotNotFound(t *testing.T) {
	t.Parallel()
	st := testStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))

	_, err := st.Read(context.Background(), "settings.json")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestWriteCreatesThenUpdates(t *testing.T) {
	t.Parallel()
	var stored []byte
	var sha string

	st := testStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			if stored == nil {
				http.Error(w, "{}", http.StatusNotFound)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]string{
				"content": base64.StdEncoding.EncodeToString(stored), "sha": sha,
			})
		case http.MethodPut:
			var req struct {
				Message string `json:"message"`
				Content string `json:"content"`
				Branch  string `json:"branch"`
				SHA     string `json:"sha"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode put: %v", err)
			}
			if stored != nil && req.SHA != sha {
				http.Error(w, "sha mismatch", http.StatusConflict)
				return
			}
			b, _ := base64.StdEncoding.DecodeString(req.Content)
			code := http.StatusCreated
			if stored != nil {
				code = http.StatusOK
			}
			stored, sha = b, "sha-1"
			w.WriteHeader(code)
		}
	}))

	ctx := context.Background()
	if err := st.Write(ctx, "timers_data.json", []byte(`{"a":1}`), "first"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := st.Write(ctx, "timers_data.json", []byte(`{"a":2}`), "second"); err != nil {
		t.Fatalf("update: %v", err)
	}
	if string(stored) != `{"a":2}` {
		t.Fatalf("stored = %s", stored)
	}
}

func TestOpenValidation(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Owner: "me", Repo: "data"}, logx.Nop()); err == nil {
		t.Fatal("expected error for missing token")
	}
	if _, err := Open(Config{Token: "t"}, logx.Nop()); err == nil {
		t.Fatal("expected error for missing owner/repo")
	}
	if _, err := Open(Config{Driver: "s3", Token: "t", Owner: "o", Repo: "r"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
