package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	logx "spawnbot/pkg/logx"
)

const defaultTimeout = 10 * time.Second

// githubStore maps store paths onto files in a repository via the contents
// API. Concurrency is not a concern here: the sync loop is the only caller.
type githubStore struct {
	cfg  Config
	http *http.Client
	log  logx.Logger
}

func newGitHub(cfg Config, log logx.Logger) (*githubStore, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("remote: token is required")
	}
	if strings.TrimSpace(cfg.Owner) == "" || strings.TrimSpace(cfg.Repo) == "" {
		return nil, errors.New("remote: owner and repo are required")
	}
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.github.com"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &githubStore{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
		log:  log,
	}, nil
}

type contentsResponse struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
	SHA      string `json:"sha"`
}

type contentsRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch"`
	SHA     string `json:"sha,omitempty"`
}

func (s *githubStore) contentsURL(path string) string {
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s",
		strings.TrimRight(s.cfg.BaseURL, "/"), s.cfg.Owner, s.cfg.Repo, url.PathEscape(path))
}

func (s *githubStore) Read(ctx context.Context, path string) ([]byte, error) {
	obj, err := s.fetch(ctx, path)
	if err != nil {
		return nil, err
	}
	raw := strings.ReplaceAll(obj.Content, "\n", "")
	b, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("remote: decode %s: %w", path, err)
	}
	return b, nil
}

func (s *githubStore) fetch(ctx context.Context, path string) (*contentsResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.contentsURL(path)+"?ref="+url.QueryEscape(s.cfg.Branch), http.NoBody)
	if err != nil {
		return nil, err
	}
	s.setHeaders(req)

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote: get %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	default:
		return nil, statusError("get", path, resp)
	}

	var obj contentsResponse
	if err := json.NewDecoder(resp.Body).Decode(&obj); err != nil {
		return nil, fmt.Errorf("remote: decode response for %s: %w", path, err)
	}
	return &obj, nil
}

// Write creates or replaces the file at path. The update variant needs the
// current blob SHA, so an existing file costs one extra fetch.
func (s *githubStore) Write(ctx context.Context, path string, data []byte, message string) error {
	body := contentsRequest{
		Message: message,
		Content: base64.StdEncoding.EncodeToString(data),
		Branch:  s.cfg.Branch,
	}
	if existing, err := s.fetch(ctx, path); err == nil {
		body.SHA = existing.SHA
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.contentsURL(path), bytes.NewReader(buf))
	if err != nil {
		return err
	}
	s.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("remote: put %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return statusError("put", path, resp)
	}
	if !s.log.IsZero() {
		s.log.Debug("remote write ok", logx.String("path", path))
	}
	return nil
}

func (s *githubStore) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "spawnbot")
}

func statusError(op, path string, resp *http.Response) error {
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("remote: %s %s: status %d: %s", op, path, resp.StatusCode, strings.TrimSpace(string(detail)))
}
