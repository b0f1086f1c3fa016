package generator

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cwbudde/algo-restyle/internal/wavio"
)

const (
	DefaultMiniMaxURL   = "https://api.minimaxi.chat"
	DefaultMiniMaxModel = "music-1.5"

	// The hosted API rejects prompts longer than this.
	maxMiniMaxPrompt = 300
	// Instrumental placeholder satisfying the lyrics length minimum.
	instrumentalLyrics = "[Intro]\n[Outro]"
)

// APIError is an error reported by the hosted music API.
type APIError struct {
	StatusCode int    `json:"status_code"`
	StatusMsg  string `json:"status_msg"`
	HTTPStatus int    `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("minimax: %s (code=%d, http=%d)", e.StatusMsg, e.StatusCode, e.HTTPStatus)
}

func (e *APIError) IsRateLimit() bool {
	return e.StatusCode == 1002 || e.HTTPStatus == http.StatusTooManyRequests
}

func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 5000 || e.HTTPStatus >= 500
}

// Retryable reports whether the request may succeed on retry.
func (e *APIError) Retryable() bool {
	return e.IsRateLimit() || e.IsServerError()
}

// MiniMax generates music from the prompt alone through the hosted API.
// The melody clip is not sent.
type MiniMax struct {
	BaseURL    string
	APIKey     string
	Model      string
	Lyrics     string
	MaxRetries int
	Backoff    time.Duration
	HTTPClient *http.Client
}

func NewMiniMax(apiKey string) *MiniMax {
	return &MiniMax{
		BaseURL:    DefaultMiniMaxURL,
		APIKey:     apiKey,
		Model:      DefaultMiniMaxModel,
		Lyrics:     instrumentalLyrics,
		MaxRetries: 2,
		Backoff:    time.Second,
		HTTPClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

type miniMaxRequest struct {
	Model        string            `json:"model,omitempty"`
	Prompt       string            `json:"prompt"`
	Lyrics       string            `json:"lyrics"`
	AudioSetting miniMaxAudioSetup `json:"audio_setting"`
}

type miniMaxAudioSetup struct {
	SampleRate int    `json:"sample_rate"`
	Format     string `json:"format"`
}

type miniMaxBaseResp struct {
	StatusCode int    `json:"status_code"`
	StatusMsg  string `json:"status_msg"`
}

type miniMaxResponse struct {
	Data struct {
		Audio string `json:"audio"`
	} `json:"data"`
	BaseResp *miniMaxBaseResp `json:"base_resp"`
}

// Generate requests a track and writes the decoded WAV to req.OutputPath.
func (m *MiniMax) Generate(ctx context.Context, req Request) (string, error) {
	if m.APIKey == "" {
		return "", errors.New("minimax: api key is required")
	}
	if req.OutputPath == "" {
		return "", errors.New("minimax: output path is required")
	}
	body, err := json.Marshal(miniMaxRequest{
		Model:        m.Model,
		Prompt:       truncateWords(req.Prompt, maxMiniMaxPrompt),
		Lyrics:       m.Lyrics,
		AudioSetting: miniMaxAudioSetup{SampleRate: 32000, Format: "wav"},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request body: %w", err)
	}

	var resp miniMaxResponse
	if err := m.request(ctx, body, &resp); err != nil {
		return "", err
	}
	if resp.Data.Audio == "" {
		return "", fmt.Errorf("%w: empty audio in response", ErrNoOutput)
	}
	audio, err := hex.DecodeString(strings.Join(strings.Fields(resp.Data.Audio), ""))
	if err != nil {
		return "", fmt.Errorf("minimax: decode audio: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0o755); err != nil {
		return "", fmt.Errorf("minimax: create output dir: %w", err)
	}
	if err := os.WriteFile(req.OutputPath, audio, 0o644); err != nil {
		return "", fmt.Errorf("minimax: write audio: %w", err)
	}
	if err := wavio.Validate(req.OutputPath); err != nil {
		return "", fmt.Errorf("minimax: %w", err)
	}
	return req.OutputPath, nil
}

// request posts body with exponential backoff on retryable failures.
func (m *MiniMax) request(ctx context.Context, body []byte, result any) error {
	var lastErr error
	for attempt := 0; attempt <= m.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := m.Backoff * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
		err := m.do(ctx, body, result)
		if err == nil {
			return nil
		}
		lastErr = err
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Retryable() {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return lastErr
}

func (m *MiniMax) do(ctx context.Context, body []byte, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.BaseURL+"/v1/music_generation", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.APIKey)
	req.Header.Set("Content-Type", "application/json")

	client := m.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	var base struct {
		BaseResp *miniMaxBaseResp `json:"base_resp"`
	}
	parsed := json.Unmarshal(data, &base) == nil
	if resp.StatusCode != http.StatusOK {
		if parsed && base.BaseResp != nil {
			return &APIError{StatusCode: base.BaseResp.StatusCode, StatusMsg: base.BaseResp.StatusMsg, HTTPStatus: resp.StatusCode}
		}
		return &APIError{StatusCode: resp.StatusCode, StatusMsg: string(data), HTTPStatus: resp.StatusCode}
	}
	if parsed && base.BaseResp != nil && base.BaseResp.StatusCode != 0 {
		return &APIError{StatusCode: base.BaseResp.StatusCode, StatusMsg: base.BaseResp.StatusMsg, HTTPStatus: resp.StatusCode}
	}
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// truncateWords shortens s to at most n bytes, cutting at a space when one
// is available and never inside a rune.
func truncateWords(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	cut := s[:n]
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.;")
}
