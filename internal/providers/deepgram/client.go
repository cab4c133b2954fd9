package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"voicechat/internal/domain"
	"voicechat/internal/httpc"
	"voicechat/internal/logging"
)

// Client uploads finished recordings to the pre-recorded listen endpoint.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config) *Client {
	cfg = cfg.withDefaults()
	client := cfg.HTTPClient
	if client == nil {
		client = httpc.Client
	}
	return &Client{
		cfg:    cfg,
		http:   client,
		logger: logging.With("component", "deepgram"),
	}
}

// Transcribe sends blob as the raw request body and returns the trimmed
// transcript. An empty transcript is a NoSpeech result, not an error.
func (c *Client) Transcribe(ctx context.Context, blob domain.AudioBlob, languageHint string) (domain.TranscriptionResult, error) {
	if c.cfg.APIKey == "" {
		return domain.TranscriptionResult{}, domain.NewError(domain.ErrorCodeConfiguration, "DEEPGRAM_API_KEY is not configured")
	}
	if blob.Empty() {
		return domain.TranscriptionResult{}, domain.NewError(domain.ErrorCodeBadInput, "recording is empty")
	}

	language := strings.TrimSpace(languageHint)
	if language == "" {
		language = c.cfg.Language
	}

	endpoint, err := c.cfg.listenEndpoint(false)
	if err != nil {
		return domain.TranscriptionResult{}, domain.WrapError(domain.ErrorCodeConfiguration, err, "")
	}
	query := endpoint.Query()
	query.Set("model", c.cfg.Model)
	if language != "" {
		query.Set("language", language)
	}
	query.Set("punctuate", "true")
	query.Set("diarize", "false")
	query.Set("smart_format", fmt.Sprintf("%t", c.cfg.SmartFormat))
	endpoint.RawQuery = query.Encode()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(blob.Data))
	if err != nil {
		return domain.TranscriptionResult{}, domain.WrapError(domain.ErrorCodeConfiguration, err, "failed to build request")
	}
	req.Header.Set("Authorization", "Token "+c.cfg.APIKey)
	req.Header.Set("Content-Type", ContentType(blob.MIMEType))

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.TranscriptionResult{}, domain.WrapError(domain.ErrorCodeNetwork, err, "failed to reach Deepgram")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		classified := rejection(resp)
		c.logger.Warn("transcription rejected", "status", resp.StatusCode, "code", classified.Code, "detail", classified.Detail)
		return domain.TranscriptionResult{}, classified
	}

	var parsed listenResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		if ctx.Err() != nil {
			return domain.TranscriptionResult{}, domain.WrapError(domain.ErrorCodeNetwork, err, "response interrupted")
		}
		return domain.TranscriptionResult{}, &domain.Error{Code: domain.ErrorCodeService, Status: resp.StatusCode, Detail: "malformed response", Err: err}
	}

	result := parsed.transcription(language)
	c.logger.Debug("transcription complete",
		"request_id", parsed.Metadata.RequestID,
		"chars", len(result.Text),
		"confidence", result.Confidence,
	)
	return result, nil
}

// ContentType maps a recorder MIME type to the upload content type.
func ContentType(mimeType string) string {
	lower := strings.ToLower(mimeType)
	switch {
	case strings.Contains(lower, "wav"):
		return "audio/wav"
	case strings.Contains(lower, "mp3"):
		return "audio/mp3"
	case strings.Contains(lower, "ogg"):
		return "audio/ogg"
	default:
		return "audio/webm"
	}
}
