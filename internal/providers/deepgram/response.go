package deepgram

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"voicechat/internal/domain"
)

const maxErrorBody = 4 << 10

type alternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

type channel struct {
	Alternatives     []alternative `json:"alternatives"`
	DetectedLanguage string        `json:"detected_language"`
}

// listenResponse covers both the pre-recorded result body and live caption
// messages, which carry a single channel at the top level.
type listenResponse struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	Description string `json:"description"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`

	Channel channel `json:"channel"`

	Metadata struct {
		RequestID string `json:"request_id"`
	} `json:"metadata"`

	Results struct {
		Channels []channel `json:"channels"`
	} `json:"results"`
}

type apiErrorBody struct {
	ErrCode string `json:"err_code"`
	ErrMsg  string `json:"err_msg"`
}

// bestAlternative returns the top alternative and the channel it came from.
func bestAlternative(response listenResponse) (alternative, channel, bool) {
	if len(response.Channel.Alternatives) > 0 && strings.TrimSpace(response.Channel.Alternatives[0].Transcript) != "" {
		return response.Channel.Alternatives[0], response.Channel, true
	}
	if len(response.Results.Channels) > 0 && len(response.Results.Channels[0].Alternatives) > 0 {
		first := response.Results.Channels[0]
		return first.Alternatives[0], first, true
	}
	return alternative{}, channel{}, false
}

func extractTranscript(response listenResponse) string {
	alt, _, ok := bestAlternative(response)
	if !ok {
		return ""
	}
	return strings.TrimSpace(alt.Transcript)
}

// transcription projects an upload response onto a result. language is the
// hint the request was sent with.
func (r listenResponse) transcription(language string) domain.TranscriptionResult {
	alt, ch, _ := bestAlternative(r)
	return domain.TranscriptionResult{
		Text:       strings.TrimSpace(alt.Transcript),
		Confidence: alt.Confidence,
		Language:   firstNonEmpty(ch.DetectedLanguage, language),
	}
}

// captionEvent converts a live message into a transcript event. Messages
// without text (metadata, utterance markers) report false.
func (r listenResponse) captionEvent() (domain.TranscriptEvent, bool) {
	text := extractTranscript(r)
	if text == "" {
		return domain.TranscriptEvent{}, false
	}
	kind := domain.TranscriptKindPartial
	if r.IsFinal || r.SpeechFinal {
		kind = domain.TranscriptKindFinal
	}
	return domain.TranscriptEvent{Kind: kind, Text: text, IsSpeechFinal: r.SpeechFinal}, true
}

// failure reports an error the live endpoint delivered in-band.
func (r listenResponse) failure() *domain.Error {
	if !strings.EqualFold(r.Type, "Error") {
		return nil
	}
	detail := firstNonEmpty(r.Description, r.Message, "deepgram returned an unknown error")
	return domain.NewError(domain.ErrorCodeService, detail)
}

// rejection classifies a non-2xx response from either endpoint, including
// the body Deepgram sends with a refused websocket handshake.
func rejection(resp *http.Response) *domain.Error {
	var body []byte
	if resp.Body != nil {
		body, _ = io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	}
	return classifyStatus(resp.StatusCode, body)
}

func classifyStatus(status int, body []byte) *domain.Error {
	detail := strings.TrimSpace(string(body))
	var apiErr apiErrorBody
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.ErrMsg != "" {
		detail = apiErr.ErrMsg
	}

	code := domain.ErrorCodeService
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		code = domain.ErrorCodeAuth
	case http.StatusBadRequest:
		code = domain.ErrorCodeBadInput
	case http.StatusTooManyRequests:
		code = domain.ErrorCodeRateLimited
	}
	return &domain.Error{Code: code, Status: status, Detail: detail}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
