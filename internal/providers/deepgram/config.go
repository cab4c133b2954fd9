package deepgram

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultAPIBaseURL = "https://api.deepgram.com/v1"
	DefaultModel      = "whisper-large"
	DefaultTimeout    = 30 * time.Second
)

// Config controls Deepgram request settings shared by the upload client and
// live captions.
type Config struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	Language    string
	SmartFormat bool
	// Timeout bounds one upload, including reading the response.
	Timeout    time.Duration
	HTTPClient *http.Client
}

func (c Config) withDefaults() Config {
	c.APIKey = strings.TrimSpace(c.APIKey)
	if strings.TrimSpace(c.APIBaseURL) == "" {
		c.APIBaseURL = DefaultAPIBaseURL
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// listenEndpoint resolves {base}/listen, switching to ws(s) for live captions.
func (c Config) listenEndpoint(websocket bool) (*url.URL, error) {
	base := strings.TrimRight(strings.TrimSpace(c.APIBaseURL), "/")
	if websocket {
		switch {
		case strings.HasPrefix(base, "https://"):
			base = "wss://" + strings.TrimPrefix(base, "https://")
		case strings.HasPrefix(base, "http://"):
			base = "ws://" + strings.TrimPrefix(base, "http://")
		}
	}

	endpoint, err := url.Parse(base + "/listen")
	if err != nil {
		return nil, fmt.Errorf("invalid Deepgram API base URL: %w", err)
	}
	return endpoint, nil
}
