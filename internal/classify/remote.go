package classify

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

const (
	defaultRemoteTimeout  = 120 * time.Second
	maxRemoteResponseSize = 1 << 20
)

// Remote calls an external model server over HTTP. The server contract is a
// single POST endpoint taking {"text": ...} and returning {"label": ...}.
type Remote struct {
	endpoint   string
	httpClient *http.Client
}

// NewRemote creates a remote classifier client.
func NewRemote(endpoint string, timeout time.Duration) (*Remote, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("classifier endpoint is required")
	}
	if timeout <= 0 {
		timeout = defaultRemoteTimeout
	}
	return &Remote{
		endpoint:   strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type remoteRequest struct {
	Text string `json:"text"`
}

type remoteResponse struct {
	Label string `json:"label"`
	Error string `json:"error,omitempty"`
}

// Classify sends one text to the model server.
func (r *Remote) Classify(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(remoteRequest{Text: text})
	if err != nil {
		return "", fmt.Errorf("%w: encode request: %v", ErrClassificationFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrClassificationFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrClassificationFailed, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteResponseSize))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrClassificationFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: classifier returned status %d", ErrClassificationFailed, resp.StatusCode)
	}

	var parsed remoteResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("%w: parse response: %v", ErrClassificationFailed, err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrClassificationFailed, parsed.Error)
	}
	label := strings.TrimSpace(parsed.Label)
	if label == "" {
		return "", fmt.Errorf("%w: empty label", ErrClassificationFailed)
	}
	return label, nil
}

var _ Classifier = (*Remote)(nil)
