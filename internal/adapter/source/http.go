package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/storm-raster-viewer/internal/domain"
)

// maxBody caps a single document download.
const maxBody = 64 << 20

// HTTP fetches documents relative to a base URL.
type HTTP struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTP creates an HTTP source. Names are appended to baseURL as a path
// segment.
func NewHTTP(baseURL string, timeout time.Duration, logger *slog.Logger) *HTTP {
	return &HTTP{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Fetch downloads baseURL/name. A 404 is reported as domain.ErrNotFound.
func (h *HTTP) Fetch(ctx context.Context, name string) ([]byte, error) {
	u := h.baseURL + "/" + url.PathEscape(name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &domain.FetchError{Name: name, Err: fmt.Errorf("create request: %w", err)}
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, &domain.FetchError{Name: name, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, &domain.FetchError{Name: name, Err: domain.ErrNotFound}
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &domain.FetchError{Name: name, Err: fmt.Errorf("status %d: %s", resp.StatusCode, body)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody+1))
	if err != nil {
		return nil, &domain.FetchError{Name: name, Err: fmt.Errorf("read body: %w", err)}
	}
	if len(data) > maxBody {
		return nil, &domain.FetchError{Name: name, Err: fmt.Errorf("body exceeds %d bytes", maxBody)}
	}
	h.logger.Debug("fetched document", "name", name, "bytes", len(data))
	return data, nil
}
