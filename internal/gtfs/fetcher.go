package gtfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/OneBusAway/go-gtfs"

	"tracker.gpmetro.org/internal/logging"
)

// maxStaticSize caps the static bundle download. Agency bundles are tens of
// megabytes at most; anything near this limit is a broken feed.
const maxStaticSize = 200 * 1024 * 1024

// ErrNotModified is returned by Fetch when the server reports the bundle
// unchanged from the caller's entity tag.
var ErrNotModified = errors.New("static bundle not modified")

// Fetcher downloads and parses the static schedule bundle. Sources starting
// with a scheme are fetched over HTTP; anything else is read as a local
// file, which the tests and offline development use.
type Fetcher struct {
	source          string
	authHeaderKey   string
	authHeaderValue string
	client          *http.Client
	logger          *slog.Logger
}

// NewFetcher builds a Fetcher for the given source URL or file path.
func NewFetcher(source, authHeaderKey, authHeaderValue string, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		source:          source,
		authHeaderKey:   authHeaderKey,
		authHeaderValue: authHeaderValue,
		client: &http.Client{
			Timeout: 5 * time.Minute,
			Transport: &http.Transport{
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 30 * time.Second,
				IdleConnTimeout:       90 * time.Second,
			},
		},
		logger: logger,
	}
}

// Fetch downloads and parses the bundle. previousETag, when non-empty, is
// sent as If-None-Match so an unchanged bundle costs one small round trip
// instead of a download and a re-parse; that case returns ErrNotModified.
// The returned string is the entity tag of the parsed bundle, "" when the
// server sends none.
func (f *Fetcher) Fetch(ctx context.Context, previousETag string) (*gtfs.Static, string, error) {
	data, etag, err := f.raw(ctx, previousETag)
	if err != nil {
		return nil, "", err
	}

	static, err := gtfs.ParseStatic(data, gtfs.ParseStaticOptions{})
	if err != nil {
		return nil, "", fmt.Errorf("parsing static bundle: %w", err)
	}
	if len(static.Warnings) > 0 {
		f.logger.Warn("static bundle parsed with warnings", slog.Int("count", len(static.Warnings)))
	}
	return static, etag, nil
}

func (f *Fetcher) raw(ctx context.Context, previousETag string) ([]byte, string, error) {
	if !strings.Contains(f.source, "://") {
		data, err := os.ReadFile(f.source)
		if err != nil {
			return nil, "", fmt.Errorf("reading local static bundle: %w", err)
		}
		return data, "", nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.source, nil)
	if err != nil {
		return nil, "", fmt.Errorf("creating static bundle request: %w", err)
	}
	if f.authHeaderKey != "" && f.authHeaderValue != "" {
		req.Header.Set(f.authHeaderKey, f.authHeaderValue)
	}
	if previousETag != "" {
		req.Header.Set("If-None-Match", previousETag)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("downloading static bundle: %w", err)
	}
	defer logging.SafeCloseWithLogging(resp.Body, f.logger, "static_bundle_body")

	if resp.StatusCode == http.StatusNotModified {
		return nil, "", ErrNotModified
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("downloading static bundle: received HTTP status %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxStaticSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("reading static bundle: %w", err)
	}
	if int64(len(data)) > maxStaticSize {
		return nil, "", fmt.Errorf("static bundle exceeds size limit of %d bytes", maxStaticSize)
	}
	return data, resp.Header.Get("ETag"), nil
}
