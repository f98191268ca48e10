// Package rt polls the GTFS-RT feeds and reconciles them against the static
// schedule into the live records the prediction store serves.
package rt

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	gtfsrt "github.com/OneBusAway/go-gtfs/proto"
	"google.golang.org/protobuf/proto"

	"tracker.gpmetro.org/internal/logging"
)

// maxFeedSize caps a single GTFS-RT download. Feeds for this system are a
// few hundred kilobytes; the limit only guards against a misbehaving server.
const maxFeedSize = 25 * 1024 * 1024

// feedHTTPClient is a dedicated client for feed fetching, configured with
// explicit timeouts instead of the unbounded http.DefaultClient. The
// transport is cloned from http.DefaultTransport to preserve its defaults
// (ProxyFromEnvironment, DialContext, HTTP/2, keepalives).
var feedHTTPClient = newFeedHTTPClient()

func newFeedHTTPClient() *http.Client {
	var transport *http.Transport
	if t, ok := http.DefaultTransport.(*http.Transport); ok {
		transport = t.Clone()
	} else {
		transport = &http.Transport{}
	}
	transport.MaxIdleConns = 50
	transport.MaxIdleConnsPerHost = 10
	transport.IdleConnTimeout = 90 * time.Second
	transport.TLSHandshakeTimeout = 10 * time.Second
	transport.ExpectContinueTimeout = 1 * time.Second

	return &http.Client{
		// Safety net per request; callers also set a context timeout and
		// the stricter of the two wins.
		Timeout:   10 * time.Second,
		Transport: transport,
	}
}

// fetchFeed downloads and decodes one GTFS-RT feed message.
func (p *Poller) fetchFeed(ctx context.Context, url string) (*gtfsrt.FeedMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if p.authHeaderKey != "" && p.authHeaderValue != "" {
		req.Header.Set(p.authHeaderKey, p.authHeaderValue)
	}

	resp, err := feedHTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer logging.SafeCloseWithLogging(resp.Body, p.logger, "feed_response_body")

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: received HTTP status %s", url, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading feed body: %w", err)
	}
	if int64(len(body)) > maxFeedSize {
		return nil, fmt.Errorf("feed response exceeds size limit of %d bytes", maxFeedSize)
	}

	feed := &gtfsrt.FeedMessage{}
	if err := proto.Unmarshal(body, feed); err != nil {
		return nil, fmt.Errorf("decoding feed message: %w", err)
	}
	return feed, nil
}
