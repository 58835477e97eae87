package offline

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

// Transport answers requests cache-first: a request matching the claimed store
// is served from it verbatim, anything else goes to the network exactly once
// and the response is returned without being cached. Network errors are
// returned unchanged.
type Transport struct {
	cache   *Cache
	network http.RoundTripper
}

// Transport returns a RoundTripper that intercepts requests through c.
func (c *Cache) Transport() *Transport {
	return &Transport{cache: c, network: c.network}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, ok, err := t.cache.Match(req.Context(), req)
	if err != nil {
		log.Warn().Err(err).Str("url", req.URL.String()).Msg("Offline cache lookup failed, using network")
	}
	if ok {
		t.cache.metrics.RecordCacheRequest(true)
		return resp, nil
	}
	if req.Method == http.MethodGet {
		t.cache.metrics.RecordCacheRequest(false)
	}
	return t.network.RoundTrip(req)
}
