// Package offline keeps the kiosk page's static assets available without
// network access. A versioned manifest is precached at install time, stale
// versions are pruned at activation, and requests are then answered
// cache-first by Transport.
package offline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"exitscan/internal/clock"
	"exitscan/internal/metrics"
	"exitscan/internal/storage"
)

var (
	// ErrInstallFailed wraps every reason an install step was aborted.
	ErrInstallFailed = errors.New("offline cache install failed")
	// ErrNotInstalled is returned when activating a version whose install never completed.
	ErrNotInstalled = errors.New("offline cache not installed")
)

// Options configures a Cache. Zero values select the defaults.
type Options struct {
	// Origin resolves relative manifest URLs.
	Origin string
	// Network performs real fetches, both for install and on cache misses.
	Network http.RoundTripper
	Clock   clock.Clock
	Metrics *metrics.Collector
}

// Status summarises the cache for the kiosk state endpoint.
type Status struct {
	Version      string `json:"version"`
	Claimed      string `json:"claimed,omitempty"`
	InstallError string `json:"install_error,omitempty"`
}

// Cache is the offline asset cache for one manifest version. Install and
// Activate are the only operations that mutate the store; Match only reads.
type Cache struct {
	store    storage.Storage
	manifest Manifest
	urls     []string
	network  http.RoundTripper
	clock    clock.Clock
	metrics  *metrics.Collector
	mounts   *mountTable

	mu         sync.RWMutex
	claimed    string
	installErr error
}

// New builds a Cache for manifest m backed by store.
func New(store storage.Storage, m Manifest, opts Options) (*Cache, error) {
	if store == nil {
		return nil, errors.New("offline cache requires a store")
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	urls, err := m.Resolve(opts.Origin)
	if err != nil {
		return nil, err
	}
	mounts, err := newMountTable(opts.Origin, urls)
	if err != nil {
		return nil, err
	}
	if opts.Network == nil {
		opts.Network = http.DefaultTransport
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	return &Cache{
		store:    store,
		manifest: m,
		urls:     urls,
		network:  opts.Network,
		clock:    opts.Clock,
		metrics:  opts.Metrics,
		mounts:   mounts,
	}, nil
}

// Version returns the current manifest version.
func (c *Cache) Version() string { return c.manifest.Version }

// URLs returns the resolved manifest URLs in manifest order.
func (c *Cache) URLs() []string { return append([]string(nil), c.urls...) }

// Claimed returns the store fetch interception currently reads from, or "" if
// no store is claimed yet.
func (c *Cache) Claimed() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.claimed
}

// Status reports the manifest version, the claimed store and the last install
// error.
func (c *Cache) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := Status{Version: c.manifest.Version, Claimed: c.claimed}
	if c.installErr != nil {
		s.InstallError = c.installErr.Error()
	}
	return s
}

// Install fetches every manifest URL and stores the responses under the
// version's store. Every fetch must succeed with a 2xx status before anything
// is written, and the completion marker is written last, so a partial store is
// never reported as installed. Re-running Install overwrites the same keys.
func (c *Cache) Install(ctx context.Context) (err error) {
	version := c.manifest.Version
	defer func() {
		c.metrics.RecordInstall(err)
		c.mu.Lock()
		c.installErr = err
		c.mu.Unlock()
	}()

	log.Info().Str("cache", version).Int("urls", len(c.urls)).Msg("Installing offline cache")

	client := &http.Client{Transport: c.network}
	entries := make([]entry, 0, len(c.urls))
	for _, u := range c.urls {
		e, err := c.fetch(ctx, client, u)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInstallFailed, u, err)
		}
		entries = append(entries, e)
	}

	alreadyInstalled, err := c.installed(ctx, version)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInstallFailed, err)
	}

	var written []string
	for _, e := range entries {
		key := entryKey(version, e.URL)
		if err := putCBOR(ctx, c.store, key, e); err != nil {
			if !alreadyInstalled {
				c.rollback(ctx, written)
			}
			return fmt.Errorf("%w: store %s: %v", ErrInstallFailed, e.URL, err)
		}
		written = append(written, key)
	}

	record := installRecord{Version: version, URLs: c.urls, InstalledAt: c.clock.Now()}
	if err := putCBOR(ctx, c.store, markerKey(version), record); err != nil {
		if !alreadyInstalled {
			c.rollback(ctx, written)
		}
		return fmt.Errorf("%w: write marker: %v", ErrInstallFailed, err)
	}

	log.Info().Str("cache", version).Int("entries", len(entries)).Msg("Offline cache installed")
	return nil
}

func (c *Cache) fetch(ctx context.Context, client *http.Client, u string) (entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return entry{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return entry{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return entry{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return entry{}, fmt.Errorf("read body: %w", err)
	}
	return entry{
		URL:      u,
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     body,
		StoredAt: c.clock.Now(),
	}, nil
}

func (c *Cache) rollback(ctx context.Context, keys []string) {
	for _, k := range keys {
		if err := c.store.Delete(ctx, k); err != nil {
			log.Warn().Err(err).Str("key", k).Msg("Rollback delete failed")
		}
	}
}

func (c *Cache) installed(ctx context.Context, name string) (bool, error) {
	var rec installRecord
	err := getCBOR(ctx, c.store, markerKey(name), &rec)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, storage.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Activate deletes every store whose name is not the current version, drops
// entries of the current store that the manifest no longer lists, then claims
// the current store so interception serves from it immediately. The
// current version must have been installed.
func (c *Cache) Activate(ctx context.Context) ([]string, error) {
	version := c.manifest.Version
	ok, err := c.installed(ctx, version)
	if err != nil {
		return nil, fmt.Errorf("check install: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotInstalled, version)
	}

	names, err := c.Keys(ctx)
	if err != nil {
		return nil, err
	}

	var deleted []string
	for _, name := range names {
		if name == version {
			continue
		}
		if err := c.deleteStore(ctx, name); err != nil {
			return deleted, fmt.Errorf("delete cache %s: %w", name, err)
		}
		log.Info().Str("cache", name).Msg("Deleted stale offline cache")
		deleted = append(deleted, name)
	}

	if err := c.pruneEntries(ctx, version); err != nil {
		return deleted, fmt.Errorf("prune cache %s: %w", version, err)
	}

	c.claim(version)
	return deleted, nil
}

// pruneEntries removes entries of the named store whose URL is no longer in the
// manifest, so a list change under an unchanged version still replaces the
// cached set.
func (c *Cache) pruneEntries(ctx context.Context, name string) error {
	keep := make(map[string]bool, len(c.urls))
	for _, u := range c.urls {
		keep[entryKey(name, u)] = true
	}
	objs, err := c.store.List(ctx, storePrefix(name)+entriesDir+"/")
	if err != nil {
		return err
	}
	for _, o := range objs {
		if keep[o.Key] {
			continue
		}
		if err := c.store.Delete(ctx, o.Key); err != nil {
			return err
		}
		log.Info().Str("cache", name).Str("key", o.Key).Msg("Dropped entry no longer in manifest")
	}
	return nil
}

// Keys lists the names of every store present in the backend.
func (c *Cache) Keys(ctx context.Context) ([]string, error) {
	objs, err := c.store.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list caches: %w", err)
	}
	seen := make(map[string]bool)
	var names []string
	for _, o := range objs {
		name, _, ok := strings.Cut(o.Key, "/")
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (c *Cache) deleteStore(ctx context.Context, name string) error {
	objs, err := c.store.List(ctx, storePrefix(name))
	if err != nil {
		return err
	}
	for _, o := range objs {
		if err := c.store.Delete(ctx, o.Key); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cache) claim(name string) {
	c.mu.Lock()
	c.claimed = name
	c.mu.Unlock()
	log.Info().Str("cache", name).Msg("Offline cache claimed")
}

// claimNewestInstalled claims the most recently installed store without
// pruning anything. It returns "" when no complete store exists.
func (c *Cache) claimNewestInstalled(ctx context.Context) (string, error) {
	names, err := c.Keys(ctx)
	if err != nil {
		return "", err
	}
	var best installRecord
	for _, name := range names {
		var rec installRecord
		if err := getCBOR(ctx, c.store, markerKey(name), &rec); err != nil {
			continue
		}
		if best.Version == "" || rec.InstalledAt.After(best.InstalledAt) {
			best = rec
		}
	}
	if best.Version == "" {
		return "", nil
	}
	c.claim(best.Version)
	return best.Version, nil
}

// Match looks req up in the claimed store. Only GET requests can match. A miss
// returns ok == false with a nil error.
func (c *Cache) Match(ctx context.Context, req *http.Request) (resp *http.Response, ok bool, err error) {
	if req.Method != http.MethodGet {
		return nil, false, nil
	}
	name := c.Claimed()
	if name == "" {
		return nil, false, nil
	}

	var e entry
	err = getCBOR(ctx, c.store, entryKey(name, normalize(req.URL)), &e)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return e.response(req), true, nil
}

// Start runs the install step followed by activation. When install fails the
// newest previously installed store keeps serving, nothing is pruned, and the
// install error is returned so the caller can report it. The next Start
// retries the install.
func (c *Cache) Start(ctx context.Context) error {
	installErr := c.Install(ctx)
	if installErr == nil {
		_, err := c.Activate(ctx)
		return err
	}

	log.Error().Err(installErr).Str("cache", c.manifest.Version).Msg("Offline cache install failed")
	name, err := c.claimNewestInstalled(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Could not look up previous offline cache")
	} else if name != "" {
		log.Warn().Str("cache", name).Msg("Serving previous offline cache until the next successful install")
	}
	return installErr
}
