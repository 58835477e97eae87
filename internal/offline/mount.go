package offline

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// MountPrefix is where cross-origin manifest entries are served on the kiosk's
// own origin: https://unpkg.com/x.js is reachable as /_offline/https/unpkg.com/x.js.
const MountPrefix = "/_offline/"

// mountTable maps the foreign origins named by the manifest to their local
// mount points.
type mountTable struct {
	mounts   map[string]string
	replacer *strings.Replacer
}

func newMountTable(origin string, urls []string) (*mountTable, error) {
	base, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("parse origin: %w", err)
	}
	own := base.Scheme + "://" + base.Host

	t := &mountTable{mounts: make(map[string]string)}
	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse manifest url %q: %w", raw, err)
		}
		o := u.Scheme + "://" + u.Host
		if o == own {
			continue
		}
		t.mounts[o] = MountPrefix + u.Scheme + "/" + u.Host
	}

	// Longest origin first so one origin never shadows a longer one.
	origins := make([]string, 0, len(t.mounts))
	for o := range t.mounts {
		origins = append(origins, o)
	}
	sort.Slice(origins, func(i, j int) bool {
		if len(origins[i]) != len(origins[j]) {
			return len(origins[i]) > len(origins[j])
		}
		return origins[i] < origins[j]
	})
	pairs := make([]string, 0, 2*len(origins))
	for _, o := range origins {
		pairs = append(pairs, o, t.mounts[o])
	}
	t.replacer = strings.NewReplacer(pairs...)
	return t, nil
}

// Unmount maps a mounted request path, query included, back to the absolute
// URL it stands for. Only origins listed in the manifest are mounted; anything
// else reports false.
func (c *Cache) Unmount(pathQuery string) (string, bool) {
	rest, ok := strings.CutPrefix(pathQuery, MountPrefix)
	if !ok {
		return "", false
	}
	scheme, hostPath, ok := strings.Cut(rest, "/")
	if !ok || hostPath == "" {
		return "", false
	}
	host := hostPath
	if i := strings.IndexAny(hostPath, "/?"); i >= 0 {
		host = hostPath[:i]
	}
	if _, known := c.mounts.mounts[scheme+"://"+host]; !known {
		return "", false
	}
	return scheme + "://" + hostPath, true
}

// Localize rewrites every reference to a mounted origin in body to its local
// mount point, so a page served by the kiosk loads its third-party libraries
// through the cache.
func (c *Cache) Localize(body []byte) []byte {
	if len(c.mounts.mounts) == 0 {
		return body
	}
	return []byte(c.mounts.replacer.Replace(string(body)))
}
