package offline

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultVersion names the built-in manifest's cache store.
const DefaultVersion = "school-exit-control-v1"

// Manifest is the versioned list of URLs the offline cache keeps available.
// Changing either the version or the list replaces the stored cache on the
// next activation.
type Manifest struct {
	Version string   `yaml:"version"`
	URLs    []string `yaml:"urls"`
}

// DefaultManifest returns the kiosk page shell, its script, the audio cues and
// the third-party libraries the page loads.
func DefaultManifest() Manifest {
	return Manifest{
		Version: DefaultVersion,
		URLs: []string{
			"/",
			"/static/js/scanner.js",
			"/static/audio/success.mp3",
			"/static/audio/error.mp3",
			"https://cdn.tailwindcss.com",
			"https://unpkg.com/html5-qrcode/html5-qrcode.min.js",
			"https://unpkg.com/alpinejs@3.x.x/dist/cdn.min.js",
		},
	}
}

// LoadManifest reads a YAML manifest from path. An empty path yields the
// default manifest.
func LoadManifest(path string) (Manifest, error) {
	if path == "" {
		return DefaultManifest(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(b, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// Validate checks that the manifest can name a cache store and lists at least
// one URL.
func (m Manifest) Validate() error {
	if m.Version == "" {
		return errors.New("manifest version is required")
	}
	if strings.ContainsAny(m.Version, "/\\") {
		return fmt.Errorf("manifest version %q must not contain path separators", m.Version)
	}
	if len(m.URLs) == 0 {
		return errors.New("manifest lists no urls")
	}
	return nil
}

// Resolve turns every manifest entry into an absolute cache key, resolving
// relative entries against origin. Duplicates are dropped, order is kept.
func (m Manifest) Resolve(origin string) ([]string, error) {
	base, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("parse origin: %w", err)
	}
	seen := make(map[string]bool, len(m.URLs))
	out := make([]string, 0, len(m.URLs))
	for _, raw := range m.URLs {
		ref, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse manifest url %q: %w", raw, err)
		}
		abs := base.ResolveReference(ref)
		if !abs.IsAbs() {
			return nil, fmt.Errorf("manifest url %q is relative and no origin is configured", raw)
		}
		key := normalize(abs)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, key)
	}
	return out, nil
}

// normalize drops the fragment; the rest of the URL, query included, is
// significant for matching.
func normalize(u *url.URL) string {
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	return c.String()
}
