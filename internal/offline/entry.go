package offline

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fxamacker/cbor/v2"

	"exitscan/internal/storage"
)

// entry is a cached response as persisted in the store.
type entry struct {
	URL      string              `cbor:"url"`
	Status   int                 `cbor:"status"`
	Header   map[string][]string `cbor:"header"`
	Body     []byte              `cbor:"body"`
	StoredAt time.Time           `cbor:"stored_at"`
}

// installRecord marks a store as completely installed. It is written after
// every entry, so its presence means the whole manifest is cached.
type installRecord struct {
	Version     string    `cbor:"version"`
	URLs        []string  `cbor:"urls"`
	InstalledAt time.Time `cbor:"installed_at"`
}

const (
	entriesDir = "entries"
	markerName = "manifest"
)

func storePrefix(name string) string { return name + "/" }

func entryKey(name, url string) string {
	sum := sha256.Sum256([]byte(url))
	return storePrefix(name) + entriesDir + "/" + hex.EncodeToString(sum[:])
}

func markerKey(name string) string { return storePrefix(name) + markerName }

// response rebuilds an *http.Response from the cached entry.
func (e entry) response(req *http.Request) *http.Response {
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", e.Status, http.StatusText(e.Status)),
		StatusCode:    e.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header(e.Header).Clone(),
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

func putCBOR(ctx context.Context, store storage.Storage, key string, v any) error {
	b, err := cbor.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	_, err = store.Put(ctx, key, bytes.NewReader(b), storage.PutObjectOptions{
		Size:        int64(len(b)),
		ContentType: "application/cbor",
	})
	return err
}

func getCBOR(ctx context.Context, store storage.Storage, key string, v any) error {
	rc, _, err := store.Get(ctx, key)
	if err != nil {
		return err
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	if err := cbor.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}
