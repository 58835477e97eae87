package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"exitscan/internal/config"
	handlers "exitscan/internal/http/handler"
	"exitscan/internal/model"
	"exitscan/internal/present"
	"exitscan/internal/scan"
	"exitscan/internal/verify"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("CACHE_BACKEND", "memory")

	var out bytes.Buffer
	root := BuildCLI()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVerifyCommand(t *testing.T) {
	var calls atomic.Int32
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = json.NewDecoder(r.Body).Decode(&got)
		if got["student_id"] == "S123" {
			_, _ = io.WriteString(w, `{"success":true,"message":"Welcome","student":{"name":"Ana","course":"5B","photo_url":"/p.jpg"}}`)
			return
		}
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"message":"Door not authorized"}`)
	}))
	t.Cleanup(srv.Close)
	t.Setenv("KIOSK_ORIGIN", srv.URL)

	t.Run("accepted", func(t *testing.T) {
		out, err := execute(t, "verify", `{"id":"S123"}`, "--door", "main")
		require.NoError(t, err)

		var res model.Result
		require.NoError(t, json.Unmarshal([]byte(out), &res))
		assert.True(t, res.OK())
		assert.Equal(t, "Ana", res.Student.Name)
		assert.Equal(t, "main", got["door"])
	})

	t.Run("rejected", func(t *testing.T) {
		out, err := execute(t, "verify", `{"id":"S999"}`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Door not authorized")
		assert.Contains(t, out, `"outcome": "failure"`)
	})

	t.Run("malformed payload makes no request", func(t *testing.T) {
		before := calls.Load()
		_, err := execute(t, "verify", `{}`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), verify.MsgInvalidPayload)
		assert.Equal(t, before, calls.Load())
	})
}

func writeManifest(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "manifest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestCacheCommands(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/gone.js" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, "asset "+r.URL.Path)
	}))
	t.Cleanup(origin.Close)

	good := writeManifest(t, "version: kiosk-v2\nurls:\n  - /\n  - /static/js/scanner.js\n")
	bad := writeManifest(t, "version: kiosk-v3\nurls:\n  - /\n  - /gone.js\n")

	t.Run("install", func(t *testing.T) {
		out, err := execute(t, "cache", "install", "--origin", origin.URL, "--manifest", good)
		require.NoError(t, err)
		assert.Equal(t, "installed kiosk-v2 (2 urls)\n", out)
	})

	t.Run("install failure", func(t *testing.T) {
		_, err := execute(t, "cache", "install", "--origin", origin.URL, "--manifest", bad)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "/gone.js")
	})

	t.Run("activate without install", func(t *testing.T) {
		_, err := execute(t, "cache", "activate", "--origin", origin.URL, "--manifest", good)
		assert.Error(t, err)
	})

	t.Run("status", func(t *testing.T) {
		out, err := execute(t, "cache", "status", "--origin", origin.URL, "--manifest", good)
		require.NoError(t, err)
		assert.Equal(t, "current kiosk-v2\n", out)
	})

	t.Run("unknown backend", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "error")
		_, err := openStore(context.Background(), &config.AppConfig{Cache: config.CacheConfig{Backend: "s3"}})
		assert.Error(t, err)
	})

	t.Run("minio without endpoint", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "error")
		_, err := openStore(context.Background(), &config.AppConfig{
			Cache: config.CacheConfig{Backend: "minio"},
			MinIO: config.MinIOConfig{Bucket: "kiosk"},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "minio endpoint is required")
		assert.Contains(t, err.Error(), "minio credentials are required")
	})
}

func TestNewServer(t *testing.T) {
	cfg := &config.AppConfig{TimeZone: "UTC"}
	board := present.NewBoard()
	wf := scan.New(nil, nil, present.NewPresenter(board, nil, nil), scan.NewDoorSelector("main"), scan.Options{})

	app, err := newServer(cfg, handlers.Deps{Kiosk: wf, Display: board}, prometheus.NewRegistry())
	require.NoError(t, err)

	for path, want := range map[string]int{
		"/healthz":           http.StatusOK,
		"/health":            http.StatusOK,
		"/api/door":          http.StatusOK,
		"/swagger/doc.json":  http.StatusOK,
		"/metrics":           http.StatusOK,
		"/static/js/none.js": http.StatusNotFound,
	} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
		require.NoError(t, err, path)
		assert.Equal(t, want, resp.StatusCode, path)
	}
}
