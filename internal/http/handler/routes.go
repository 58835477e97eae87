package handler

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"exitscan/internal/http/middleware"
	"exitscan/internal/offline"
	"exitscan/internal/present"
	"exitscan/internal/scan"
)

// Kiosk is the part of the scan workflow the HTTP surface drives.
type Kiosk interface {
	State() scan.Snapshot
	Reload(ctx context.Context) error
	Doors() *scan.DoorSelector
}

// Display exposes the view the kiosk page renders.
type Display interface {
	Current() present.View
}

// CacheStatus reports the offline cache state.
type CacheStatus interface {
	Status() offline.Status
}

// Mounts maps the cross-origin assets of the offline manifest onto the kiosk
// origin.
type Mounts interface {
	Unmount(pathQuery string) (string, bool)
	Localize(body []byte) []byte
}

// Deps are the collaborators of RegisterRoutes. Cache, Assets and Metrics are
// optional; their routes are skipped when nil.
type Deps struct {
	Kiosk   Kiosk
	Display Display
	Cache   CacheStatus
	// Assets fetches page assets; normally the offline cache transport.
	Assets http.RoundTripper
	// Mounts is optional; without it every asset path is proxied to Origin.
	Mounts Mounts
	// Origin is prefixed to asset request paths.
	Origin  string
	Metrics prometheus.Gatherer
}

type stateResponse struct {
	scan.Snapshot
	Cache *offline.Status `json:"cache,omitempty"`
}

type doorBody struct {
	Door string `json:"door"`
}

// hopHeaders are not forwarded from the origin response.
var hopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Content-Length":      true,
}

// RegisterRoutes attaches the kiosk routes to app. The asset catch-all is
// registered last so it never shadows API routes.
func RegisterRoutes(app *fiber.App, d Deps) {
	app.Get("/health", HealthCheck(d.Kiosk))
	app.Get("/healthz", LivenessProbe())

	if d.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(d.Metrics, promhttp.HandlerOpts{})))
	}

	api := app.Group("/api", middleware.NoStore())
	api.Get("/state", GetState(d.Kiosk, d.Cache))
	api.Get("/display", GetDisplay(d.Display))
	api.Get("/door", GetDoor(d.Kiosk))
	api.Put("/door", PutDoor(d.Kiosk))
	api.Post("/reload", Reload(d.Kiosk, d.Cache))

	if d.Assets != nil {
		app.Get("/*", AssetProxy(d.Origin, d.Assets, d.Mounts))
	}
}

// HealthCheck reports 503 while the workflow is faulted.
//
// @Summary Readiness; 503 while the camera is unavailable
// @Tags health
// @Produce json
// @Success 200 {object} map[string]any
// @Failure 503 {object} errorPayload
// @Router /health [get]
func HealthCheck(k Kiosk) fiber.Handler {
	return func(c *fiber.Ctx) error {
		snap := k.State()
		if snap.State == scan.StateFaulted {
			return writeError(c, fiber.StatusServiceUnavailable, "CAMERA_UNAVAILABLE", snap.Fault)
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy", "state": snap.State})
	}
}

// LivenessProbe answers 200 as long as the process serves HTTP.
//
// @Summary Liveness
// @Tags health
// @Success 200
// @Router /healthz [get]
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}

// GetState returns the workflow snapshot and, when available, the offline
// cache status.
//
// @Summary Scan workflow and offline cache state
// @Tags kiosk
// @Produce json
// @Success 200 {object} stateResponse
// @Router /api/state [get]
func GetState(k Kiosk, cache CacheStatus) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(buildState(k, cache))
	}
}

// GetDisplay returns the view the kiosk page should render.
//
// @Summary Current status region and photo view
// @Tags kiosk
// @Produce json
// @Success 200 {object} present.View
// @Router /api/display [get]
func GetDisplay(d Display) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(d.Current())
	}
}

// GetDoor returns the selected door.
//
// @Summary Selected door
// @Tags kiosk
// @Produce json
// @Success 200 {object} doorBody
// @Router /api/door [get]
func GetDoor(k Kiosk) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(doorBody{Door: k.Doors().Current()})
	}
}

// PutDoor changes the selected door. The value is opaque to the kiosk; the
// backend decides what is valid.
//
// @Summary Select the door sent with each scan
// @Tags kiosk
// @Accept json
// @Produce json
// @Param body body doorBody true "Door"
// @Success 200 {object} doorBody
// @Failure 400 {object} errorPayload
// @Router /api/door [put]
func PutDoor(k Kiosk) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body doorBody
		if err := c.BodyParser(&body); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "body must be a JSON object with a door field")
		}
		k.Doors().Set(body.Door)
		zerolog.Ctx(c.UserContext()).Info().Str("door", body.Door).Msg("Door changed")
		return c.JSON(body)
	}
}

// Reload re-runs camera initialisation.
//
// @Summary Re-run camera initialisation
// @Tags kiosk
// @Produce json
// @Success 200 {object} stateResponse
// @Failure 503 {object} errorPayload
// @Router /api/reload [post]
func Reload(k Kiosk, cache CacheStatus) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := k.Reload(c.UserContext()); err != nil {
			zerolog.Ctx(c.UserContext()).Error().Err(err).Msg("Reload failed")
			return writeError(c, fiber.StatusServiceUnavailable, "CAMERA_UNAVAILABLE", k.State().Fault)
		}
		return c.JSON(buildState(k, cache))
	}
}

func buildState(k Kiosk, cache CacheStatus) stateResponse {
	res := stateResponse{Snapshot: k.State()}
	if cache != nil {
		st := cache.Status()
		res.Cache = &st
	}
	return res
}

// AssetProxy serves page assets through rt, which answers from the offline
// cache when it can and from origin otherwise. Paths under a mount are fetched
// from the third-party origin they stand for, and HTML pages are rewritten to
// reference those mounts.
func AssetProxy(origin string, rt http.RoundTripper, mounts Mounts) fiber.Handler {
	return func(c *fiber.Ctx) error {
		logger := zerolog.Ctx(c.UserContext())

		target := origin + c.OriginalURL()
		if mounts != nil {
			if abs, ok := mounts.Unmount(c.OriginalURL()); ok {
				target = abs
			}
		}
		req, err := http.NewRequestWithContext(c.UserContext(), http.MethodGet, target, nil)
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "BAD_REQUEST", "bad request")
		}
		resp, err := rt.RoundTrip(req)
		if err != nil {
			logger.Warn().Err(err).Str("url", req.URL.String()).Msg("Asset fetch failed")
			return writeError(c, fiber.StatusBadGateway, "ORIGIN_UNAVAILABLE", "asset unavailable")
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			logger.Warn().Err(err).Str("url", req.URL.String()).Msg("Asset read failed")
			return writeError(c, fiber.StatusBadGateway, "ORIGIN_UNAVAILABLE", "asset unavailable")
		}

		if mounts != nil && strings.HasPrefix(resp.Header.Get(fiber.HeaderContentType), fiber.MIMETextHTML) {
			body = mounts.Localize(body)
		}

		for k, vs := range resp.Header {
			if hopHeaders[http.CanonicalHeaderKey(k)] {
				continue
			}
			for _, v := range vs {
				c.Response().Header.Add(k, v)
			}
		}
		return c.Status(resp.StatusCode).Send(body)
	}
}
