package httpapi

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/ultralove/dod/internal/geo"
	"github.com/ultralove/dod/internal/pipeline"
	"github.com/ultralove/dod/internal/scheduler"
	"github.com/ultralove/dod/internal/series"
	"github.com/ultralove/dod/internal/store"
)

var validate = validator.New()

// LocationUpdater accepts raw position updates.
type LocationUpdater interface {
	Update(loc geo.Coordinate) (bool, error)
	Current() (geo.Coordinate, bool)
}

// SubscriptionLister reports scheduler state.
type SubscriptionLister interface {
	Snapshot() []scheduler.Subscription
}

// PlaceNamer turns a position into a display name.
type PlaceNamer interface {
	PlaceName(ctx context.Context, loc geo.Coordinate) (string, error)
}

// Deps are the collaborators behind the routes. Geocoder and Metrics may be nil.
type Deps struct {
	Store         pipeline.Store
	Controllers   []pipeline.ControllerSpec
	Location      LocationUpdater
	Subscriptions SubscriptionLister
	Geocoder      PlaceNamer
	Metrics       http.Handler
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	if deps.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(deps.Metrics))
	}

	v1 := app.Group("/api/v1")

	v1.Get("/controllers", func(c *fiber.Ctx) error {
		out := make([]controllerView, 0, len(deps.Controllers))
		for _, spec := range deps.Controllers {
			out = append(out, newControllerView(spec))
		}
		return c.JSON(out)
	})

	v1.Get("/series", func(c *fiber.Ctx) error {
		key, err := parseKey(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		result, err := deps.Store.GetLatest(c.UserContext(), key)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no data for requested series")
			}
			log.Printf("ERROR: api: latest %s: %v", key, err)
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch series")
		}
		return c.JSON(result)
	})

	v1.Get("/series/history", func(c *fiber.Ctx) error {
		var req historyQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		results, err := deps.Store.GetRange(c.UserContext(), req.Key, req.From, req.To)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no history for requested range")
			}
			log.Printf("ERROR: api: history %s: %v", req.Key, err)
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch series history")
		}

		return c.JSON(fiber.Map{
			"controller": req.Key.Controller,
			"selector":   req.Key.Selector,
			"from":       req.From,
			"to":         req.To,
			"results":    results,
		})
	})

	v1.Get("/location", func(c *fiber.Ctx) error {
		loc, ok := deps.Location.Current()
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "no location set")
		}
		return c.JSON(loc)
	})

	v1.Put("/location", func(c *fiber.Ctx) error {
		var req locationRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid location body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		loc := geo.Coordinate{Latitude: *req.Latitude, Longitude: *req.Longitude}
		changed, err := deps.Location.Update(loc)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		resp := fiber.Map{"location": loc, "changed": changed}
		if deps.Geocoder != nil {
			ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
			defer cancel()
			name, err := deps.Geocoder.PlaceName(ctx, loc)
			if err != nil {
				log.Printf("api: reverse geocoding failed: %v", err)
			}
			resp["place"] = name
		}
		return c.JSON(resp)
	})

	v1.Get("/subscriptions", func(c *fiber.Ctx) error {
		subs := deps.Subscriptions.Snapshot()
		out := make([]subscriptionView, 0, len(subs))
		for _, s := range subs {
			out = append(out, subscriptionView{
				ID:               s.ID.String(),
				Name:             s.Name,
				TimeoutSeconds:   s.Timeout.Seconds(),
				RemainingSeconds: s.Remaining.Seconds(),
				InFlight:         s.InFlight,
			})
		}
		return c.JSON(out)
	})
}

// ─── Views ────────────────────────────────────────────────────────────────────

type controllerView struct {
	Name           string                  `json:"name"`
	TimeoutSeconds float64                 `json:"timeoutSeconds"`
	StepSeconds    float64                 `json:"stepSeconds"`
	HorizonSeconds float64                 `json:"horizonSeconds"`
	Smoothing      string                  `json:"smoothing"`
	Selectors      []pipeline.SelectorSpec `json:"selectors"`
}

func newControllerView(spec pipeline.ControllerSpec) controllerView {
	timeout := spec.Timeout
	if timeout < scheduler.MinTimeout {
		timeout = scheduler.MinTimeout
	}
	smoothing := spec.Smoothing.Kind
	if smoothing == "" {
		smoothing = "none"
	}
	return controllerView{
		Name:           spec.Name,
		TimeoutSeconds: timeout.Seconds(),
		StepSeconds:    spec.Step.Seconds(),
		HorizonSeconds: spec.Horizon.Seconds(),
		Smoothing:      smoothing,
		Selectors:      spec.Selectors,
	}
}

type subscriptionView struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	TimeoutSeconds   float64 `json:"timeoutSeconds"`
	RemainingSeconds float64 `json:"remainingSeconds"`
	InFlight         bool    `json:"inFlight"`
}

// ─── Requests ─────────────────────────────────────────────────────────────────

type locationRequest struct {
	Latitude  *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
}

func parseKey(c *fiber.Ctx) (pipeline.Key, error) {
	key := pipeline.Key{
		Controller: c.Query("controller"),
		Selector:   series.Selector(c.Query("selector")),
	}
	if err := validate.Struct(key); err != nil {
		return key, err
	}
	return key, nil
}

// historyQuery holds query parameters for the history endpoint.
type historyQuery struct {
	Key  pipeline.Key
	From time.Time `validate:"required"`
	To   time.Time `validate:"required,gtefield=From"`
}

func (h *historyQuery) bind(c *fiber.Ctx) error {
	key, err := parseKey(c)
	if err != nil {
		return err
	}
	h.Key = key

	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" || toStr == "" {
		return errors.New("from and to query parameters are required")
	}

	from, err := parseTime(fromStr)
	if err != nil {
		return err
	}
	to, err := parseTime(toStr)
	if err != nil {
		return err
	}

	h.From = from
	h.To = to
	return nil
}

// parseTime tries to parse either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}
