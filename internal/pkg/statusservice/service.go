package statusservice

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/memoir/internal/pkg/persistence"
	"github.com/airenas/memoir/internal/pkg/pipeline"
	"github.com/airenas/memoir/internal/pkg/utils"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// DB loads records required for the status projection
type DB interface {
	LoadProject(ctx context.Context, id string) (*persistence.Project, error)
	LoadCycle(ctx context.Context, id string) (*persistence.Cycle, error)
	LoadJobs(ctx context.Context, projectID string) ([]*persistence.Job, error)
	LoadActiveDraft(ctx context.Context, projectID string) (*persistence.Draft, error)
}

// WSConnHandler keeps websocket subscribers
type WSConnHandler interface {
	HandleConnection(WsConn) error
	Subscribed(id string) bool
	Push(id string, v interface{}) int
}

// Data keeps data required for service work
type Data struct {
	Port      int
	DB        DB
	WSHandler WSConnHandler
}

// StartWebServer starts echo web service
func StartWebServer(data *Data) error {
	goapp.Log.Info().Msgf("Starting HTTP MEMOIR status service at %d", data.Port)
	if err := validate(data); err != nil {
		return err
	}

	return utils.ServeEcho(initRoutes(data), data.Port, 10*time.Second, 10*time.Second)
}

var promMdlw *prometheus.Prometheus

func init() {
	promMdlw = prometheus.NewPrometheus("memoir_status", nil)
}

func initRoutes(data *Data) *echo.Echo {
	e := echo.New()
	e.Use(middleware.Logger())
	promMdlw.Use(e)

	e.GET("/status/:id", statusHandler(data))
	e.GET("/live", live(data))
	e.GET("/subscribe", subscribeHandler(data))

	utils.LogRoutes(e)
	return e
}

func live(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		return c.JSONBlob(http.StatusOK, []byte(`{"service":"OK"}`))
	}
}

func statusHandler(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("status method")()

		id := c.Param("id")
		if id == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "No ID")
		}
		res, err := loadProjection(c.Request().Context(), data.DB, id)
		if err != nil {
			if errors.Is(err, persistence.ErrNotFound) {
				return echo.NewHTTPError(http.StatusNotFound, "No project")
			}
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError, "Service error")
		}
		return c.JSON(http.StatusOK, res)
	}
}

// loadProjection derives the project view from the job records
func loadProjection(ctx context.Context, db DB, id string) (*pipeline.Projection, error) {
	p, err := db.LoadProject(ctx, id)
	if err != nil {
		return nil, err
	}
	var c *persistence.Cycle
	if p.CycleID != "" {
		if c, err = db.LoadCycle(ctx, p.CycleID); err != nil && !errors.Is(err, persistence.ErrNotFound) {
			return nil, fmt.Errorf("can't load cycle: %w", err)
		}
	}
	jobs, err := db.LoadJobs(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("can't load jobs: %w", err)
	}
	d, err := db.LoadActiveDraft(ctx, id)
	if err != nil && !errors.Is(err, persistence.ErrNotFound) {
		return nil, fmt.Errorf("can't load draft: %w", err)
	}
	return pipeline.Project(p, c, jobs, d), nil
}

func validate(data *Data) error {
	if data.DB == nil {
		return fmt.Errorf("no DB")
	}
	if data.WSHandler == nil {
		return fmt.Errorf("no WSHandler")
	}
	return nil
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	}}

func subscribeHandler(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		ws, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return err
		}
		defer ws.Close()

		return data.WSHandler.HandleConnection(ws)
	}
}
