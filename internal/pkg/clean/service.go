package clean

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/memoir/internal/pkg/utils"
	"github.com/google/uuid"

	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Cleaner is a wrapper for clean functionality
type Cleaner interface {
	Clean(ctx context.Context, ID string) error
}

// JobCanceller stops unfinished project jobs
type JobCanceller interface {
	CancelJobs(ctx context.Context, projectID string) (int64, error)
}

// Data keeps data required for service work
type Data struct {
	Port    int
	Cleaner Cleaner
	Jobs    JobCanceller
}

// StartWebServer starts echo web service
func StartWebServer(data *Data) error {
	goapp.Log.Info().Int("port", data.Port).Msgf("Starting MEMOIR clean service")
	if err := validate(data); err != nil {
		return err
	}

	return utils.ServeEcho(initRoutes(data), data.Port, 10*time.Second, 10*time.Second)
}

func validate(data *Data) error {
	if data.Cleaner == nil {
		return errors.New("no cleaner")
	}
	if data.Jobs == nil {
		return errors.New("no job canceller")
	}
	return nil
}

var promMdlw *prometheus.Prometheus

func init() {
	promMdlw = prometheus.NewPrometheus("memoir_clean", nil)
}

func initRoutes(data *Data) *echo.Echo {
	e := echo.New()
	e.Use(middleware.Logger())
	promMdlw.Use(e)

	e.DELETE("/delete/:id", delete(data))
	e.GET("/live", live(data))

	utils.LogRoutes(e)
	return e
}

func live(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		return c.JSONBlob(http.StatusOK, []byte(`{"service":"OK"}`))
	}
}

type cleanResult struct {
	ID        string `json:"id"`
	Cancelled int64  `json:"cancelledJobs"`
}

// delete stops project jobs and purges all its data
func delete(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("delete method")()

		id := c.Param("id")
		if _, err := uuid.Parse(id); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "wrong ID")
		}
		ctx := c.Request().Context()
		n, err := data.Jobs.CancelJobs(ctx, id)
		if err != nil {
			goapp.Log.Error().Err(err).Str("ID", id).Send()
			return echo.NewHTTPError(http.StatusInternalServerError, "Can't cancel jobs")
		}
		goapp.Log.Info().Str("ID", id).Int64("jobs", n).Msg("cancelled")
		if err := data.Cleaner.Clean(ctx, id); err != nil {
			goapp.Log.Error().Err(err).Str("ID", id).Send()
			return echo.NewHTTPError(http.StatusInternalServerError, "Can't delete")
		}
		goapp.Log.Info().Str("ID", id).Msg("purged")
		return c.JSON(http.StatusOK, &cleanResult{ID: id, Cancelled: n})
	}
}
