package result

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/memoir/internal/pkg/filer"
	"github.com/airenas/memoir/internal/pkg/persistence"
	"github.com/airenas/memoir/internal/pkg/status"
	"github.com/airenas/memoir/internal/pkg/utils"

	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Filer loads stored objects
type Filer interface {
	LoadFile(ctx context.Context, key string) (io.ReadSeekCloser, error)
	DownloadURL(ctx context.Context, key string, ttl time.Duration, fileName string) (string, error)
}

// DB loads records of the results
type DB interface {
	LoadProject(ctx context.Context, id string) (*persistence.Project, error)
	LoadJob(ctx context.Context, id string) (*persistence.Job, error)
	LoadAsset(ctx context.Context, id string) (*persistence.AudioAsset, error)
	LoadDraft(ctx context.Context, id string) (*persistence.Draft, error)
	LoadActiveDraft(ctx context.Context, projectID string) (*persistence.Draft, error)
}

// Data keeps data required for service work
type Data struct {
	Port        int
	Filer       Filer
	DB          DB
	DownloadTTL time.Duration
}

const (
	userHeader  = "x-user-id"
	defaultName = "memoir"
)

// StartWebServer starts echo web service
func StartWebServer(data *Data) error {
	goapp.Log.Info().Int("port", data.Port).Msg("Starting MEMOIR Result service")

	if err := validate(data); err != nil {
		return err
	}

	return utils.ServeEcho(initRoutes(data), data.Port, 10*time.Second, 5*time.Minute)
}

func validate(data *Data) error {
	if data.Filer == nil {
		return errors.New("no filer")
	}
	if data.DB == nil {
		return errors.New("no DB")
	}
	if data.DownloadTTL <= 0 {
		return errors.New("no download ttl")
	}
	return nil
}

var promMdlw *prometheus.Prometheus

func init() {
	promMdlw = prometheus.NewPrometheus("memoir_result", nil)
}

func initRoutes(data *Data) *echo.Echo {
	e := echo.New()
	e.Use(middleware.Logger())
	promMdlw.Use(e)

	e.GET("/export/:jobId", download(data))
	e.HEAD("/export/:jobId", download(data))
	e.GET("/projects/:id/draft", activeDraft(data))
	e.GET("/audio/:assetId", audio(data))
	e.GET("/live", live(data))

	utils.LogRoutes(e)
	return e
}

func live(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		return c.JSONBlob(http.StatusOK, []byte(`{"service":"OK"}`))
	}
}

func checkOwner(c echo.Context, data *Data, projectID string) error {
	user := c.Request().Header.Get(userHeader)
	if user == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "no user")
	}
	p, err := data.DB.LoadProject(c.Request().Context(), projectID)
	if err != nil {
		return loadErr(err)
	}
	if p.OwnerID != user {
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	}
	return nil
}

func loadErr(err error) error {
	if errors.Is(err, persistence.ErrNotFound) || filer.IsNotFound(err) {
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	}
	goapp.Log.Error().Err(err).Send()
	return echo.NewHTTPError(http.StatusInternalServerError, "Service error")
}

func download(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("download method")()
		ctx := c.Request().Context()

		id := c.Param("jobId")
		if id == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "No ID")
		}
		j, err := data.DB.LoadJob(ctx, id)
		if err != nil {
			return loadErr(err)
		}
		if !j.Type.IsExport() {
			return echo.NewHTTPError(http.StatusNotFound, "not found")
		}
		if err := checkOwner(c, data, j.ProjectID); err != nil {
			return err
		}
		if j.Status != status.JobCompleted {
			return echo.NewHTTPError(http.StatusConflict, "export is "+j.Status.String())
		}
		var out persistence.ExportOutput
		if err := json.Unmarshal(j.Output, &out); err != nil || out.Key == "" {
			goapp.Log.Error().Err(err).Str("job", j.ID).Msg("wrong export output")
			return echo.NewHTTPError(http.StatusInternalServerError, "Wrong export")
		}
		file, err := data.Filer.LoadFile(ctx, out.Key)
		if err != nil {
			return loadErr(err)
		}
		defer file.Close()

		name := fileName(ctx, data, &out)
		w := c.Response()
		w.Header().Set(echo.HeaderContentType, out.ContentType)
		w.Header().Set(echo.HeaderContentDisposition, "attachment; filename*=UTF-8''"+url.PathEscape(name))
		modTime := time.Time{}
		if j.Completed != nil {
			modTime = *j.Completed
		}
		http.ServeContent(w, c.Request(), name, modTime, file)
		return nil
	}
}

// fileName makes the download name from the draft title
func fileName(ctx context.Context, data *Data, out *persistence.ExportOutput) string {
	title := defaultName
	d, err := data.DB.LoadDraft(ctx, out.DraftID)
	if err != nil {
		goapp.Log.Warn().Err(err).Str("draft", out.DraftID).Msg("can't load draft title")
	} else if d.Title != "" {
		title = d.Title
	}
	return title + filepath.Ext(out.Key)
}

func activeDraft(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("draft method")()
		id := c.Param("id")
		if err := checkOwner(c, data, id); err != nil {
			return err
		}
		d, err := data.DB.LoadActiveDraft(c.Request().Context(), id)
		if err != nil {
			return loadErr(err)
		}
		return c.JSON(http.StatusOK, d)
	}
}

func audio(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("audio method")()
		ctx := c.Request().Context()
		a, err := data.DB.LoadAsset(ctx, c.Param("assetId"))
		if err != nil {
			return loadErr(err)
		}
		if err := checkOwner(c, data, a.ProjectID); err != nil {
			return err
		}
		u, err := data.Filer.DownloadURL(ctx, a.StorageKey, data.DownloadTTL, a.FileName)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError, "Can't make url")
		}
		return c.Redirect(http.StatusTemporaryRedirect, u)
	}
}
