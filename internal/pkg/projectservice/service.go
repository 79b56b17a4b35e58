package projectservice

import (
	"context"
	"io"
	"net/http"
	"time"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/memoir/internal/pkg/generator"
	"github.com/airenas/memoir/internal/pkg/messages"
	"github.com/airenas/memoir/internal/pkg/persistence"
	"github.com/airenas/memoir/internal/pkg/utils"
	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
)

// Filer stores clips
type Filer interface {
	SaveFile(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Exists(ctx context.Context, key string) (bool, error)
	UploadURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Remove(ctx context.Context, key string) error
}

// MsgSender provides send msg functionality
type MsgSender interface {
	SendMessage(context.Context, amessages.Message, string) error
}

// Generator rewrites a chapter
type Generator interface {
	Regenerate(ctx context.Context, in *generator.RegenerateInput) (*persistence.Chapter, error)
}

// DB keeps projects and starts jobs
type DB interface {
	InsertProject(ctx context.Context, p *persistence.Project) error
	LoadProject(ctx context.Context, id string) (*persistence.Project, error)
	DeleteProject(ctx context.Context, id string) error
	InsertAsset(ctx context.Context, a *persistence.AudioAsset) error
	LoadAssets(ctx context.Context, projectID string) ([]*persistence.AudioAsset, error)
	DeleteAsset(ctx context.Context, projectID, assetID string) (*persistence.AudioAsset, error)
	StartCycle(ctx context.Context, req *persistence.CycleRequest) (*persistence.Cycle, []*persistence.Job, error)
	Enqueue(ctx context.Context, req *persistence.EnqueueRequest) (*persistence.Job, error)
	LoadDraft(ctx context.Context, id string) (*persistence.Draft, error)
	LoadActiveDraft(ctx context.Context, projectID string) (*persistence.Draft, error)
	SaveDraft(ctx context.Context, jobID string, d *persistence.Draft) (*persistence.Draft, error)
}

// Data keeps data required for service work
type Data struct {
	Port      int
	DB        DB
	Filer     Filer
	MsgSender MsgSender
	Generator Generator

	Policy    persistence.Policy
	MinClips  int
	UploadTTL time.Duration
}

const userHeader = "x-user-id"

// StartWebServer starts echo web service
func StartWebServer(data *Data) error {
	goapp.Log.Info().Msgf("Starting HTTP MEMOIR project service at %d", data.Port)
	if err := validate(data); err != nil {
		return err
	}

	return utils.ServeEcho(initRoutes(data), data.Port, 180*time.Second, 180*time.Second)
}

func validate(data *Data) error {
	if data.Filer == nil {
		return errors.New("no filer")
	}
	if data.DB == nil {
		return errors.New("no DB")
	}
	if data.MsgSender == nil {
		return errors.New("no msg sender")
	}
	if data.Generator == nil {
		return errors.New("no generator")
	}
	if data.UploadTTL <= 0 {
		return errors.Errorf("wrong upload url ttl %v", data.UploadTTL)
	}
	return nil
}

var promMdlw *prometheus.Prometheus

func init() {
	promMdlw = prometheus.NewPrometheus("memoir_project", nil)
}

func initRoutes(data *Data) *echo.Echo {
	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.BodyLimit("210M"))
	promMdlw.Use(e)

	e.POST("/projects", createProject(data))
	e.GET("/projects/:id", getProject(data))
	e.DELETE("/projects/:id", deleteProject(data))
	e.POST("/projects/:id/assets/presign", presign(data))
	e.POST("/projects/:id/assets/confirm", confirm(data))
	e.POST("/projects/:id/assets", upload(data))
	e.DELETE("/projects/:id/assets/:assetId", deleteAsset(data))
	e.POST("/projects/:id/submit", submit(data))
	e.POST("/projects/:id/export", exportDraft(data))
	e.POST("/drafts/:id/regenerate", regenerate(data))
	e.GET("/live", live(data))

	utils.LogRoutes(e)
	return e
}

func live(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		return c.JSONBlob(http.StatusOK, []byte(`{"service":"OK"}`))
	}
}

// ownedProject loads the project of the path param and checks the owner
func ownedProject(c echo.Context, data *Data, id string) (*persistence.Project, error) {
	user := c.Request().Header.Get(userHeader)
	if user == "" {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "no user")
	}
	if id == "" {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "no ID")
	}
	p, err := data.DB.LoadProject(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return nil, echo.NewHTTPError(http.StatusNotFound, "no project")
		}
		goapp.Log.Error().Err(err).Send()
		return nil, echo.NewHTTPError(http.StatusInternalServerError)
	}
	if p.OwnerID != user {
		goapp.Log.Warn().Str("ID", id).Str("user", goapp.Sanitize(user)).Msg("not owner")
		return nil, echo.NewHTTPError(http.StatusNotFound, "no project")
	}
	return p, nil
}

// storeErr maps store errors to http errors
func storeErr(err error) error {
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, persistence.ErrStatus):
		return echo.NewHTTPError(http.StatusConflict, "wrong project status")
	case errors.Is(err, persistence.ErrDuplicate):
		return echo.NewHTTPError(http.StatusConflict, "clip already exists")
	case errors.Is(err, persistence.ErrLimit):
		return echo.NewHTTPError(http.StatusBadRequest, "too many clips")
	}
	goapp.Log.Error().Err(err).Send()
	return echo.NewHTTPError(http.StatusInternalServerError)
}

func notifyStatus(ctx context.Context, id string, data *Data) {
	if err := data.MsgSender.SendMessage(ctx, &amessages.QueueMessage{ID: id}, messages.StatusChange); err != nil {
		goapp.Log.Error().Err(err).Str("ID", id).Msg("can't send status change")
	}
}
