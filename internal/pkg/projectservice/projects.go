package projectservice

import (
	"net/http"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/memoir/internal/pkg/persistence"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

const maxTitle = 100

type projectInput struct {
	Title string `json:"title"`
	Email string `json:"email"`
}

type projectResult struct {
	*persistence.Project
	Assets []*persistence.AudioAsset `json:"assets"`
}

type submitResult struct {
	ID      string   `json:"id"`
	CycleID string   `json:"cycleId"`
	Jobs    []string `json:"jobs"`
}

func createProject(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("create method")()
		user := c.Request().Header.Get(userHeader)
		if user == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "no user")
		}
		var in projectInput
		if err := c.Bind(&in); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "wrong input")
		}
		if err := validateProject(&in); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		p := &persistence.Project{ID: uuid.NewString(), OwnerID: user, OwnerEmail: in.Email, Title: in.Title}
		if err := data.DB.InsertProject(c.Request().Context(), p); err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError)
		}
		goapp.Log.Info().Str("ID", p.ID).Str("user", goapp.Sanitize(user)).Msg("project created")
		return c.JSON(http.StatusCreated, p)
	}
}

func validateProject(in *projectInput) error {
	in.Title = strings.TrimSpace(in.Title)
	if utf8.RuneCountInString(in.Title) > maxTitle {
		return errors.Errorf("title longer than %d", maxTitle)
	}
	in.Email = strings.TrimSpace(in.Email)
	if in.Email != "" {
		if _, err := mail.ParseAddress(in.Email); err != nil {
			return errors.New("wrong email")
		}
	}
	return nil
}

func getProject(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("get method")()
		p, err := ownedProject(c, data, c.Param("id"))
		if err != nil {
			return err
		}
		assets, err := data.DB.LoadAssets(c.Request().Context(), p.ID)
		if err != nil {
			return storeErr(err)
		}
		return c.JSON(http.StatusOK, &projectResult{Project: p, Assets: assets})
	}
}

func deleteProject(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("delete method")()
		ctx := c.Request().Context()
		p, err := ownedProject(c, data, c.Param("id"))
		if err != nil {
			return err
		}
		if err := data.DB.DeleteProject(ctx, p.ID); err != nil {
			return storeErr(err)
		}
		goapp.Log.Info().Str("ID", p.ID).Msg("project deleted")
		notifyStatus(ctx, p.ID, data)
		return c.NoContent(http.StatusNoContent)
	}
}

func submit(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("submit method")()
		ctx := c.Request().Context()
		p, err := ownedProject(c, data, c.Param("id"))
		if err != nil {
			return err
		}
		cycle, jobs, err := data.DB.StartCycle(ctx, &persistence.CycleRequest{ProjectID: p.ID, Policy: data.Policy,
			MinClips: data.MinClips})
		if err != nil {
			return storeErr(err)
		}
		res := &submitResult{ID: p.ID, CycleID: cycle.ID, Jobs: make([]string, 0, len(jobs))}
		for _, j := range jobs {
			res.Jobs = append(res.Jobs, j.ID)
		}
		goapp.Log.Info().Str("ID", p.ID).Str("cycle", cycle.ID).Int("clips", cycle.Clips).Msg("submitted")
		notifyStatus(ctx, p.ID, data)
		return c.JSON(http.StatusAccepted, res)
	}
}
