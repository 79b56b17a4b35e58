package projectservice

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/memoir/internal/pkg/export"
	"github.com/airenas/memoir/internal/pkg/generator"
	"github.com/airenas/memoir/internal/pkg/messages"
	"github.com/airenas/memoir/internal/pkg/narrative"
	"github.com/airenas/memoir/internal/pkg/persistence"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

const maxFeedback = 1000

type exportInput struct {
	Format string `json:"format"`
}

type exportResult struct {
	JobID   string `json:"jobId"`
	DraftID string `json:"draftId"`
	Version int    `json:"version"`
}

type regenerateInput struct {
	ChapterIndex int    `json:"chapterIndex"`
	Feedback     string `json:"feedback"`
}

func exportDraft(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("export method")()
		ctx := c.Request().Context()
		p, err := ownedProject(c, data, c.Param("id"))
		if err != nil {
			return err
		}
		var in exportInput
		if err := c.Bind(&in); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "wrong input")
		}
		f, err := export.ParseFormat(in.Format)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		d, err := data.DB.LoadActiveDraft(ctx, p.ID)
		if err != nil {
			if errors.Is(err, persistence.ErrNotFound) {
				return echo.NewHTTPError(http.StatusNotFound, "no draft")
			}
			return storeErr(err)
		}
		j, err := data.DB.Enqueue(ctx, &persistence.EnqueueRequest{ProjectID: p.ID, Type: f.JobType(), DraftID: d.ID,
			Payload: func(jobID string) interface{} {
				return &messages.ExportMessage{JobMessage: messages.NewJobMessage(p.ID, "", jobID), DraftID: d.ID,
					Format: string(f)}
			}})
		if err != nil {
			return storeErr(err)
		}
		goapp.Log.Info().Str("ID", p.ID).Str("job", j.ID).Str("format", string(f)).Msg("export enqueued")
		notifyStatus(ctx, p.ID, data)
		return c.JSON(http.StatusAccepted, &exportResult{JobID: j.ID, DraftID: d.ID, Version: d.Version})
	}
}

// regenerate rewrites one chapter and saves the result as a new draft version
func regenerate(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("regenerate method")()
		ctx := c.Request().Context()
		if c.Request().Header.Get(userHeader) == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "no user")
		}
		d, err := data.DB.LoadDraft(ctx, c.Param("id"))
		if err != nil {
			return storeErr(err)
		}
		if _, err := ownedProject(c, data, d.ProjectID); err != nil {
			return err
		}
		var in regenerateInput
		if err := c.Bind(&in); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "wrong input")
		}
		in.Feedback = strings.TrimSpace(in.Feedback)
		if in.Feedback == "" || utf8.RuneCountInString(in.Feedback) > maxFeedback {
			return echo.NewHTTPError(http.StatusBadRequest, "wrong feedback")
		}
		if in.ChapterIndex < 0 || in.ChapterIndex >= len(d.Chapters) {
			return echo.NewHTTPError(http.StatusBadRequest, "wrong chapter index")
		}
		ch, err := data.Generator.Regenerate(ctx, &generator.RegenerateInput{Chapter: d.Chapters[in.ChapterIndex],
			Feedback: in.Feedback, Context: d.Content})
		if err != nil {
			goapp.Log.Error().Err(err).Str("draft", d.ID).Msg("regenerate")
			return echo.NewHTTPError(http.StatusBadGateway, "can't regenerate")
		}
		nd, err := narrative.ReplaceChapter(d, in.ChapterIndex, ch)
		if err != nil {
			goapp.Log.Error().Err(err).Str("draft", d.ID).Msg("replace chapter")
			return echo.NewHTTPError(http.StatusBadGateway, "wrong regenerated chapter")
		}
		saved, err := data.DB.SaveDraft(ctx, "", nd)
		if err != nil {
			return storeErr(err)
		}
		goapp.Log.Info().Str("ID", d.ProjectID).Str("draft", saved.ID).Int("version", saved.Version).
			Int("chapter", in.ChapterIndex).Msg("chapter regenerated")
		notifyStatus(ctx, d.ProjectID, data)
		return c.JSON(http.StatusOK, saved)
	}
}
