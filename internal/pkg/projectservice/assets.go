package projectservice

import (
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/memoir/internal/pkg/persistence"
	"github.com/airenas/memoir/internal/pkg/pipeline"
	"github.com/airenas/memoir/internal/pkg/utils"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type presignInput struct {
	FileName  string `json:"fileName"`
	MimeType  string `json:"mimeType"`
	Size      int64  `json:"size"`
	ClipIndex int    `json:"clipIndex"`
}

type presignResult struct {
	StorageKey string `json:"storageKey"`
	UploadURL  string `json:"uploadUrl"`
	ExpiresIn  int    `json:"expiresIn"`
}

type confirmInput struct {
	presignInput
	StorageKey string  `json:"storageKey"`
	Duration   float64 `json:"duration"`
}

func validateClip(in *presignInput) error {
	in.FileName = utils.CleanFileName(in.FileName)
	if in.FileName == "" {
		return errors.New("no file name")
	}
	if !utils.SupportAudioMime(in.MimeType) {
		return errors.Errorf("unsupported mime type '%s'", in.MimeType)
	}
	if in.Size <= 0 || in.Size > utils.MaxClipSize {
		return errors.Errorf("wrong size %d, max %d", in.Size, utils.MaxClipSize)
	}
	if in.ClipIndex < 1 || in.ClipIndex > utils.MaxClips {
		return errors.Errorf("wrong clip index %d", in.ClipIndex)
	}
	return nil
}

func presign(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("presign method")()
		p, err := ownedProject(c, data, c.Param("id"))
		if err != nil {
			return err
		}
		var in presignInput
		if err := c.Bind(&in); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "wrong input")
		}
		if err := validateClip(&in); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		if !pipeline.CanEditAssets(p.Status) {
			return echo.NewHTTPError(http.StatusConflict, "wrong project status")
		}
		key := utils.MakeAudioKey(p.ID, in.ClipIndex, in.FileName)
		url, err := data.Filer.UploadURL(c.Request().Context(), key, data.UploadTTL)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError)
		}
		return c.JSON(http.StatusOK, &presignResult{StorageKey: key, UploadURL: url,
			ExpiresIn: int(data.UploadTTL.Seconds())})
	}
}

func confirm(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("confirm method")()
		ctx := c.Request().Context()
		p, err := ownedProject(c, data, c.Param("id"))
		if err != nil {
			return err
		}
		var in confirmInput
		if err := c.Bind(&in); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "wrong input")
		}
		if err := validateClip(&in.presignInput); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		if !utils.IsProjectKey(p.ID, in.StorageKey) {
			return echo.NewHTTPError(http.StatusBadRequest, "wrong storage key")
		}
		ok, err := data.Filer.Exists(ctx, in.StorageKey)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError)
		}
		if !ok {
			return echo.NewHTTPError(http.StatusBadRequest, "file not uploaded")
		}
		a := &persistence.AudioAsset{ID: uuid.NewString(), ProjectID: p.ID, ClipIndex: in.ClipIndex,
			StorageKey: in.StorageKey, FileName: in.FileName, MimeType: in.MimeType, Size: in.Size, Duration: in.Duration}
		if err := data.DB.InsertAsset(ctx, a); err != nil {
			return storeErr(err)
		}
		goapp.Log.Info().Str("ID", p.ID).Str("asset", a.ID).Int("clip", a.ClipIndex).Msg("asset confirmed")
		notifyStatus(ctx, p.ID, data)
		return c.JSON(http.StatusCreated, a)
	}
}

// upload takes the clip as multipart form field 'file'
func upload(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("upload method")()
		ctx := c.Request().Context()
		p, err := ownedProject(c, data, c.Param("id"))
		if err != nil {
			return err
		}
		form, err := c.MultipartForm()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "no multipart form data")
		}
		defer cleanFiles(form)
		fh := takeFirst(form.File["file"], nil)
		if fh == nil {
			return echo.NewHTTPError(http.StatusBadRequest, "no file")
		}
		in := presignInput{FileName: fh.Filename, MimeType: fh.Header.Get(echo.HeaderContentType), Size: fh.Size}
		if in.ClipIndex, err = strconv.Atoi(c.FormValue("clipIndex")); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "wrong clipIndex")
		}
		if err := validateClip(&in); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		var duration float64
		if d := strings.TrimSpace(c.FormValue("duration")); d != "" {
			if duration, err = strconv.ParseFloat(d, 64); err != nil || duration < 0 {
				return echo.NewHTTPError(http.StatusBadRequest, "wrong duration")
			}
		}
		if !pipeline.CanEditAssets(p.Status) {
			return echo.NewHTTPError(http.StatusConflict, "wrong project status")
		}
		f, err := fh.Open()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "can't read file")
		}
		defer f.Close()
		key := utils.MakeAudioKey(p.ID, in.ClipIndex, in.FileName)
		if err := data.Filer.SaveFile(ctx, key, f, fh.Size, in.MimeType); err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError)
		}
		a := &persistence.AudioAsset{ID: uuid.NewString(), ProjectID: p.ID, ClipIndex: in.ClipIndex,
			StorageKey: key, FileName: in.FileName, MimeType: in.MimeType, Size: fh.Size, Duration: duration}
		if err := data.DB.InsertAsset(ctx, a); err != nil {
			removeFile(c, data, key)
			return storeErr(err)
		}
		goapp.Log.Info().Str("ID", p.ID).Str("asset", a.ID).Int("clip", a.ClipIndex).Msg("asset uploaded")
		notifyStatus(ctx, p.ID, data)
		return c.JSON(http.StatusCreated, a)
	}
}

func deleteAsset(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("delete asset method")()
		ctx := c.Request().Context()
		p, err := ownedProject(c, data, c.Param("id"))
		if err != nil {
			return err
		}
		a, err := data.DB.DeleteAsset(ctx, p.ID, c.Param("assetId"))
		if err != nil {
			return storeErr(err)
		}
		removeFile(c, data, a.StorageKey)
		notifyStatus(ctx, p.ID, data)
		return c.NoContent(http.StatusNoContent)
	}
}

func removeFile(c echo.Context, data *Data, key string) {
	if err := data.Filer.Remove(c.Request().Context(), key); err != nil {
		goapp.Log.Warn().Err(err).Str("key", key).Msg("can't remove file")
	}
}

func cleanFiles(f *multipart.Form) {
	if f != nil {
		_ = f.RemoveAll()
	}
}

func takeFirst[K interface{}](a []K, d K) K {
	if len(a) > 0 {
		return a[0]
	}
	return d
}
