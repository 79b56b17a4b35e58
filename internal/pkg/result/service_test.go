package result

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/airenas/memoir/internal/pkg/persistence"
	"github.com/airenas/memoir/internal/pkg/status"
	"github.com/airenas/memoir/internal/pkg/test"
	"github.com/airenas/memoir/internal/pkg/test/mocks"
	"github.com/labstack/echo/v4"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

var (
	filerMock *mocks.Filer
	dbMock    *mocks.DB
	tData     *Data
	tEcho     *echo.Echo
)

type fileWrap struct{ *strings.Reader }

func (fileWrap) Close() error { return nil }

func initTest(t *testing.T) {
	t.Helper()
	filerMock = &mocks.Filer{}
	dbMock = &mocks.DB{}
	tData = &Data{Filer: filerMock, DB: dbMock, DownloadTTL: time.Minute}
	tEcho = initRoutes(tData)
	dbMock.On("LoadProject", mock.Anything, "p1").Return(&persistence.Project{ID: "p1", OwnerID: "u1"}, nil)
}

func exportJob(st status.JobStatus) *persistence.Job {
	out, _ := json.Marshal(&persistence.ExportOutput{Format: "docx", Key: "p1/exports/d1-v1.docx", Size: 4,
		ContentType: "application/docx", DraftID: "d1", DraftVersion: 1})
	now := time.Now()
	return &persistence.Job{ID: "j1", ProjectID: "p1", Type: status.ExportDOCX, Status: st, Output: out, Completed: &now}
}

func newReq(method, path string) *http.Request {
	return test.UserReq(method, path, "", "u1")
}

func TestWrongPath(t *testing.T) {
	initTest(t)
	test.Code(t, tEcho, newReq(http.MethodGet, "/invalid"), http.StatusNotFound)
}

func TestWrongMethod(t *testing.T) {
	initTest(t)
	test.Code(t, tEcho, newReq(http.MethodPost, "/export/j1"), http.StatusMethodNotAllowed)
}

func Test_Export(t *testing.T) {
	initTest(t)
	dbMock.On("LoadJob", mock.Anything, "j1").Return(exportJob(status.JobCompleted), nil)
	dbMock.On("LoadDraft", mock.Anything, "d1").Return(&persistence.Draft{ID: "d1", Title: "Mano gyvenimas"}, nil)
	filerMock.On("LoadFile", mock.Anything, "p1/exports/d1-v1.docx").Return(fileWrap{strings.NewReader("olia")}, nil)
	resp := test.Code(t, tEcho, newReq(http.MethodGet, "/export/j1"), http.StatusOK)
	assert.Equal(t, "olia", test.RStr(t, resp.Body))
	assert.Equal(t, "application/docx", resp.Header().Get(echo.HeaderContentType))
	assert.Equal(t, "attachment; filename*=UTF-8''Mano%20gyvenimas.docx", resp.Header().Get(echo.HeaderContentDisposition))
}

func Test_ExportHead(t *testing.T) {
	initTest(t)
	dbMock.On("LoadJob", mock.Anything, "j1").Return(exportJob(status.JobCompleted), nil)
	dbMock.On("LoadDraft", mock.Anything, "d1").Return(nil, fmt.Errorf("olia"))
	filerMock.On("LoadFile", mock.Anything, mock.Anything).Return(fileWrap{strings.NewReader("olia")}, nil)
	resp := test.Code(t, tEcho, newReq(http.MethodHead, "/export/j1"), http.StatusOK)
	assert.Equal(t, "", test.RStr(t, resp.Body))
	assert.Equal(t, "attachment; filename*=UTF-8''memoir.docx", resp.Header().Get(echo.HeaderContentDisposition))
}

func Test_Export_Fails(t *testing.T) {
	tests := []struct {
		name    string
		job     *persistence.Job
		jobErr  error
		fileErr error
		user    string
		code    int
	}{
		{name: "no job", jobErr: persistence.ErrNotFound, user: "u1", code: http.StatusNotFound},
		{name: "not export", job: &persistence.Job{ID: "j1", ProjectID: "p1", Type: status.Write}, user: "u1",
			code: http.StatusNotFound},
		{name: "not ready", job: exportJob(status.JobProcessing), user: "u1", code: http.StatusConflict},
		{name: "no user", job: exportJob(status.JobCompleted), code: http.StatusUnauthorized},
		{name: "other user", job: exportJob(status.JobCompleted), user: "u2", code: http.StatusNotFound},
		{name: "no file", job: exportJob(status.JobCompleted), user: "u1",
			fileErr: minio.ErrorResponse{StatusCode: http.StatusNotFound}, code: http.StatusNotFound},
		{name: "filer", job: exportJob(status.JobCompleted), user: "u1", fileErr: fmt.Errorf("olia"),
			code: http.StatusInternalServerError},
		{name: "db", jobErr: fmt.Errorf("olia"), user: "u1", code: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			initTest(t)
			dbMock.On("LoadJob", mock.Anything, "j1").Return(tt.job, tt.jobErr)
			filerMock.On("LoadFile", mock.Anything, mock.Anything).Return(nil, tt.fileErr)
			req := newReq(http.MethodGet, "/export/j1")
			req.Header.Set(userHeader, tt.user)
			test.Code(t, tEcho, req, tt.code)
		})
	}
}

func Test_Draft(t *testing.T) {
	initTest(t)
	dbMock.On("LoadActiveDraft", mock.Anything, "p1").Return(&persistence.Draft{ID: "d1", Version: 3}, nil)
	resp := test.Code(t, tEcho, newReq(http.MethodGet, "/projects/p1/draft"), http.StatusOK)
	res := test.Decode[persistence.Draft](t, resp.Result())
	assert.Equal(t, 3, res.Version)
}

func Test_Draft_None(t *testing.T) {
	initTest(t)
	dbMock.On("LoadActiveDraft", mock.Anything, "p1").Return(nil, fmt.Errorf("w: %w", persistence.ErrNotFound))
	test.Code(t, tEcho, newReq(http.MethodGet, "/projects/p1/draft"), http.StatusNotFound)
}

func Test_Audio(t *testing.T) {
	initTest(t)
	dbMock.On("LoadAsset", mock.Anything, "a1").Return(&persistence.AudioAsset{ID: "a1", ProjectID: "p1",
		StorageKey: "p1/audio/1.mp3", FileName: "1.mp3"}, nil)
	filerMock.On("DownloadURL", mock.Anything, "p1/audio/1.mp3", time.Minute, "1.mp3").Return("http://minio/get", nil)
	resp := test.Code(t, tEcho, newReq(http.MethodGet, "/audio/a1"), http.StatusTemporaryRedirect)
	assert.Equal(t, "http://minio/get", resp.Header().Get(echo.HeaderLocation))
}

func Test_Audio_NoAsset(t *testing.T) {
	initTest(t)
	dbMock.On("LoadAsset", mock.Anything, "a1").Return(nil, persistence.ErrNotFound)
	test.Code(t, tEcho, newReq(http.MethodGet, "/audio/a1"), http.StatusNotFound)
}

func Test_Live(t *testing.T) {
	initTest(t)
	test.Code(t, tEcho, httptest.NewRequest(http.MethodGet, "/live", nil), http.StatusOK)
}

func Test_validate(t *testing.T) {
	initTest(t)
	assert.Nil(t, validate(tData))
	assert.NotNil(t, validate(&Data{DB: dbMock, DownloadTTL: time.Minute}))
	assert.NotNil(t, validate(&Data{Filer: filerMock, DownloadTTL: time.Minute}))
	assert.NotNil(t, validate(&Data{Filer: filerMock, DB: dbMock}))
}

func Test_loadErr(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, loadErr(persistence.ErrNotFound).(*echo.HTTPError).Code)
	assert.Equal(t, http.StatusNotFound, loadErr(fmt.Errorf("w: %w",
		minio.ErrorResponse{StatusCode: http.StatusNotFound})).(*echo.HTTPError).Code)
	assert.Equal(t, http.StatusInternalServerError, loadErr(fmt.Errorf("olia")).(*echo.HTTPError).Code)
}
