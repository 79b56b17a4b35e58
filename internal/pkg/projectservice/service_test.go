package projectservice

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/memoir/internal/pkg/generator"
	"github.com/airenas/memoir/internal/pkg/messages"
	"github.com/airenas/memoir/internal/pkg/persistence"
	"github.com/airenas/memoir/internal/pkg/status"
	"github.com/airenas/memoir/internal/pkg/test"
	"github.com/airenas/memoir/internal/pkg/test/mocks"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	dbMock        *mocks.DB
	filerMock     *mocks.Filer
	senderMock    *mocks.Sender
	generatorMock *mocks.Generator
	tData         *Data
	tEcho         *echo.Echo
)

func initTest(t *testing.T) {
	t.Helper()
	dbMock = &mocks.DB{}
	filerMock = &mocks.Filer{}
	senderMock = &mocks.Sender{}
	generatorMock = &mocks.Generator{}
	tData = &Data{DB: dbMock, Filer: filerMock, MsgSender: senderMock, Generator: generatorMock,
		Policy: persistence.PolicyStrict, UploadTTL: time.Minute * 15}
	tEcho = initRoutes(tData)
	senderMock.On("SendMessage", mock.Anything, mock.Anything, mock.Anything).Return(nil)
}

func ownProject(st status.ProjectStatus) {
	dbMock.On("LoadProject", mock.Anything, "p1").Return(&persistence.Project{ID: "p1", OwnerID: "u1", Status: st}, nil)
}

func newReq(method, path, body string) *http.Request {
	return test.UserReq(method, path, body, "u1")
}

func TestWrongPath(t *testing.T) {
	initTest(t)
	test.Code(t, tEcho, newReq(http.MethodGet, "/invalid", ""), http.StatusNotFound)
}

func TestWrongMethod(t *testing.T) {
	initTest(t)
	test.Code(t, tEcho, newReq(http.MethodGet, "/projects/p1/submit", ""), http.StatusMethodNotAllowed)
}

func Test_Live(t *testing.T) {
	initTest(t)
	test.Code(t, tEcho, httptest.NewRequest(http.MethodGet, "/live", nil), http.StatusOK)
}

func Test_Create(t *testing.T) {
	initTest(t)
	dbMock.On("InsertProject", mock.Anything, mock.Anything).Return(nil)
	resp := test.Code(t, tEcho, newReq(http.MethodPost, "/projects", `{"title":" Olia ","email":"a@b.lt"}`),
		http.StatusCreated)
	res := test.Decode[persistence.Project](t, resp.Result())
	assert.NotEmpty(t, res.ID)
	p := dbMock.Calls[0].Arguments[1].(*persistence.Project)
	assert.Equal(t, "u1", p.OwnerID)
	assert.Equal(t, "Olia", p.Title)
	assert.Equal(t, "a@b.lt", p.OwnerEmail)
}

func Test_Create_Fails(t *testing.T) {
	tests := []struct {
		name string
		body string
		user string
		code int
	}{
		{name: "no user", body: `{}`, code: http.StatusUnauthorized},
		{name: "long title", body: `{"title":"` + strings.Repeat("ą", 101) + `"}`, user: "u1", code: http.StatusBadRequest},
		{name: "email", body: `{"email":"olia"}`, user: "u1", code: http.StatusBadRequest},
		{name: "json", body: `{"email":`, user: "u1", code: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			initTest(t)
			req := newReq(http.MethodPost, "/projects", tt.body)
			req.Header.Set(userHeader, tt.user)
			test.Code(t, tEcho, req, tt.code)
			dbMock.AssertNotCalled(t, "InsertProject", mock.Anything, mock.Anything)
		})
	}
}

func Test_Get(t *testing.T) {
	initTest(t)
	ownProject(status.Uploading)
	dbMock.On("LoadAssets", mock.Anything, "p1").Return([]*persistence.AudioAsset{{ID: "a1", ClipIndex: 1}}, nil)
	resp := test.Code(t, tEcho, newReq(http.MethodGet, "/projects/p1", ""), http.StatusOK)
	assert.Contains(t, resp.Body.String(), `"a1"`)
	assert.Contains(t, resp.Body.String(), `"UPLOADING"`)
}

func Test_Get_Owner(t *testing.T) {
	tests := []struct {
		name    string
		project *persistence.Project
		err     error
		code    int
	}{
		{name: "other owner", project: &persistence.Project{ID: "p1", OwnerID: "u2"}, code: http.StatusNotFound},
		{name: "not found", err: persistence.ErrNotFound, code: http.StatusNotFound},
		{name: "db", err: fmt.Errorf("olia"), code: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			initTest(t)
			dbMock.On("LoadProject", mock.Anything, "p1").Return(tt.project, tt.err)
			test.Code(t, tEcho, newReq(http.MethodGet, "/projects/p1", ""), tt.code)
		})
	}
}

func Test_Delete(t *testing.T) {
	initTest(t)
	ownProject(status.Processing)
	dbMock.On("DeleteProject", mock.Anything, "p1").Return(nil)
	test.Code(t, tEcho, newReq(http.MethodDelete, "/projects/p1", ""), http.StatusNoContent)
	require.Equal(t, 1, len(senderMock.Calls))
	assert.Equal(t, messages.StatusChange, senderMock.Calls[0].Arguments[2])
	m, ok := senderMock.Calls[0].Arguments[1].(*amessages.QueueMessage)
	require.True(t, ok)
	assert.Equal(t, "p1", m.ID)
}

func Test_Submit(t *testing.T) {
	initTest(t)
	ownProject(status.Uploading)
	dbMock.On("StartCycle", mock.Anything, mock.Anything).Return(&persistence.Cycle{ID: "c1", Clips: 2},
		[]*persistence.Job{{ID: "j1"}, {ID: "j2"}}, nil)
	resp := test.Code(t, tEcho, newReq(http.MethodPost, "/projects/p1/submit", ""), http.StatusAccepted)
	res := test.Decode[submitResult](t, resp.Result())
	assert.Equal(t, submitResult{ID: "p1", CycleID: "c1", Jobs: []string{"j1", "j2"}}, res)
	req := dbMock.Calls[1].Arguments[1].(*persistence.CycleRequest)
	assert.Equal(t, persistence.PolicyStrict, req.Policy)
	assert.Equal(t, "p1", req.ProjectID)
}

func Test_Submit_Fails(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{name: "status", err: fmt.Errorf("w: %w", persistence.ErrStatus), code: http.StatusConflict},
		{name: "db", err: fmt.Errorf("olia"), code: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			initTest(t)
			ownProject(status.Processing)
			dbMock.On("StartCycle", mock.Anything, mock.Anything).Return(nil, nil, tt.err)
			test.Code(t, tEcho, newReq(http.MethodPost, "/projects/p1/submit", ""), tt.code)
			assert.Equal(t, 0, len(senderMock.Calls))
		})
	}
}

func Test_Presign(t *testing.T) {
	initTest(t)
	ownProject(status.Draft)
	filerMock.On("UploadURL", mock.Anything, mock.Anything, tData.UploadTTL).Return("http://minio/put", nil)
	resp := test.Code(t, tEcho, newReq(http.MethodPost, "/projects/p1/assets/presign",
		`{"fileName":"my rec.MP3","mimeType":"audio/mpeg","size":100,"clipIndex":2}`), http.StatusOK)
	res := test.Decode[presignResult](t, resp.Result())
	assert.Equal(t, "http://minio/put", res.UploadURL)
	assert.Equal(t, 900, res.ExpiresIn)
	assert.True(t, strings.HasPrefix(res.StorageKey, "p1/audio/2-"))
	assert.True(t, strings.HasSuffix(res.StorageKey, "my_rec.mp3"))
}

func Test_Presign_Fails(t *testing.T) {
	tests := []struct {
		name string
		st   status.ProjectStatus
		body string
		code int
	}{
		{name: "mime", st: status.Draft, body: `{"fileName":"a.txt","mimeType":"text/plain","size":1,"clipIndex":1}`,
			code: http.StatusBadRequest},
		{name: "size", st: status.Draft, body: `{"fileName":"a.mp3","mimeType":"audio/mpeg","size":0,"clipIndex":1}`,
			code: http.StatusBadRequest},
		{name: "big", st: status.Draft, body: `{"fileName":"a.mp3","mimeType":"audio/mpeg","size":209715201,"clipIndex":1}`,
			code: http.StatusBadRequest},
		{name: "clip", st: status.Draft, body: `{"fileName":"a.mp3","mimeType":"audio/mpeg","size":1,"clipIndex":4}`,
			code: http.StatusBadRequest},
		{name: "name", st: status.Draft, body: `{"fileName":"","mimeType":"audio/mpeg","size":1,"clipIndex":1}`,
			code: http.StatusBadRequest},
		{name: "status", st: status.Processing, body: `{"fileName":"a.mp3","mimeType":"audio/mpeg","size":1,"clipIndex":1}`,
			code: http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			initTest(t)
			ownProject(tt.st)
			test.Code(t, tEcho, newReq(http.MethodPost, "/projects/p1/assets/presign", tt.body), tt.code)
			filerMock.AssertNotCalled(t, "UploadURL", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

const confirmBody = `{"storageKey":"p1/audio/1-x-a.mp3","fileName":"a.mp3","mimeType":"audio/mpeg","size":10,
	"clipIndex":1,"duration":12.5}`

func Test_Confirm(t *testing.T) {
	initTest(t)
	ownProject(status.Draft)
	filerMock.On("Exists", mock.Anything, "p1/audio/1-x-a.mp3").Return(true, nil)
	dbMock.On("InsertAsset", mock.Anything, mock.Anything).Return(nil)
	test.Code(t, tEcho, newReq(http.MethodPost, "/projects/p1/assets/confirm", confirmBody), http.StatusCreated)
	a := dbMock.Calls[1].Arguments[1].(*persistence.AudioAsset)
	assert.Equal(t, 1, a.ClipIndex)
	assert.Equal(t, 12.5, a.Duration)
	assert.Equal(t, "p1", a.ProjectID)
	assert.Equal(t, 1, len(senderMock.Calls))
}

func Test_Confirm_Fails(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		exists    bool
		insertErr error
		code      int
	}{
		{name: "not uploaded", body: confirmBody, code: http.StatusBadRequest},
		{name: "other key", body: strings.Replace(confirmBody, "p1/", "p2/", 1), exists: true, code: http.StatusBadRequest},
		{name: "limit", body: confirmBody, exists: true, insertErr: fmt.Errorf("w: %w", persistence.ErrLimit),
			code: http.StatusBadRequest},
		{name: "duplicate", body: confirmBody, exists: true, insertErr: fmt.Errorf("w: %w", persistence.ErrDuplicate),
			code: http.StatusConflict},
		{name: "status", body: confirmBody, exists: true, insertErr: fmt.Errorf("w: %w", persistence.ErrStatus),
			code: http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			initTest(t)
			ownProject(status.Draft)
			filerMock.On("Exists", mock.Anything, mock.Anything).Return(tt.exists, nil)
			dbMock.On("InsertAsset", mock.Anything, mock.Anything).Return(tt.insertErr)
			test.Code(t, tEcho, newReq(http.MethodPost, "/projects/p1/assets/confirm", tt.body), tt.code)
			assert.Equal(t, 0, len(senderMock.Calls))
		})
	}
}

func newUploadReq(t *testing.T, clip string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", `form-data; name="file"; filename="a.mp3"`)
	h.Set("Content-Type", "audio/mpeg")
	part, err := writer.CreatePart(h)
	require.Nil(t, err)
	_, _ = part.Write([]byte("audio"))
	require.Nil(t, writer.WriteField("clipIndex", clip))
	require.Nil(t, writer.Close())
	req := httptest.NewRequest(http.MethodPost, "/projects/p1/assets", body)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	req.Header.Set(userHeader, "u1")
	return req
}

func Test_Upload(t *testing.T) {
	initTest(t)
	ownProject(status.Uploading)
	filerMock.On("SaveFile", mock.Anything, mock.Anything, mock.Anything, int64(5), "audio/mpeg").Return(nil)
	dbMock.On("InsertAsset", mock.Anything, mock.Anything).Return(nil)
	test.Code(t, tEcho, newUploadReq(t, "3"), http.StatusCreated)
	a := dbMock.Calls[1].Arguments[1].(*persistence.AudioAsset)
	assert.Equal(t, 3, a.ClipIndex)
	assert.Equal(t, filerMock.Calls[0].Arguments[1], a.StorageKey)
}

func Test_Upload_InsertFails(t *testing.T) {
	initTest(t)
	ownProject(status.Uploading)
	filerMock.On("SaveFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	filerMock.On("Remove", mock.Anything, mock.Anything).Return(nil)
	dbMock.On("InsertAsset", mock.Anything, mock.Anything).Return(fmt.Errorf("w: %w", persistence.ErrLimit))
	test.Code(t, tEcho, newUploadReq(t, "1"), http.StatusBadRequest)
	filerMock.AssertCalled(t, "Remove", mock.Anything, filerMock.Calls[0].Arguments[1])
}

func Test_Upload_WrongClip(t *testing.T) {
	initTest(t)
	ownProject(status.Uploading)
	test.Code(t, tEcho, newUploadReq(t, "x"), http.StatusBadRequest)
}

func Test_DeleteAsset(t *testing.T) {
	initTest(t)
	ownProject(status.Uploading)
	dbMock.On("DeleteAsset", mock.Anything, "p1", "a1").Return(&persistence.AudioAsset{ID: "a1", StorageKey: "k"}, nil)
	filerMock.On("Remove", mock.Anything, "k").Return(fmt.Errorf("olia"))
	test.Code(t, tEcho, newReq(http.MethodDelete, "/projects/p1/assets/a1", ""), http.StatusNoContent)
}

func Test_DeleteAsset_Status(t *testing.T) {
	initTest(t)
	ownProject(status.Processing)
	dbMock.On("DeleteAsset", mock.Anything, "p1", "a1").Return(nil, fmt.Errorf("w: %w", persistence.ErrStatus))
	test.Code(t, tEcho, newReq(http.MethodDelete, "/projects/p1/assets/a1", ""), http.StatusConflict)
	filerMock.AssertNotCalled(t, "Remove", mock.Anything, mock.Anything)
}

func Test_Export(t *testing.T) {
	initTest(t)
	ownProject(status.Completed)
	dbMock.On("LoadActiveDraft", mock.Anything, "p1").Return(&persistence.Draft{ID: "d1", Version: 2}, nil)
	dbMock.On("Enqueue", mock.Anything, mock.Anything).Return(&persistence.Job{ID: "j9"}, nil)
	resp := test.Code(t, tEcho, newReq(http.MethodPost, "/projects/p1/export", `{"format":"DOCX"}`), http.StatusAccepted)
	res := test.Decode[exportResult](t, resp.Result())
	assert.Equal(t, exportResult{JobID: "j9", DraftID: "d1", Version: 2}, res)
	req := dbMock.Calls[2].Arguments[1].(*persistence.EnqueueRequest)
	assert.Equal(t, status.ExportDOCX, req.Type)
	assert.Equal(t, "d1", req.DraftID)
	m := req.Payload("j9").(*messages.ExportMessage)
	assert.Equal(t, "docx", m.Format)
	assert.Equal(t, "j9", m.JobID)
}

func Test_Export_Fails(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		draftErr error
		code     int
	}{
		{name: "format", body: `{"format":"txt"}`, code: http.StatusBadRequest},
		{name: "no draft", body: `{"format":"pdf"}`, draftErr: fmt.Errorf("w: %w", persistence.ErrNotFound),
			code: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			initTest(t)
			ownProject(status.Completed)
			dbMock.On("LoadActiveDraft", mock.Anything, "p1").Return(nil, tt.draftErr)
			test.Code(t, tEcho, newReq(http.MethodPost, "/projects/p1/export", tt.body), tt.code)
			dbMock.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
		})
	}
}

func testDraft() *persistence.Draft {
	return &persistence.Draft{ID: "d1", ProjectID: "p1", Version: 1, Title: "T", Content: "a\n\nb",
		Chapters: []persistence.Chapter{{Title: "1", Content: "a"}, {Title: "2", Content: "b"}}}
}

func Test_Regenerate(t *testing.T) {
	initTest(t)
	ownProject(status.Completed)
	dbMock.On("LoadDraft", mock.Anything, "d1").Return(testDraft(), nil)
	generatorMock.On("Regenerate", mock.Anything, mock.Anything).Return(&persistence.Chapter{Title: "2", Content: "naujas"}, nil)
	dbMock.On("SaveDraft", mock.Anything, "", mock.Anything).Return(&persistence.Draft{ID: "d2", Version: 2}, nil)

	resp := test.Code(t, tEcho, newReq(http.MethodPost, "/drafts/d1/regenerate", `{"chapterIndex":1,"feedback":"daugiau"}`),
		http.StatusOK)

	res := test.Decode[persistence.Draft](t, resp.Result())
	assert.Equal(t, "d2", res.ID)
	in := generatorMock.Calls[0].Arguments[1].(*generator.RegenerateInput)
	assert.Equal(t, "b", in.Chapter.Content)
	assert.Equal(t, "daugiau", in.Feedback)
	assert.Equal(t, "a\n\nb", in.Context)
	var saved *persistence.Draft
	for _, c := range dbMock.Calls {
		if c.Method == "SaveDraft" {
			saved = c.Arguments[2].(*persistence.Draft)
		}
	}
	require.NotNil(t, saved)
	assert.Equal(t, "a", saved.Chapters[0].Content)
	assert.Equal(t, "naujas", saved.Chapters[1].Content)
}

func Test_Regenerate_Fails(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		genErr error
		code   int
	}{
		{name: "index", body: `{"chapterIndex":2,"feedback":"a"}`, code: http.StatusBadRequest},
		{name: "negative", body: `{"chapterIndex":-1,"feedback":"a"}`, code: http.StatusBadRequest},
		{name: "no feedback", body: `{"chapterIndex":0,"feedback":" "}`, code: http.StatusBadRequest},
		{name: "long feedback", body: `{"chapterIndex":0,"feedback":"` + strings.Repeat("a", 1001) + `"}`,
			code: http.StatusBadRequest},
		{name: "generator", body: `{"chapterIndex":0,"feedback":"a"}`, genErr: fmt.Errorf("olia"), code: http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			initTest(t)
			ownProject(status.Completed)
			dbMock.On("LoadDraft", mock.Anything, "d1").Return(testDraft(), nil)
			generatorMock.On("Regenerate", mock.Anything, mock.Anything).Return(nil, tt.genErr)
			test.Code(t, tEcho, newReq(http.MethodPost, "/drafts/d1/regenerate", tt.body), tt.code)
			dbMock.AssertNotCalled(t, "SaveDraft", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func Test_Regenerate_OtherOwner(t *testing.T) {
	initTest(t)
	dbMock.On("LoadDraft", mock.Anything, "d1").Return(testDraft(), nil)
	dbMock.On("LoadProject", mock.Anything, "p1").Return(&persistence.Project{ID: "p1", OwnerID: "u2"}, nil)
	test.Code(t, tEcho, newReq(http.MethodPost, "/drafts/d1/regenerate", `{"chapterIndex":0,"feedback":"a"}`),
		http.StatusNotFound)
}

func Test_validate(t *testing.T) {
	tests := []struct {
		name    string
		change  func(*Data)
		wantErr bool
	}{
		{name: "OK", change: func(*Data) {}},
		{name: "no filer", change: func(d *Data) { d.Filer = nil }, wantErr: true},
		{name: "no db", change: func(d *Data) { d.DB = nil }, wantErr: true},
		{name: "no sender", change: func(d *Data) { d.MsgSender = nil }, wantErr: true},
		{name: "no generator", change: func(d *Data) { d.Generator = nil }, wantErr: true},
		{name: "no ttl", change: func(d *Data) { d.UploadTTL = 0 }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			initTest(t)
			tt.change(tData)
			if err := validate(tData); (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
