package clean

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/airenas/memoir/internal/pkg/test"
	"github.com/airenas/memoir/internal/pkg/test/mocks"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

var (
	dbMock *mocks.DB
	tData  *Data
	tEcho  *echo.Echo
)

func initTest(t *testing.T) {
	t.Helper()
	dbMock = &mocks.DB{}
	dbMock.On("CancelJobs", mock.Anything, mock.Anything).Return(int64(2), nil)
	tData = &Data{Jobs: dbMock}
	tData.Cleaner = newCleanMock(false)
	tEcho = initRoutes(tData)
}

func TestWrongPath(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodGet, "/invalid", nil)
	test.Code(t, tEcho, req, http.StatusNotFound)
}

func TestWrongMethod(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodPost, "/delete/1", nil)
	test.Code(t, tEcho, req, 405)
}

const testID = "0d4b7b4e-8e5a-4c43-9a3e-0f4b5d1f2a11"

func Test_Clean(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodDelete, "/delete/"+testID, nil)
	resp := test.Code(t, tEcho, req, http.StatusOK)
	assert.Equal(t, cleanResult{ID: testID, Cancelled: 2}, test.Decode[cleanResult](t, resp.Result()))
	dbMock.AssertCalled(t, "CancelJobs", mock.Anything, testID)
	tData.Cleaner.(*mockCleaner).AssertCalled(t, "Clean", mock.Anything, testID)
}

func Test_Clean_WrongID(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodDelete, "/delete/p1", nil)
	test.Code(t, tEcho, req, http.StatusBadRequest)
	dbMock.AssertNotCalled(t, "CancelJobs", mock.Anything, mock.Anything)
}

func Test_Clean_Fails(t *testing.T) {
	initTest(t)
	tData.Cleaner = newCleanMock(true)
	tEcho = initRoutes(tData)
	req := httptest.NewRequest(http.MethodDelete, "/delete/"+testID, nil)
	test.Code(t, tEcho, req, http.StatusInternalServerError)
}

func Test_Clean_CancelFails(t *testing.T) {
	initTest(t)
	dbMock.ExpectedCalls = nil
	dbMock.On("CancelJobs", mock.Anything, mock.Anything).Return(int64(0), errors.New("olia"))
	req := httptest.NewRequest(http.MethodDelete, "/delete/"+testID, nil)
	test.Code(t, tEcho, req, http.StatusInternalServerError)
	tData.Cleaner.(*mockCleaner).AssertNotCalled(t, "Clean", mock.Anything, mock.Anything)
}

func Test_Live(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	test.Code(t, tEcho, req, 200)
}

func Test_validate(t *testing.T) {
	initTest(t)
	type args struct {
		data *Data
	}
	tests := []struct {
		name    string
		args    args
		wantErr bool
	}{
		{name: "OK", args: args{data: &Data{Cleaner: newCleanMock(false), Jobs: dbMock}}, wantErr: false},
		{name: "Fail Cleaner", args: args{data: &Data{Jobs: dbMock}}, wantErr: true},
		{name: "Fail Jobs", args: args{data: &Data{Cleaner: newCleanMock(false)}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := validate(tt.args.data); (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

type mockCleaner struct{ mock.Mock }

func (m *mockCleaner) Clean(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func newCleanMock(fail bool) *mockCleaner {
	res := &mockCleaner{}
	var err error
	if fail {
		err = errors.New("olia")
	}
	res.On("Clean", mock.Anything, mock.Anything).Return(err)
	return res
}
