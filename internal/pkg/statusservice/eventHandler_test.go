package statusservice

import (
	"fmt"
	"testing"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/memoir/internal/pkg/persistence"
	"github.com/airenas/memoir/internal/pkg/pipeline"
	"github.com/airenas/memoir/internal/pkg/status"
	"github.com/airenas/memoir/internal/pkg/test"
	"github.com/airenas/memoir/internal/pkg/test/mocks"
	"github.com/airenas/memoir/internal/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vgarvardt/gue/v5"
)

func newHandlerData(t *testing.T, subscribed bool) (*HandlerData, *mockWSConnHandler) {
	t.Helper()
	dbMock = &mocks.DB{}
	ws := &mockWSConnHandler{}
	ws.On("Subscribed", "1").Return(subscribed)
	ws.On("Push", "1", mock.Anything).Return(1)
	return &HandlerData{DB: dbMock, GueClient: &gue.Client{}, WorkerCount: 1, WSHandler: ws}, ws
}

func statusMsg() *amessages.QueueMessage {
	return &amessages.QueueMessage{ID: "1"}
}

func Test_handleStatus(t *testing.T) {
	data, ws := newHandlerData(t, true)
	completedProject()
	require.Nil(t, handleStatus(test.Ctx(t), statusMsg(), data))
	ws.AssertNumberOfCalls(t, "Push", 1)
	res := ws.Calls[1].Arguments[1].(*pipeline.Projection)
	assert.Equal(t, "1", res.ID)
	assert.Equal(t, status.Completed, res.Status)
	assert.Equal(t, 100, res.Progress)
	assert.Equal(t, "d1", res.DraftID)
}

func Test_handleStatus_NoSubscribers(t *testing.T) {
	data, ws := newHandlerData(t, false)
	require.Nil(t, handleStatus(test.Ctx(t), statusMsg(), data))
	ws.AssertNotCalled(t, "Push", mock.Anything, mock.Anything)
	assert.Empty(t, dbMock.Calls)
}

func Test_handleStatus_LoadFails(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		nonRetryable bool
	}{
		{name: "not found", err: fmt.Errorf("w: %w", persistence.ErrNotFound), nonRetryable: true},
		{name: "db", err: fmt.Errorf("olia")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, ws := newHandlerData(t, true)
			dbMock.On("LoadProject", mock.Anything, "1").Return(nil, tt.err)
			err := handleStatus(test.Ctx(t), statusMsg(), data)
			require.NotNil(t, err)
			assert.Equal(t, tt.nonRetryable, utils.IsNonRetryable(err))
			ws.AssertNotCalled(t, "Push", mock.Anything, mock.Anything)
		})
	}
}

func Test_handleStatus_NobodyGotIt(t *testing.T) {
	data, ws := newHandlerData(t, true)
	ws.ExpectedCalls = nil
	ws.On("Subscribed", "1").Return(true)
	ws.On("Push", "1", mock.Anything).Return(0)
	completedProject()
	assert.Nil(t, handleStatus(test.Ctx(t), statusMsg(), data))
}

func Test_validateHandler(t *testing.T) {
	full := func() *HandlerData {
		return &HandlerData{DB: &mocks.DB{}, GueClient: &gue.Client{}, WorkerCount: 1, WSHandler: &mockWSConnHandler{}}
	}
	tests := []struct {
		name    string
		change  func(d *HandlerData)
		wantErr bool
	}{
		{name: "OK", change: func(d *HandlerData) {}},
		{name: "no DB", change: func(d *HandlerData) { d.DB = nil }, wantErr: true},
		{name: "no gue", change: func(d *HandlerData) { d.GueClient = nil }, wantErr: true},
		{name: "no workers", change: func(d *HandlerData) { d.WorkerCount = 0 }, wantErr: true},
		{name: "no ws", change: func(d *HandlerData) { d.WSHandler = nil }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := full()
			tt.change(d)
			assert.Equal(t, tt.wantErr, validateHandler(d) != nil)
		})
	}
}

type mockWSConn struct{ mock.Mock }

func (m *mockWSConn) ReadMessage() (messageType int, p []byte, err error) {
	args := m.Called()
	return args.Int(0), args.Get(1).([]byte), args.Error(2)
}

func (m *mockWSConn) Close() error {
	return m.Called().Error(0)
}

func (m *mockWSConn) WriteJSON(v interface{}) error {
	return m.Called(v).Error(0)
}
