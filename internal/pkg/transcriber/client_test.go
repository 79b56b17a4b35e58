package transcriber

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/airenas/memoir/internal/pkg/test"
	"github.com/airenas/memoir/internal/pkg/transcriber/api"
	"github.com/airenas/memoir/internal/pkg/utils"
	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testResp struct {
	code int
	resp string
}

type testReq struct {
	body        string
	contentType string
}

func initTestServer(t *testing.T, resps ...testResp) (*Client, *[]testReq) {
	t.Helper()
	resRequest := make([]testReq, 0)
	rLock := &sync.Mutex{}
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		rLock.Lock()
		defer rLock.Unlock()
		b, _ := io.ReadAll(req.Body)
		resRequest = append(resRequest, testReq{body: string(b), contentType: req.Header.Get("Content-Type")})
		i := len(resRequest) - 1
		if i >= len(resps) {
			i = len(resps) - 1
		}
		rw.WriteHeader(resps[i].code)
		_, _ = rw.Write([]byte(resps[i].resp))
	}))
	cl, err := NewClient(server.URL, "ko")
	require.Nil(t, err)
	cl.httpclient = server.Client()
	cl.timeout = time.Second
	cl.backoff = func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2)
	}
	t.Cleanup(func() { server.Close() })
	return cl, &resRequest
}

func newAudio() *api.AudioData {
	return &api.AudioData{Name: "1.wav", MimeType: "audio/wav", Content: []byte("RIFF")}
}

func TestNewClient(t *testing.T) {
	_, err := NewClient("", "ko")
	assert.NotNil(t, err)
	cl, err := NewClient("http://olia", "")
	assert.Nil(t, err)
	assert.Equal(t, "ko", cl.language)
}

func TestTranscribe(t *testing.T) {
	cl, reqs := initTestServer(t, testResp{code: http.StatusOK,
		resp: `{"text":"안녕","language":"ko","segments":[{"start":1,"end":2,"text":"b"},{"start":0,"end":1,"text":"a"}]}`})
	res, err := cl.Transcribe(test.Ctx(t), newAudio())
	require.Nil(t, err)
	assert.Equal(t, "안녕", res.Text)
	require.Equal(t, 2, len(res.Segments))
	assert.Equal(t, "a", res.Segments[0].Text)
	require.Equal(t, 1, len(*reqs))
	r := (*reqs)[0]
	assert.True(t, strings.HasPrefix(r.contentType, "multipart/form-data"))
	assert.Contains(t, r.body, `filename="1.wav"`)
	assert.Contains(t, r.body, "RIFF")
	assert.Contains(t, r.body, "ko")
}

func TestTranscribe_RetriesServerError(t *testing.T) {
	cl, reqs := initTestServer(t, testResp{code: http.StatusServiceUnavailable, resp: "busy"},
		testResp{code: http.StatusOK, resp: `{"text":"안녕"}`})
	res, err := cl.Transcribe(test.Ctx(t), newAudio())
	require.Nil(t, err)
	assert.Equal(t, "안녕", res.Text)
	assert.Equal(t, 2, len(*reqs))
	assert.Equal(t, (*reqs)[0].body, (*reqs)[1].body)
}

func TestTranscribe_FailRetries(t *testing.T) {
	cl, reqs := initTestServer(t, testResp{code: http.StatusServiceUnavailable, resp: "busy"})
	_, err := cl.Transcribe(test.Ctx(t), newAudio())
	require.NotNil(t, err)
	assert.False(t, utils.IsNonRetryable(err))
	assert.Equal(t, 3, len(*reqs))
}

func TestTranscribe_BadRequest(t *testing.T) {
	cl, reqs := initTestServer(t, testResp{code: http.StatusBadRequest, resp: "corrupt"})
	_, err := cl.Transcribe(test.Ctx(t), newAudio())
	require.NotNil(t, err)
	assert.True(t, utils.IsNonRetryable(err))
	assert.Equal(t, 1, len(*reqs))
}

func TestTranscribe_Malformed(t *testing.T) {
	for _, resp := range []string{`{"text":`, `{"text":""}`, `{"text":"a","segments":[{"start":3,"end":1}]}`} {
		t.Run(resp, func(t *testing.T) {
			cl, reqs := initTestServer(t, testResp{code: http.StatusOK, resp: resp})
			_, err := cl.Transcribe(test.Ctx(t), newAudio())
			require.NotNil(t, err)
			assert.True(t, utils.IsNonRetryable(err))
			assert.Equal(t, 1, len(*reqs))
		})
	}
}

func TestTranscribe_NoAudio(t *testing.T) {
	cl, reqs := initTestServer(t, testResp{code: http.StatusOK, resp: `{"text":"a"}`})
	_, err := cl.Transcribe(test.Ctx(t), &api.AudioData{Name: "1.wav"})
	require.NotNil(t, err)
	assert.True(t, utils.IsNonRetryable(err))
	assert.Equal(t, 0, len(*reqs))
}
