package generator

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/airenas/memoir/internal/pkg/persistence"
	"github.com/airenas/memoir/internal/pkg/test"
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
	path string
	body string
}

const storyJSON = `{"people":[{"name":"어머니","relationship":"mother"}],"places":[{"name":"부산"}],
"themes":["가족"],"keyEpisodes":[{"title":"이사","description":"부산으로"}]}`

func initTestServer(t *testing.T, resps ...testResp) (*Client, *[]testReq) {
	t.Helper()
	resRequest := make([]testReq, 0)
	rLock := &sync.Mutex{}
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		rLock.Lock()
		defer rLock.Unlock()
		b, _ := io.ReadAll(req.Body)
		resRequest = append(resRequest, testReq{path: req.URL.Path, body: string(b)})
		i := len(resRequest) - 1
		if i >= len(resps) {
			i = len(resps) - 1
		}
		rw.WriteHeader(resps[i].code)
		_, _ = rw.Write([]byte(resps[i].resp))
	}))
	cl, err := NewClient(server.URL+"/", 20)
	require.Nil(t, err)
	cl.httpclient = server.Client()
	cl.timeout = time.Second
	cl.backoff = func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2)
	}
	t.Cleanup(func() { server.Close() })
	return cl, &resRequest
}

func TestNewClient(t *testing.T) {
	_, err := NewClient("", 0)
	assert.NotNil(t, err)
	cl, err := NewClient("http://gen:8000", 0)
	require.Nil(t, err)
	assert.Equal(t, DefaultMaxTranscript, cl.maxTranscript)
}

func TestExtract(t *testing.T) {
	cl, reqs := initTestServer(t, testResp{code: http.StatusOK, resp: storyJSON})
	res, err := cl.Extract(test.Ctx(t), "[녹음 1]\n안녕")
	require.Nil(t, err)
	require.Equal(t, 1, len(*reqs))
	assert.Equal(t, "/extract", (*reqs)[0].path)
	assert.Contains(t, (*reqs)[0].body, "안녕")
	assert.Equal(t, "어머니", res.People[0].Name)
	assert.Equal(t, []string{"가족"}, res.Themes)
}

func TestExtract_Retry(t *testing.T) {
	cl, reqs := initTestServer(t, testResp{code: http.StatusServiceUnavailable},
		testResp{code: http.StatusOK, resp: storyJSON})
	_, err := cl.Extract(test.Ctx(t), "text")
	require.Nil(t, err)
	assert.Equal(t, 2, len(*reqs))
}

func TestExtract_Fails(t *testing.T) {
	tests := []struct {
		name         string
		resp         testResp
		transcript   string
		nonRetryable bool
	}{
		{name: "empty transcript", resp: testResp{code: http.StatusOK, resp: storyJSON}, transcript: " ", nonRetryable: true},
		{name: "malformed", resp: testResp{code: http.StatusOK, resp: "{olia"}, transcript: "t", nonRetryable: true},
		{name: "no people", resp: testResp{code: http.StatusOK, resp: `{"places":[],"themes":[],"keyEpisodes":[]}`},
			transcript: "t", nonRetryable: true},
		{name: "bad request", resp: testResp{code: http.StatusBadRequest}, transcript: "t", nonRetryable: true},
		{name: "server", resp: testResp{code: http.StatusInternalServerError}, transcript: "t", nonRetryable: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cl, _ := initTestServer(t, tt.resp)
			_, err := cl.Extract(test.Ctx(t), tt.transcript)
			require.NotNil(t, err)
			assert.Equal(t, tt.nonRetryable, utils.IsNonRetryable(err))
		})
	}
}

func TestWrite(t *testing.T) {
	cl, reqs := initTestServer(t, testResp{code: http.StatusOK,
		resp: `{"title":"삶","chapters":[{"title":"1장","content":"태어났다 [00:01–00:05]"}],"summary":"s"}`})
	res, err := cl.Write(test.Ctx(t), &persistence.StoryData{Themes: []string{"가족"}}, strings.Repeat("가", 50))
	require.Nil(t, err)
	assert.Equal(t, "삶", res.Title)
	require.Equal(t, 1, len(res.Chapters))
	require.Equal(t, 1, len(*reqs))
	assert.Equal(t, "/write", (*reqs)[0].path)
	var sent writeRequest
	require.Nil(t, json.Unmarshal([]byte((*reqs)[0].body), &sent))
	assert.Equal(t, strings.Repeat("가", 20), sent.Transcript)
}

func TestWrite_NoStory(t *testing.T) {
	cl, reqs := initTestServer(t, testResp{code: http.StatusOK, resp: "{}"})
	_, err := cl.Write(test.Ctx(t), nil, "t")
	assert.True(t, utils.IsNonRetryable(err))
	assert.Equal(t, 0, len(*reqs))
}

func TestRegenerate(t *testing.T) {
	cl, reqs := initTestServer(t, testResp{code: http.StatusOK, resp: `{"content":"new"}`})
	res, err := cl.Regenerate(test.Ctx(t), &RegenerateInput{Chapter: persistence.Chapter{Title: "1장", Content: "old"},
		Feedback: "더 길게", Context: strings.Repeat("a", RegenerateContext+10)})
	require.Nil(t, err)
	assert.Equal(t, "1장", res.Title)
	assert.Equal(t, "new", res.Content)
	var sent RegenerateInput
	require.Nil(t, json.Unmarshal([]byte((*reqs)[0].body), &sent))
	assert.Equal(t, RegenerateContext, len(sent.Context))
	assert.Equal(t, "더 길게", sent.Feedback)
}

func TestRegenerate_Empty(t *testing.T) {
	cl, _ := initTestServer(t, testResp{code: http.StatusOK, resp: `{"title":"x"}`})
	_, err := cl.Regenerate(test.Ctx(t), &RegenerateInput{Chapter: persistence.Chapter{Title: "1장"}})
	assert.True(t, utils.IsNonRetryable(err))
}
