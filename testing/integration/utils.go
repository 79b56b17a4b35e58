//go:build integration
// +build integration

package integration

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/airenas/memoir/internal/pkg/postgres"
	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

const testUser = "it-user"

// waitFor retries check until it passes or ctx is done
func waitFor(ctx context.Context, what string, check func(context.Context) error) {
	for {
		err := check(ctx)
		if err == nil {
			return
		}
		log.Printf("wait for %s: %v", what, err)
		select {
		case <-ctx.Done():
			log.Fatalf("FAIL: can't access %s", what)
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// WaitForOpenOrFail waits until the host of URL accepts tcp connections
func WaitForOpenOrFail(ctx context.Context, URL string) {
	u, err := url.Parse(URL)
	if err != nil {
		log.Fatalf("FAIL: can't parse %s", URL)
	}
	addr := net.JoinHostPort(u.Hostname(), u.Port())
	waitFor(ctx, addr, func(ctx context.Context) error {
		conn, err := (&net.Dialer{Timeout: time.Second}).DialContext(ctx, "tcp", addr)
		if err != nil {
			return err
		}
		return conn.Close()
	})
}

// GetEnvOrFail returns env value or stops the tests
func GetEnvOrFail(s string) string {
	res := os.Getenv(s)
	if res == "" {
		log.Fatalf("no env '%s'", s)
	}
	return res
}

func NewRequest(t *testing.T, method string, srv, urlSuffix string, body interface{}) *http.Request {
	t.Helper()
	path, _ := url.JoinPath(srv, urlSuffix)
	var r io.Reader
	if body != nil {
		r = ToReader(body)
	}
	req, err := http.NewRequest(method, path, r)
	require.Nil(t, err, "not nil error = %v", err)
	if body != nil {
		req.Header.Add(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	req.Header.Set("x-user-id", testUser)
	return req
}

func ToReader(data interface{}) io.Reader {
	bytes, _ := json.Marshal(data)
	return strings.NewReader(string(bytes))
}

func Invoke(t *testing.T, cl *http.Client, r *http.Request) *http.Response {
	t.Helper()
	resp, err := cl.Do(r)
	require.Nil(t, err, "not nil error = %v", err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func CheckCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		b, _ := io.ReadAll(resp.Body)
		require.Equal(t, expected, resp.StatusCode, string(b))
	}
}

func Decode[T any](t *testing.T, resp *http.Response, res *T) {
	t.Helper()
	require.Nil(t, json.NewDecoder(resp.Body).Decode(res))
}

// waitForDB waits until the schema is reachable through the store
func waitForDB(ctx context.Context, URL string) {
	pool, err := pgxpool.New(ctx, URL)
	if err != nil {
		log.Fatalf("FAIL: can't init db pool: %v", err)
	}
	defer pool.Close()
	db, err := postgres.NewDB(pool)
	if err != nil {
		log.Fatalf("FAIL: can't init db: %v", err)
	}
	waitFor(ctx, "db", db.Live)
}

func dialStatus(t *testing.T, srv string, ids ...string) *websocket.Conn {
	t.Helper()
	u, err := url.Parse(srv)
	require.Nil(t, err)
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u = u.JoinPath("subscribe")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	require.Nil(t, err)
	t.Cleanup(func() { _ = c.Close() })
	require.Nil(t, c.WriteMessage(websocket.TextMessage, []byte(strings.Join(ids, ","))))
	return c
}
