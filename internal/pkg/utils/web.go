package utils

import (
	"log"
	"strconv"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/facebookgo/grace/gracehttp"
	"github.com/labstack/echo/v4"
)

// ServeEcho runs echo server with graceful restart support
func ServeEcho(e *echo.Echo, port int, read, write time.Duration) error {
	configure(e, port, read, write)
	gracehttp.SetLogger(log.New(goapp.Log, "", 0))
	return gracehttp.Serve(e.Server)
}

func configure(e *echo.Echo, port int, read, write time.Duration) {
	e.Server.Addr = ":" + strconv.Itoa(port)
	e.Server.ReadHeaderTimeout = 5 * time.Second
	e.Server.ReadTimeout = read
	e.Server.WriteTimeout = write
}

// LogRoutes prints registered routes
func LogRoutes(e *echo.Echo) {
	goapp.Log.Info().Msg("Routes:")
	for _, r := range e.Routes() {
		goapp.Log.Info().Msgf("  %s %s", r.Method, r.Path)
	}
}
