package main

import (
	"context"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/memoir/internal/pkg/filer"
	"github.com/airenas/memoir/internal/pkg/postgres"
	"github.com/airenas/memoir/internal/pkg/result"
	"github.com/airenas/memoir/internal/pkg/utils"
	"github.com/labstack/gommon/color"
)

func main() {
	goapp.StartWithDefault()

	printBanner()

	cfg := goapp.Config
	data := &result.Data{}
	data.Port = cfg.GetInt("port")
	data.DownloadTTL = cfg.GetDuration("filer.downloadTTL")
	if data.DownloadTTL <= 0 {
		data.DownloadTTL = time.Minute * 10
	}
	ctx := context.Background()

	dbPool, err := utils.NewDBPool(ctx, cfg)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}
	defer dbPool.Close()

	data.DB, err = postgres.NewDB(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db")
	}

	data.Filer, err = filer.NewFiler(ctx, filer.OptionsFrom(cfg))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init file reader")
	}

	err = result.StartWebServer(data)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start web server")
	}
}

var (
	version = "DEV"
)

func printBanner() {
	banner := `
    ____ ___  ___  ____ ___  ____  (_)____
   / __ ` + "`" + `__ \/ _ \/ __ ` + "`" + `__ \/ __ \/ / ___/
  / / / / / /  __/ / / / / / /_/ / / /    
 /_/ /_/ /_/\___/_/ /_/ /_/\____/_/_/   v: %s
                          ____
   ________  _______  __/ / /_
  / ___/ _ \/ ___/ / / / / __/
 / /  /  __(__  ) /_/ / / /_  
/_/   \___/____/\__,_/_/\__/  

%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/airenas/memoir"))
}
