package main

import (
	"context"

	aclean "github.com/airenas/async-api/pkg/clean"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/memoir/internal/pkg/clean"
	"github.com/airenas/memoir/internal/pkg/filer"
	"github.com/airenas/memoir/internal/pkg/postgres"
	"github.com/airenas/memoir/internal/pkg/utils"
	"github.com/labstack/gommon/color"
)

func main() {
	goapp.StartWithDefault()
	cfg := goapp.Config

	data := &clean.Data{}
	data.Port = cfg.GetInt("port")

	ctx, cancelFunc := context.WithCancel(context.Background())
	defer cancelFunc()

	dbPool, err := utils.NewDBPool(ctx, cfg)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}
	defer dbPool.Close()

	dbCleaner, err := postgres.NewCleaner(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db cleaner")
	}
	data.Jobs, err = postgres.NewDB(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db")
	}
	fsCleaner, err := filer.NewFiler(ctx, filer.OptionsFrom(cfg))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init file cleaner")
	}
	// files first, rows keep the project ID for a retry
	cleaner := &aclean.CleanerGroup{}
	cleaner.Jobs = append(cleaner.Jobs, fsCleaner, dbCleaner)
	data.Cleaner = cleaner

	expire := cfg.GetDuration("timer.expire")
	tData := &aclean.TimerData{RunEvery: cfg.GetDuration("timer.runEvery"), Cleaner: cleaner}
	tData.IDsProvider, err = postgres.NewDBIdsProvider(dbPool, expire)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init IDs provider")
	}
	goapp.Log.Info().Dur("expire", expire).Dur("runEvery", tData.RunEvery).Msg("timer")

	printBanner()

	doneCh, err := aclean.StartCleanTimer(ctx, tData)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start timer")
	}
	if err := clean.StartWebServer(data); err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start web server")
	}
	utils.Drain(cancelFunc, doneCh, utils.ShutdownTimeout)
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
        __                
  _____/ /__  ____ _____ 
 / ___/ / _ \/ __ ` + "`" + `/ __ \
/ /__/ /  __/ /_/ / / / /
\___/_/\___/\__,_/_/ /_/

%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/airenas/memoir"))
}
