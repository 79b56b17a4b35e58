package main

import (
	"context"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/memoir/internal/pkg/filer"
	"github.com/airenas/memoir/internal/pkg/generator"
	"github.com/airenas/memoir/internal/pkg/pipeline"
	"github.com/airenas/memoir/internal/pkg/postgres"
	"github.com/airenas/memoir/internal/pkg/projectservice"
	"github.com/airenas/memoir/internal/pkg/utils"
	"github.com/labstack/gommon/color"
)

func main() {
	goapp.StartWithDefault()

	printBanner()

	cfg := goapp.Config
	data := &projectservice.Data{}
	data.Port = cfg.GetInt("port")
	data.Policy = pipeline.ParsePolicy(cfg.GetString("pipeline.policy"))
	data.MinClips = cfg.GetInt("pipeline.minClips")
	data.UploadTTL = cfg.GetDuration("filer.uploadTTL")
	if data.UploadTTL <= 0 {
		data.UploadTTL = time.Minute * 15
	}
	goapp.Log.Info().Str("policy", string(data.Policy)).Int("minClips", data.MinClips).Msg("pipeline")
	ctx := context.Background()

	dbPool, err := utils.NewDBPool(ctx, cfg)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}
	defer dbPool.Close()

	db, err := postgres.NewDB(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db")
	}
	data.DB = db

	data.Filer, err = filer.NewFiler(ctx, filer.OptionsFrom(cfg))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init filer")
	}

	data.MsgSender, err = postgres.NewSender(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init gue sender")
	}

	data.Generator, err = generator.NewClient(cfg.GetString("generator.url"), cfg.GetInt("generator.maxTranscript"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init generator")
	}

	err = projectservice.StartWebServer(data)
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
                      _           __ 
    ____  _________  (_)__  _____/ /_
   / __ \/ ___/ __ \/ / _ \/ ___/ __/
  / /_/ / /  / /_/ / /  __/ /__/ /_  
 / .___/_/   \____/_/ /\___/\___/\__/  
/_/              /___/               

%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/airenas/memoir"))
}
