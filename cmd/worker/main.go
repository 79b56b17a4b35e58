package main

import (
	"context"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/memoir/internal/pkg/consul"
	"github.com/airenas/memoir/internal/pkg/filer"
	"github.com/airenas/memoir/internal/pkg/generator"
	"github.com/airenas/memoir/internal/pkg/postgres"
	"github.com/airenas/memoir/internal/pkg/transcriber"
	tapi "github.com/airenas/memoir/internal/pkg/transcriber/api"
	"github.com/airenas/memoir/internal/pkg/utils"
	"github.com/airenas/memoir/internal/pkg/worker"
	"github.com/hashicorp/consul/api"
	"github.com/labstack/gommon/color"
	"github.com/spf13/viper"
	"github.com/vgarvardt/gue/v5"
	"github.com/vgarvardt/gue/v5/adapter/pgxv5"
)

func main() {
	goapp.StartWithDefault()
	cfg := goapp.Config

	data := &worker.ServiceData{}
	ctx, cancelFunc := context.WithCancel(context.Background())
	defer cancelFunc()

	dbPool, err := utils.NewDBPool(ctx, cfg)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}
	defer dbPool.Close()

	if cfg.GetBool("db.migrate") {
		if err := postgres.Migrate(ctx, dbPool); err != nil {
			goapp.Log.Fatal().Err(err).Msg("can't migrate db")
		}
	}

	data.GueClient, err = gue.NewClient(pgxv5.NewConnPool(dbPool))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init gue")
	}
	initQueues(cfg, data)
	data.ReapEvery = defaultV(cfg.GetDuration("pipeline.reapEvery"), time.Minute)
	data.Testing = cfg.GetBool("worker.testing")
	data.Language = defaultV(cfg.GetString("transcriber.language"), "ko")

	data.MsgSender, err = postgres.NewSender(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init gue sender")
	}
	data.Filer, err = filer.NewFiler(ctx, filer.OptionsFrom(cfg))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init filer")
	}
	db, err := postgres.NewDB(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db")
	}
	data.DB = db

	var consulDone <-chan struct{}
	data.Transcriber, consulDone, err = initTranscriber(ctx, cfg, data.Language)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init transcriber")
	}
	data.Generator, err = generator.NewClient(cfg.GetString("generator.url"), cfg.GetInt("generator.maxTranscript"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init generator")
	}

	printBanner()

	go func() {
		if err := utils.RunPerfEndpoint(cfg.GetInt("debug.port")); err != nil {
			goapp.Log.Error().Err(err).Send()
		}
	}()

	doneCh, err := worker.StartWorkerService(ctx, data)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start worker service")
	}
	utils.WaitForStop(doneCh)
	utils.Drain(cancelFunc, doneCh, utils.ShutdownTimeout)
	if consulDone != nil {
		<-consulDone
	}
}

// initQueues sets stage pools, WRITE defaults to one worker as the generator is the bottleneck
func initQueues(cfg *viper.Viper, data *worker.ServiceData) {
	workers := defaultV(cfg.GetInt("worker.count"), 2)
	data.STT = queueConfig(cfg, "stt", workers, time.Minute*15)
	data.Extract = queueConfig(cfg, "extract", workers, time.Minute*10)
	data.Write = queueConfig(cfg, "write", 1, time.Minute*15)
	data.Export = queueConfig(cfg, "export", workers, time.Minute*5)
	data.MaxJobTime = defaultV(cfg.GetDuration("pipeline.maxJobTime"), worker.JobTimeBudget(data)+time.Minute)
}

func queueConfig(cfg *viper.Viper, stage string, workers int, timeout time.Duration) worker.QueueConfig {
	return worker.QueueConfig{Workers: defaultV(cfg.GetInt("queue."+stage+".workers"), workers),
		Timeout: defaultV(cfg.GetDuration("queue."+stage+".timeout"), timeout)}
}

// initTranscriber uses consul registered services if consul.service is set
func initTranscriber(ctx context.Context, cfg *viper.Viper, language string) (tapi.Transcriber, <-chan struct{}, error) {
	srv := cfg.GetString("consul.service")
	if srv == "" {
		res, err := transcriber.NewClient(cfg.GetString("transcriber.url"), language)
		return res, nil, err
	}
	cCfg := api.DefaultConfig()
	if addr := cfg.GetString("consul.addr"); addr != "" {
		cCfg.Address = addr
	}
	res, err := consul.NewProvider(cCfg, srv, language)
	if err != nil {
		return nil, nil, err
	}
	done, err := res.StartRegistryLoop(ctx, defaultV(cfg.GetDuration("consul.checkInterval"), time.Second*30))
	if err != nil {
		return nil, nil, err
	}
	return res, done, nil
}

func defaultV[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
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
 _      ______  _____/ /_____  _____
| | /| / / __ \/ ___/ //_/ _ \/ ___/
| |/ |/ / /_/ / /  / ,< /  __/ /    
|__/|__/\____/_/  /_/|_|\___/_/     

%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/airenas/memoir"))
}
