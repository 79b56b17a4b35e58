package main

import (
	"context"
	"time"

	ainform "github.com/airenas/async-api/pkg/inform"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/memoir/internal/pkg/inform"
	"github.com/airenas/memoir/internal/pkg/postgres"
	"github.com/airenas/memoir/internal/pkg/utils"
	"github.com/labstack/gommon/color"
	"github.com/spf13/viper"
	"github.com/vgarvardt/gue/v5"
	"github.com/vgarvardt/gue/v5/adapter/pgxv5"
)

func main() {
	goapp.StartWithDefault()
	cfg := goapp.Config

	data := &inform.ServiceData{WorkerCount: cfg.GetInt("worker.count")}
	ctx, cancelFunc := context.WithCancel(context.Background())
	defer cancelFunc()

	dbPool, err := utils.NewDBPool(ctx, cfg)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}
	defer dbPool.Close()

	data.GueClient, err = gue.NewClient(pgxv5.NewConnPool(dbPool))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init gue")
	}
	data.DB, err = postgres.NewDB(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db")
	}

	data.EmailMaker, err = ainform.NewTemplateEmailMaker(cfg)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init email maker")
	}
	data.EmailSender, err = initSender(cfg)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init email sender")
	}
	data.Location, err = loadLocation(cfg.GetString("worker.location"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init location")
	}

	printBanner()

	doneCh, err := inform.StartWorkerService(ctx, data)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start inform service")
	}
	utils.WaitForStop(doneCh)
	utils.Drain(cancelFunc, doneCh, utils.ShutdownTimeout)
}

func initSender(cfg *viper.Viper) (inform.Sender, error) {
	if cfg.GetString("smtp.fakeUrl") != "" {
		return inform.NewHTTPSender(cfg)
	}
	goapp.Log.Info().Str("sender", "smtp").Msg("mail")
	return ainform.NewSimpleEmailSender(cfg)
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" {
		return nil, nil
	}
	res, err := time.LoadLocation(name)
	if err != nil {
		return nil, err
	}
	goapp.Log.Info().Str("local", time.Now().In(res).Format(time.RFC3339)).Msg("time")
	return res, nil
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
     _       ____                    
    (_)___  / __/___  _________ ___ 
   / / __ \/ /_/ __ \/ ___/ __ ` + "`" + `__ \
  / / / / / __/ /_/ / /  / / / / / /
 /_/_/ /_/_/  \____/_/  /_/ /_/ /_/

%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/airenas/memoir"))
}
