// Command pgsubscribed is the example binary that wires cfg, engine,
// hostdb and admin together into a runnable process, standing in for the
// foreground function-call interface spec.md §1 treats as an external
// collaborator. It is not itself part of the change-propagation core.
package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/pgsubscribe/pgsubscribe/admin"
	"github.com/pgsubscribe/pgsubscribe/cfg"
	"github.com/pgsubscribe/pgsubscribe/engine"
	"github.com/pgsubscribe/pgsubscribe/hostdb"
	"github.com/pgsubscribe/pgsubscribe/id"
	"github.com/pgsubscribe/pgsubscribe/telemetry"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	flag.Parse()

	if err := cfg.Load(*cfg.ConfigPathFlag); err != nil {
		panic(err)
	}
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("invalid configuration: %v", err))
	}

	var writer io.Writer = zerolog.NewConsoleWriter()
	if cfg.Config.Logging.Format == "json" {
		writer = os.Stdout
	}
	gLog := zerolog.New(writer).With().Timestamp().Str("engine_id", id.EngineID).Logger()
	if cfg.Config.Logging.Verbose {
		log.Logger = gLog.Level(zerolog.DebugLevel)
	} else {
		log.Logger = gLog.Level(zerolog.InfoLevel)
	}

	log.Info().Msg("pg_subscribe - reactive subscriptions over SELECT statements")

	telemetry.InitializeTelemetry()
	telemetry.InitMetrics()

	host, err := hostdb.Open(cfg.Config.HostDB.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open host database")
	}

	eng := engine.New(cfg.Config.Engine, host)
	defer func() {
		if err := eng.Teardown(); err != nil {
			log.Error().Err(err).Msg("engine teardown")
		}
	}()

	collector := telemetry.NewStatsCollector(eng, 5*time.Second)
	collector.Start()
	defer collector.Stop()

	if !cfg.Config.Admin.Enabled {
		log.Info().Msg("admin HTTP surface disabled; running headless")
		select {}
	}

	addr := fmt.Sprintf("%s:%d", cfg.Config.Admin.BindAddress, cfg.Config.Admin.Port)
	srv := &http.Server{Addr: addr, Handler: admin.NewRouter(eng)}
	log.Info().Str("addr", addr).Msg("admin HTTP surface listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("admin server exited")
	}
}
