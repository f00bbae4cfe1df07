package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"levelflow/config"
	"levelflow/internal/levels"
	"levelflow/internal/loader"
	"levelflow/internal/provider"
	"levelflow/internal/reconcile"
	"levelflow/internal/writer"
	"levelflow/logger"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	instrumentsPath := flag.String("instruments", "config/instruments.yml", "Path to instrument table file")
	dateFlag := flag.String("date", time.Now().Format("2006-01-02"), "Session date to analyze (YYYY-MM-DD)")
	symbolsFlag := flag.String("symbols", "", "Comma-separated instrument codes (default: all configured)")

	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	table, err := config.LoadInstruments(*instrumentsPath)
	if err != nil {
		log.WithError(err).Error("Failed to load instrument table")
		os.Exit(1)
	}

	date, err := time.Parse("2006-01-02", *dateFlag)
	if err != nil {
		log.WithError(err).Error("Invalid -date value")
		os.Exit(1)
	}

	instruments := table.Codes()
	if *symbolsFlag != "" {
		instruments = strings.Split(strings.ToUpper(*symbolsFlag), ",")
		for i := range instruments {
			instruments[i] = strings.TrimSpace(instruments[i])
		}
	}

	log.WithFields(logger.Fields{
		"service":     cfg.Levelflow.Name,
		"version":     cfg.Levelflow.Version,
		"date":        date.Format("2006-01-02"),
		"instruments": instruments,
	}).Info("starting levelflow")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Storage.S3.Enabled {
		logger.InitCloudWatch(cfg.Storage.S3.Region, "Levelflow", cfg.Logging.DashboardName)
	}
	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	lake := loader.NewCSVLoader(cfg.DataLake.Dir)
	aggregator := levels.NewAggregator(cfg, table, lake)
	detector := levels.NewConfluenceDetector(cfg.Levels.ConfluenceTolerance, cfg.Levels.MaxConfluenceZones)

	futures := provider.NewChain(provider.NewFinnhubProvider(cfg.Providers.Futures))
	bridge := provider.NewBridgeProvider(cfg.Providers.CFD)
	defer bridge.Close()
	cfd := provider.NewChain(bridge)

	basisService := reconcile.NewService(table, cfd, futures, cfg.Basis.CacheTTL)

	var artifacts *writer.ArtifactWriter
	if cfg.Artifacts.Enabled {
		artifacts, err = writer.NewArtifactWriter(cfg)
		if err != nil {
			log.WithError(err).Error("Failed to create artifact writer")
			os.Exit(1)
		}
	} else {
		log.WithComponent("main").Info("artifact export disabled")
	}

	built, mapped, failed := 0, 0, 0
	for _, instrument := range instruments {
		if ctx.Err() != nil {
			log.Warn("shutdown requested, stopping run")
			break
		}

		set, err := aggregator.BuildLevelSet(date, instrument)
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{
				"instrument": instrument,
			}).Error("level set build failed")
			failed++
			continue
		}
		built++

		zones := detector.Detect(set)

		var prices []float64
		for _, l := range set.Levels() {
			prices = append(prices, l.Price)
		}

		mappedLevels, basis, err := basisService.MapLevels(ctx, instrument, prices)
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{
				"instrument": instrument,
			}).Warn("cross-market mapping failed")
		} else {
			mapped++
		}

		if artifacts != nil {
			if _, err := artifacts.WriteLevelSet(ctx, set); err != nil {
				log.WithError(err).Error("failed to write level set artifact")
			}
			if len(zones) > 0 {
				if _, err := artifacts.WriteConfluenceZones(ctx, set, zones); err != nil {
					log.WithError(err).Error("failed to write confluence artifact")
				}
			}
			if len(mappedLevels) > 0 {
				if _, err := artifacts.WriteMappedLevels(ctx, instrument, set.CalculationDate, mappedLevels, basis); err != nil {
					log.WithError(err).Error("failed to write mapped levels artifact")
				}
			}
		}
	}

	log.WithFields(logger.Fields{
		"built":  built,
		"mapped": mapped,
		"failed": failed,
	}).Info("levelflow run complete")

	if failed > 0 && built == 0 {
		os.Exit(1)
	}
}
