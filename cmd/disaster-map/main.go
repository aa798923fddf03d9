package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mr1hm/go-disaster-map/internal/config"
	"github.com/mr1hm/go-disaster-map/internal/ingestion"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "disaster-map",
		Short:        "Aggregate live disaster events and serve them as a map and list",
		SilenceUsage: true,
		RunE:         runServe,
	}
	root.AddCommand(newServeCmd(), newFetchCmd())
	return root
}

// loadConfig reads .env (if present) and the environment.
func loadConfig() (*config.Config, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func newAggregator(cfg *config.Config) *ingestion.Aggregator {
	return ingestion.NewAggregator(
		ingestion.Endpoints{
			USGSURL:        cfg.Sources.USGSURL,
			OpenWeatherURL: cfg.Sources.OpenWeatherURL,
			GDACSURL:       cfg.Sources.GDACSURL,
		},
		ingestion.WithHTTPClient(&http.Client{Timeout: cfg.Sources.Timeout}),
		ingestion.WithWorkers(cfg.Worker.Count),
	)
}

func aggregatorOptions(cfg *config.Config) ingestion.Options {
	return ingestion.Options{
		IncludeEarthquakes:     cfg.Sources.IncludeEarthquakes,
		IncludeWeather:         cfg.Sources.IncludeWeather,
		IncludeGlobalAlerts:    cfg.Sources.IncludeGlobalAlerts,
		Cities:                 cfg.Sources.Cities,
		EarthquakeMinMagnitude: cfg.Sources.EarthquakeMinMagnitude,
		WeatherAPIKey:          cfg.Sources.OpenWeatherAPIKey,
		Dedup:                  cfg.Refresh.Dedup,
	}
}

func logSources(opts ingestion.Options) {
	slog.Info("sources configured",
		"earthquakes", opts.IncludeEarthquakes,
		"weather", opts.IncludeWeather,
		"global_alerts", opts.IncludeGlobalAlerts,
		"cities", len(opts.Cities),
		"dedup", opts.Dedup)
	if opts.IncludeWeather && opts.WeatherAPIKey == "" {
		slog.Warn("OPENWEATHER_API_KEY is not set; weather source will report errors")
	}
}
