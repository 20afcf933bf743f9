package main

import (
	"net/http"
	"os"
	"time"

	"github.com/nmcdev/metio/config"
	"github.com/nmcdev/metio/source"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	var (
		addr     string
		dataDir  string
		logLevel string
	)
	cmd := &cobra.Command{
		Use:   "metio-serv",
		Short: "Decode meteorological products from GDS, S3 or disk over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := config.Load()
			if err != nil {
				return err
			}
			if logLevel != "" {
				env.LogLevel = logLevel
				if err := env.Validate(); err != nil {
					return err
				}
			}
			logrus.SetLevel(env.Level())

			sources, err := newSources(env, dataDir)
			if err != nil {
				return err
			}
			s := &server{sources: sources, metrics: newMetrics(prometheus.DefaultRegisterer)}

			srv := &http.Server{
				Addr:         addr,
				WriteTimeout: time.Second * 15,
				ReadTimeout:  time.Second * 15,
				IdleTimeout:  time.Second * 60,
				Handler:      s.routes(),
			}
			logrus.Infof("Listening on %s", addr)
			return srv.ListenAndServe()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "0.0.0.0:8081", "listen address")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "serve local files below this directory as source \"file\"")
	cmd.Flags().StringVarP(&logLevel, "log-level", "l", "", "logging level, overrides the configuration")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newSources builds the byte sources the configuration enables. Remote
// sources read through the directory cache.
func newSources(env *config.Environment, dataDir string) (map[string]source.Source, error) {
	sources := map[string]source.Source{}
	if dataDir != "" {
		sources["file"] = source.File{Root: dataDir}
	}
	if !env.HasGDS() && env.S3Bucket == "" {
		return sources, nil
	}

	cache, err := source.NewCache(env.CacheDir)
	if err != nil {
		return nil, err
	}
	if env.HasGDS() {
		gds := source.NewGDS(env.GDSHost, env.GDSPort, env.HTTPTimeout)
		sources["gds"] = source.Cached{Source: gds, Cache: cache}
		logrus.Infof("GDS source %s", gds.BaseURL)
	}
	if env.S3Bucket != "" {
		s3, err := source.NewS3(env.S3Region, env.S3Bucket)
		if err != nil {
			return nil, err
		}
		sources["s3"] = source.Cached{Source: s3, Cache: cache}
		logrus.Infof("S3 source s3://%s", env.S3Bucket)
	}
	return sources, nil
}
