package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vhive-serverless/loadgen/internal/config"
	"github.com/vhive-serverless/loadgen/internal/tracedata"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a trace directory and run config without firing RPCs",
	Run:   runValidate,
}

func init() {
	validateCmd.Flags().StringVar(&configPath, "config", "", "Path to run config YAML (required)")
	validateCmd.Flags().StringVar(&tracePathFlag, "trace-path", "", "Override trace_path from config")
}

func runValidate(cmd *cobra.Command, args []string) {
	setLogLevel()

	if configPath == "" {
		logrus.Error("--config is required")
		os.Exit(2)
	}

	cfg, err := config.Load(configPath, config.Default())
	if err != nil {
		logrus.WithError(err).Error("failed to load run config")
		os.Exit(2)
	}
	if tracePathFlag != "" {
		cfg.TracePath = tracePathFlag
	}
	if err := cfg.Validate(); err != nil {
		logrus.WithError(err).Error("invalid run config")
		os.Exit(2)
	}

	descriptors, err := tracedata.LoadDirectory(cfg.TracePath)
	if err != nil {
		logrus.WithError(err).Error("failed to load trace directory")
		os.Exit(3)
	}

	logrus.WithField("functions", len(descriptors)).Info("trace and config valid")
	for _, d := range descriptors {
		logrus.WithFields(logrus.Fields{
			"function":      d.Name,
			"minutes":       len(d.IPM),
			"has_scheduler": d.HasScheduler,
		}).Debug("function descriptor")
	}
}
