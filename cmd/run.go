package cmd

import (
	"context"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/vhive-serverless/loadgen/internal/config"
	"github.com/vhive-serverless/loadgen/internal/faaspb"
	"github.com/vhive-serverless/loadgen/internal/orchestrator"
	"github.com/vhive-serverless/loadgen/internal/output"
	"github.com/vhive-serverless/loadgen/internal/plannerclient"
	"github.com/vhive-serverless/loadgen/internal/rpctransport"
	"github.com/vhive-serverless/loadgen/internal/schedpb"
	"github.com/vhive-serverless/loadgen/internal/telemetry"
	"github.com/vhive-serverless/loadgen/internal/tracedata"
)

var (
	configPath    string
	tracePathFlag string
	outputPrefix  string
	tagFlag       string
	scenarioFlag  string
	functionAddr  string
	schedulerAddr string
	promAddr      string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Drive a trace against a cluster",
	Run:   runRun,
}

func init() {
	runCmd.Flags().StringVar(&configPath, "config", "", "Path to run config YAML (required)")
	runCmd.Flags().StringVar(&tracePathFlag, "trace-path", "", "Override trace_path from config")
	runCmd.Flags().StringVar(&outputPrefix, "output-prefix", "", "Override output_path_prefix from config")
	runCmd.Flags().StringVar(&tagFlag, "tag", "", "Override output tag")
	runCmd.Flags().StringVar(&scenarioFlag, "scenario", "", "Override output scenario")
	runCmd.Flags().StringVar(&functionAddr, "function-addr", "", "gRPC address of the function endpoint (server: trace)")
	runCmd.Flags().StringVar(&schedulerAddr, "scheduler-addr", "", "gRPC address of the elastic scheduler (required when sched_alg != none)")
	runCmd.Flags().StringVar(&promAddr, "prom-addr", "http://localhost:9090", "Prometheus base URL for telemetry scraping")
}

func runRun(cmd *cobra.Command, args []string) {
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
	if outputPrefix != "" {
		cfg.OutputPathPrefix = outputPrefix
	}
	if tagFlag != "" {
		cfg.Tag = tagFlag
	}
	if scenarioFlag != "" {
		cfg.Scenario = scenarioFlag
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
	if len(descriptors) == 0 {
		logrus.Error("trace directory contains no functions")
		os.Exit(3)
	}

	functionClient, closeFunction := dialFunctionClient(cfg)
	defer closeFunction()

	var planner *plannerclient.Client
	if cfg.SchedAlg != config.SchedAlgNone {
		if schedulerAddr == "" {
			logrus.Error("--scheduler-addr is required when sched_alg is not none")
			os.Exit(2)
		}
		schedulerClient, closeScheduler := dialSchedulerClient(schedulerAddr)
		defer closeScheduler()

		paths := output.Paths{PathPrefix: cfg.OutputPathPrefix, Tag: cfg.Tag, Scenario: cfg.Scenario}
		jobLog, err := output.NewJobLogWriter(paths.JobLogs())
		if err != nil {
			logrus.WithError(err).Error("failed to open job log")
			os.Exit(2)
		}
		defer jobLog.Close()

		planner = plannerclient.New(plannerclient.Config{
			Scheduler:    schedulerClient,
			Functions:    functionClient,
			JobLog:       jobLog,
			AvailableGPU: int64(cfg.TotalGPU),
			SchedAlg:     string(cfg.SchedAlg),
		})
		for _, d := range descriptors {
			if !d.HasScheduler {
				continue
			}
			planner.Track(plannerclient.JobDescriptor{
				Name:                d.Name,
				Batchsize:           int64(d.Batchsize),
				DeadlineMs:          d.DeadlineMs,
				IterationsRemaining: int64(d.Iterations),
				RuntimeMs:           int64(d.Duration.AverageMs),
			})
		}
	}

	var collector *telemetry.Collector
	if cfg.EnableMetricsScrapping {
		collector, err = telemetry.NewCollector(promAddr, telemetry.DefaultQueries())
		if err != nil {
			logrus.WithError(err).Error("failed to build telemetry collector")
			os.Exit(2)
		}
	}

	o := orchestrator.New(cfg, descriptors, func(name string) faaspb.FunctionExecutorClient { return functionClient }, planner, collector)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	paths := output.Paths{PathPrefix: cfg.OutputPathPrefix, Tag: cfg.Tag, Scenario: cfg.Scenario}
	if err := o.Run(ctx, paths); err != nil {
		logrus.WithError(err).Error("run failed")
		os.Exit(1)
	}

	if _, statErr := os.Stat(paths.OverloadFlag()); statErr == nil {
		logrus.Warn("run completed with overload.flag present")
		os.Exit(1)
	}
	logrus.Info("run complete")
}

// dialFunctionClient resolves the Function RPC client per the configured
// server mode (§6): "trace" dials a real endpoint over gRPC using the JSON
// codec in place of protoc-generated marshaling (rpctransport); "wimpy" and
// "empty" are local in-process stand-ins used to drive the invocation
// engine without a live cluster, since the function runtime itself is out
// of scope.
func dialFunctionClient(cfg config.RunConfig) (faaspb.FunctionExecutorClient, func()) {
	switch cfg.Server {
	case config.ServerEmpty:
		return emptyFunctionClient{}, func() {}
	case config.ServerWimpy:
		return wimpyFunctionClient{rng: rand.New(rand.NewSource(cfg.Seed))}, func() {}
	default:
		if functionAddr == "" {
			logrus.Error("--function-addr is required when server is trace")
			os.Exit(2)
		}
		conn, err := grpc.NewClient(functionAddr,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithDefaultCallOptions(grpc.ForceCodec(rpctransport.Codec{})),
		)
		if err != nil {
			logrus.WithError(err).Error("failed to dial function endpoint")
			os.Exit(2)
		}
		return faaspb.NewFunctionExecutorClient(conn), func() { conn.Close() }
	}
}

func dialSchedulerClient(addr string) (schedpb.ExecutorClient, func()) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(rpctransport.Codec{})),
	)
	if err != nil {
		logrus.WithError(err).Error("failed to dial scheduler endpoint")
		os.Exit(2)
	}
	return schedpb.NewExecutorClient(conn), func() { conn.Close() }
}

// emptyFunctionClient is the "empty" server mode: every call succeeds
// instantly with zero reported cost, useful for exercising the driver's
// arrival timing in isolation.
type emptyFunctionClient struct{}

func (emptyFunctionClient) Execute(ctx context.Context, in *faaspb.ExecuteRequest, opts ...grpc.CallOption) (*faaspb.ExecuteReply, error) {
	return &faaspb.ExecuteReply{}, nil
}

func (emptyFunctionClient) Resize(ctx context.Context, in *faaspb.ResizeRequest, opts ...grpc.CallOption) (*faaspb.ResizeReply, error) {
	return &faaspb.ResizeReply{Applied: true}, nil
}

// wimpyFunctionClient is the "wimpy" server mode: a resource-constrained
// local stand-in that actually sleeps for the requested duration (jittered)
// before replying, so response-time measurements stay meaningful without a
// real cluster.
type wimpyFunctionClient struct {
	rng *rand.Rand
}

func (c wimpyFunctionClient) Execute(ctx context.Context, in *faaspb.ExecuteRequest, opts ...grpc.CallOption) (*faaspb.ExecuteReply, error) {
	jitter := 1.0 + 0.1*c.rng.Float64()
	sleep := time.Duration(float64(in.RuntimeInMilliSec)*jitter) * time.Millisecond
	select {
	case <-time.After(sleep):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &faaspb.ExecuteReply{
		DurationInMicroSec: sleep.Microseconds(),
		MemoryUsageInKb:    in.MemoryInMebiBytes * 1024,
	}, nil
}

func (c wimpyFunctionClient) Resize(ctx context.Context, in *faaspb.ResizeRequest, opts ...grpc.CallOption) (*faaspb.ResizeReply, error) {
	return &faaspb.ResizeReply{Applied: true}, nil
}
