package cmd

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/vhive-serverless/loadgen/internal/rpctransport"
	"github.com/vhive-serverless/loadgen/internal/schedpb"
	"github.com/vhive-serverless/loadgen/internal/scheduler"
)

var (
	schedulerListenAddr string
	schedulerTotalGPU   int
)

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Serve the elastic replica scheduler (C6) as a standalone gRPC service",
	Run:   runScheduler,
}

func init() {
	schedulerCmd.Flags().StringVar(&schedulerListenAddr, "listen", ":50051", "Address to serve the scheduler RPC on")
	schedulerCmd.Flags().IntVar(&schedulerTotalGPU, "total-gpu", 40, "Cluster's fixed GPU capacity")
}

// runScheduler mirrors the original implementation's serve() entrypoint
// (cmd/sched_func.py): build a gRPC server, register the Executor service,
// and serve until interrupted.
func runScheduler(cmd *cobra.Command, args []string) {
	setLogLevel()

	lis, err := net.Listen("tcp", schedulerListenAddr)
	if err != nil {
		logrus.WithError(err).Error("failed to listen")
		os.Exit(2)
	}

	server := grpc.NewServer(grpc.ForceServerCodec(rpctransport.Codec{}))
	schedpb.RegisterExecutorServer(server, scheduler.NewServer(schedulerTotalGPU))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	go func() {
		<-ctx.Done()
		logrus.Info("shutting down scheduler")
		server.GracefulStop()
	}()

	logrus.WithField("addr", schedulerListenAddr).Info("scheduler listening")
	if err := server.Serve(lis); err != nil {
		logrus.WithError(err).Error("scheduler server stopped")
		os.Exit(1)
	}
}
