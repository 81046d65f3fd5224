package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a headless publishing dispatcher",
	Long: `Runs only the background dispatcher: claims due schedules and publishes
them. Useful for scaling delivery independently of the API.`,
	Run: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(_ *cobra.Command, _ []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatcher.StartLoop(ctx)
	logrus.Infof("[WORKER] Dispatcher running (server_id=%s)", serverID)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logrus.Info("[WORKER] Reception of termination signal, shutting down gracefully...")
	cancel()
	StopApp()
}
