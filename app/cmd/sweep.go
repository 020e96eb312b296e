package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"paygate/bootstrap"
	"paygate/pkg/fraudgraph"
)

var sweepTimeout time.Duration

// CmdSweep 执行一次超时扫描，适合交给 cron 调度
var CmdSweep = &cobra.Command{
	Use:   "sweep",
	Short: "Close pending or processing transactions that have timed out",
	RunE:  runSweep,
}

func init() {
	CmdSweep.Flags().DurationVar(&sweepTimeout, "timeout", 5*time.Minute, "maximum time for a single sweep")
}

func runSweep(cmd *cobra.Command, args []string) error {
	db := setup()

	bootstrap.SetupRedis()
	// 只投递通知，消费交给 serve 进程
	notification := bootstrap.SetupQueue(db, false)

	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	services, err := bootstrap.SetupPayment(ctx, db, notification.Notifier, fraudgraph.NopRecorder{})
	if err != nil {
		return err
	}

	n, err := services.Payments.SweepTimeouts(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("swept %d transaction(s)\n", n)
	return nil
}
