package main

import (
	"context"
	"log"
	"os"

	signalcli "github.com/Michael-R-Dickinson/table-poker/signal-cli"
	signalcron "github.com/Michael-R-Dickinson/table-poker/signal-cron"
	signalddb "github.com/Michael-R-Dickinson/table-poker/signal-ddb"
	signalws "github.com/Michael-R-Dickinson/table-poker/signal-ws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/urfave/cli/v2"
)

var service = signalcli.NewService("signaling-sweeper")

func main() {
	flags := append(signalcli.CommonFlags, signalddb.DDBFlags...)
	flags = append(flags, signalws.SweepFlags...)

	app := signalcli.App(service, action, flags...)
	err := app.Run(os.Args)
	if err != nil {
		log.Fatalln(err)
	}
}

func action(_ *cli.Context) error {
	sess := session.Must(session.NewSession())
	store, err := signalws.OpenStore(sess)
	if err != nil {
		return err
	}

	sweeper := &signalws.Sweeper{
		Connections: store,
		Concurrency: signalws.WSOpts.Concurrency,
		Dry:         signalcli.CommonOpts.Dry,
		Logger:      signalcli.Logger(service),
		Metrics:     signalcli.CloudWatchMetrics(service, sess),
	}
	if signalws.WSOpts.Probe {
		sweeper.Prober = &signalws.ManagementClients{}
	}

	handler := signalcron.NewHandler(service, func(ctx context.Context) error {
		_, err := sweeper.Sweep(ctx)
		return err
	})
	return handler.Start()
}
