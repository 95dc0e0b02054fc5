package main

import (
	"fmt"
	"log"
	"net/http"
	"os"

	signalcli "github.com/Michael-R-Dickinson/table-poker/signal-cli"
	signalddb "github.com/Michael-R-Dickinson/table-poker/signal-ddb"
	signalrest "github.com/Michael-R-Dickinson/table-poker/signal-rest"
	signalws "github.com/Michael-R-Dickinson/table-poker/signal-ws"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/go-chi/chi/v5"
	"github.com/urfave/cli/v2"
)

var service = signalcli.NewService("signaling")

func main() {
	flags := append(signalcli.CommonFlags, signalcli.PortFlag(3001))
	flags = append(flags, signalddb.DDBFlags...)
	flags = append(flags, signalws.WSFlags...)

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

	handler := &signalws.Handler{
		Connections: store,
		Delivery:    &signalws.ManagementClients{},
		Logger:      signalcli.Logger(service),
		Metrics:     signalcli.CloudWatchMetrics(service, sess),
		ConnTTL:     signalws.WSOpts.ConnTTL,
	}

	if !signalcli.CommonOpts.Console {
		lambda.Start(handler.HandleEvent)
		return nil
	}

	gateway := signalws.NewGateway(handler)
	router := signalrest.Middlewares(service, chi.NewRouter())
	gateway.Routes(router)
	(&signalrest.Sessions{Connections: store}).Routes(router)

	handler.Logger.Info().Int("port", signalcli.CommonOpts.Port).Bool("memory", signalws.WSOpts.Memory).Msg("starting local gateway")
	return http.ListenAndServe(fmt.Sprintf(":%v", signalcli.CommonOpts.Port), router)
}
