package main

import (
	"log"
	"os"

	signalcli "github.com/Michael-R-Dickinson/table-poker/signal-cli"
	signalddb "github.com/Michael-R-Dickinson/table-poker/signal-ddb"
	signalrest "github.com/Michael-R-Dickinson/table-poker/signal-rest"
	signalws "github.com/Michael-R-Dickinson/table-poker/signal-ws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/go-chi/chi/v5"
	"github.com/urfave/cli/v2"
)

var service = signalcli.NewService("signaling-rest")

func main() {
	app := signalcli.App(
		service,
		action,
		append(
			append(signalcli.CommonFlags, signalcli.PortFlag(3002)),
			signalddb.DDBFlags...,
		)...,
	)
	err := app.Run(os.Args)
	if err != nil {
		log.Fatalln(err)
	}
}

func action(_ *cli.Context) error {
	store, err := signalws.OpenStore(session.Must(session.NewSession()))
	if err != nil {
		return err
	}

	router := signalrest.Middlewares(service, chi.NewRouter())
	(&signalrest.Sessions{Connections: store}).Routes(router)
	return signalrest.Webserver(service, router)
}
