package main

import (
	"log"
	"os"

	signalcli "github.com/Michael-R-Dickinson/table-poker/signal-cli"
	signalddb "github.com/Michael-R-Dickinson/table-poker/signal-ddb"
	signalws "github.com/Michael-R-Dickinson/table-poker/signal-ws"
	"github.com/Michael-R-Dickinson/table-poker/signal-ws/connectiondao"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/urfave/cli/v2"
)

var service = signalcli.NewService("signaling-audit")

func main() {
	app := signalcli.App(
		service,
		action,
		append(
			signalcli.CommonFlags,
			signalddb.DDBFlags...,
		)...,
	)
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

	tableName := signalddb.DDBOpts.TableName
	if tableName == "" {
		tableName = connectiondao.TableName(signalcli.CommonOpts.Env)
	}

	auditor := &signalws.Auditor{
		Connections: store,
		Metrics:     signalcli.CloudWatchMetrics(service, sess),
	}
	handler := signalddb.NewHandler(service, tableName, auditor.OnInsert, nil, auditor.OnRemove)
	return handler.Start()
}
