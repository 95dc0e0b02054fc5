package signalddb

import (
	signalcli "github.com/Michael-R-Dickinson/table-poker/signal-cli"
	"github.com/urfave/cli/v2"
)

var DDBOpts struct {
	DAXCluster string
	Endpoint   string
	TableName  string
}

var DAXClusterFlag = signalcli.StringFlag("dax-cluster", "The DAX cluster to connect to", &DDBOpts.DAXCluster)
var EndpointFlag = signalcli.StringFlag("ddb-endpoint", "Override the DynamoDB endpoint, e.g. http://localhost:8000 for dynamodb-local", &DDBOpts.Endpoint)
var TableNameFlag = signalcli.StringFlag("table-name", "The connections table name; defaults to the environment's standard table", &DDBOpts.TableName)

var DDBFlags = []cli.Flag{
	DAXClusterFlag,
	EndpointFlag,
	TableNameFlag,
}
