package signalws

import (
	"fmt"

	signalcli "github.com/Michael-R-Dickinson/table-poker/signal-cli"
	signalddb "github.com/Michael-R-Dickinson/table-poker/signal-ddb"
	"github.com/Michael-R-Dickinson/table-poker/signal-ws/connectiondao"
	"github.com/aws/aws-sdk-go/aws/session"
)

// Store is the connection registry as used by the signaling binaries.
type Store interface {
	Registry
	SweepRegistry
}

// OpenStore returns the in-memory registry when --memory is set in console
// mode, and the DynamoDB table for --env (or --table-name) otherwise.
func OpenStore(sess *session.Session) (Store, error) {
	if WSOpts.Memory {
		if !signalcli.CommonOpts.Console {
			return nil, fmt.Errorf("--memory is only supported with --console")
		}
		return connectiondao.NewMemory(), nil
	}

	api, err := signalddb.DynamoDBAPI(sess)
	if err != nil {
		return nil, err
	}
	if tableName := signalddb.DDBOpts.TableName; tableName != "" {
		return connectiondao.New(api, tableName), nil
	}
	return connectiondao.Build(api, signalcli.CommonOpts.Env), nil
}
