package signalws

import (
	"time"

	signalcli "github.com/Michael-R-Dickinson/table-poker/signal-cli"
	"github.com/urfave/cli/v2"
)

var WSOpts struct {
	ConnTTL     time.Duration
	Memory      bool
	Concurrency int
	Probe       bool
}

var ConnTTLFlag = signalcli.DurationFlag("conn-ttl", "How long a connection record outlives a missed disconnect", &WSOpts.ConnTTL, DefaultConnTTL)
var MemoryFlag = signalcli.BoolFlag("memory", "Keep connections in memory instead of DynamoDB (console mode only)", &WSOpts.Memory)
var ConcurrencyFlag = signalcli.IntFlag("concurrency", "Maximum concurrent deletes and probes while sweeping", &WSOpts.Concurrency, DefaultSweepConcurrency)
var ProbeFlag = signalcli.BoolFlag("probe", "Also probe live records and remove connections the gateway reports gone", &WSOpts.Probe)

var WSFlags = []cli.Flag{
	ConnTTLFlag,
	MemoryFlag,
}

var SweepFlags = []cli.Flag{
	ConcurrencyFlag,
	ProbeFlag,
}
