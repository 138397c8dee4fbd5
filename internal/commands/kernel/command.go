package kernel

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/mitchellh/cli"

	"github.com/switchboard-io/switchboard/internal/common"
)

const (
	defaultNetwork = "unix"
	defaultHeartbeat = 5 * time.Second
)

// Command is the "kernel" subcommand: a data-plane process that accepts
// one controller's authoritative session at a time and applies the
// config pushes it sends.
type Command struct {
	UI cli.Ui
	output io.Writer
	ctx context.Context

	flagKernelID string
	flagNetwork string
	flagListen string
	flagPSKFile string
	flagHeartbeat time.Duration
	flagLogLevel string
	flagLogJSON bool

	flagSet *flag.FlagSet
	once sync.Once
}

func New(ctx context.Context, ui cli.Ui, logOutput io.Writer) *Command {
	return &Command{UI: ui, output: logOutput, ctx: ctx}
}

func (c *Command) init() {
	c.flagSet = flag.NewFlagSet("", flag.ContinueOnError)
	c.flagSet.StringVar(&c.flagKernelID, "kernel-id", "", "Identifier this kernel reports to its controller (required).")
	c.flagSet.StringVar(&c.flagNetwork, "network", defaultNetwork, "Control channel network: \"unix\" or \"tcp\".")
	c.flagSet.StringVar(&c.flagListen, "listen", "", "Control channel bind address: a socket path for -network unix, or host:port for -network tcp.")
	c.flagSet.StringVar(&c.flagPSKFile, "psk-file", "", "Path to the file containing the pre-shared key shared with the controller (required).")
	c.flagSet.DurationVar(&c.flagHeartbeat, "heartbeat-interval", defaultHeartbeat, "Interval between kernel state heartbeats.")
	c.flagSet.StringVar(&c.flagLogLevel, "log-level", "info", "Log verbosity level: \"trace\", \"debug\", \"info\", \"warn\", or \"error\".")
	c.flagSet.BoolVar(&c.flagLogJSON, "log-json", false, "Enable JSON-formatted logging output.")
}

func (c *Command) Run(args []string) int {
	c.once.Do(c.init)
	c.flagSet.SetOutput(c.output)

	if err := c.flagSet.Parse(args); err != nil {
		return 1
	}

	logger := common.CreateLogger(common.SynchronizeWriter(c.output), c.flagLogLevel, c.flagLogJSON, "switchboard-kernel")

	if c.flagKernelID == "" {
		logger.Error("-kernel-id is required")
		return 1
	}
	if c.flagPSKFile == "" {
		logger.Error("-psk-file is required")
		return 1
	}
	if c.flagListen == "" {
		logger.Error("-listen is required")
		return 1
	}

	psk, err := os.ReadFile(c.flagPSKFile)
	if err != nil {
		logger.Error("reading psk file", "error", err)
		return 1
	}

	ctx, cancel := signal.NotifyContext(c.ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return RunKernel(ctx, Config{
		KernelID:          c.flagKernelID,
		Network:           c.flagNetwork,
		Listen:            c.flagListen,
		PSK:               psk,
		HeartbeatInterval: c.flagHeartbeat,
		Logger:            logger,
	})
}

func (c *Command) Synopsis() string {
	return "Starts a switchboard kernel data-plane process"
}

func (c *Command) Help() string {
	return fmt.Sprintf(`
Usage: switchboard kernel [options]

 Starts a kernel: a TCP switchboard that accepts one controller's
 authoritative control session at a time and applies the config pushes
 it sends.

Options:

  -kernel-id           Identifier this kernel reports to its controller (required)
  -network             Control channel network: "unix" (default) or "tcp"
  -listen              Control channel bind address (required)
  -psk-file            Path to the pre-shared key shared with the controller (required)
  -heartbeat-interval  Interval between kernel state heartbeats (default %s)
  -log-level           Log verbosity (default "info")
  -log-json            Enable JSON-formatted logging
`, defaultHeartbeat)
}
