package controller

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/mitchellh/cli"

	"github.com/switchboard-io/switchboard/internal/common"
)

// Command is the "controller" subcommand: the control-plane process
// that discovers kernels, maintains a control
// session pool against them, and pushes config per the discovery mode
// selected.
type Command struct {
	UI cli.Ui
	output io.Writer
	ctx context.Context

	flagControllerID string
	flagPSKFile string

	flagDiscoveryMode string // "fs" or "k8s"
	flagSocketDirs common.ArrayFlag
	flagK8sNamespace string
	flagK8sSelector string
	flagK8sPort int
	flagK8sContext string

	flagAPIAddr string

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
	c.flagSet.StringVar(&c.flagControllerID, "controller-id", "", "Identifier this controller presents during kernel take-over (required).")
	c.flagSet.StringVar(&c.flagPSKFile, "psk-file", "", "Path to the file containing the pre-shared key shared with its kernels (required).")
	c.flagSet.StringVar(&c.flagDiscoveryMode, "discovery", "fs", "Kernel discovery mode: \"fs\" (watch a directory of Unix sockets) or \"k8s\" (list pods by label selector).")
	c.flagSet.Var(&c.flagSocketDirs, "socket-dir", "Directory of kernel Unix sockets to watch, for -discovery fs. May be repeated to watch more than one directory.")
	c.flagSet.StringVar(&c.flagK8sNamespace, "k8s-namespace", "", "Namespace to list kernel pods in, for -discovery k8s.")
	c.flagSet.StringVar(&c.flagK8sSelector, "k8s-label-selector", "app=switchboard-kernel", "Label selector for kernel pods, for -discovery k8s.")
	c.flagSet.IntVar(&c.flagK8sPort, "k8s-port", 7750, "Control channel port on kernel pods, for -discovery k8s.")
	c.flagSet.StringVar(&c.flagK8sContext, "k8s-context", "", "Kubernetes context to use, for -discovery k8s.")
	c.flagSet.StringVar(&c.flagAPIAddr, "api-addr", "127.0.0.1:8080", "Address the resource-apply HTTP API listens on.")
	c.flagSet.StringVar(&c.flagLogLevel, "log-level", "info", "Log verbosity level: \"trace\", \"debug\", \"info\", \"warn\", or \"error\".")
	c.flagSet.BoolVar(&c.flagLogJSON, "log-json", false, "Enable JSON-formatted logging output.")
}

func (c *Command) Run(args []string) int {
	c.once.Do(c.init)
	c.flagSet.SetOutput(c.output)

	if err := c.flagSet.Parse(args); err != nil {
		return 1
	}

	logger := common.CreateLogger(common.SynchronizeWriter(c.output), c.flagLogLevel, c.flagLogJSON, "switchboard-controller")

	if c.flagControllerID == "" {
		logger.Error("-controller-id is required")
		return 1
	}
	if c.flagPSKFile == "" {
		logger.Error("-psk-file is required")
		return 1
	}

	psk, err := os.ReadFile(c.flagPSKFile)
	if err != nil {
		logger.Error("reading psk file", "error", err)
		return 1
	}

	ctx, cancel := signal.NotifyContext(c.ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return RunController(ctx, Config{
		ControllerID:  c.flagControllerID,
		PSK:           psk,
		DiscoveryMode: c.flagDiscoveryMode,
		SocketDirs:    []string(c.flagSocketDirs),
		K8sNamespace:  c.flagK8sNamespace,
		K8sSelector:   c.flagK8sSelector,
		K8sPort:       c.flagK8sPort,
		K8sContext:    c.flagK8sContext,
		APIAddr:       c.flagAPIAddr,
		Logger:        logger,
	})
}

func (c *Command) Synopsis() string {
	return "Starts a switchboard controller control-plane process"
}

func (c *Command) Help() string {
	return `
Usage: switchboard controller [options]

 Starts a controller: discovers kernels (filesystem socket directory or
 Kubernetes pod listing), maintains a control session against each, and
 serves an HTTP API for pushing resolved configs.

Options:

  -controller-id       Identifier presented during kernel take-over (required)
  -psk-file            Path to the pre-shared key shared with its kernels (required)
  -discovery           Kernel discovery mode: "fs" (default) or "k8s"
  -socket-dir          Directory of kernel Unix sockets, for -discovery fs (repeatable)
  -k8s-namespace       Namespace to list kernel pods in, for -discovery k8s
  -k8s-label-selector  Label selector for kernel pods, for -discovery k8s
  -k8s-port            Control channel port on kernel pods, for -discovery k8s
  -k8s-context         Kubernetes context to use, for -discovery k8s
  -api-addr            Address the resource-apply HTTP API listens on
  -log-level           Log verbosity (default "info")
  -log-json            Enable JSON-formatted logging
`
}
