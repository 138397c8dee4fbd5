package main

import (
	"context"
	"io"
	"log"
	"os"

	"github.com/mitchellh/cli"

	cmdController "github.com/switchboard-io/switchboard/internal/commands/controller"
	cmdKernel "github.com/switchboard-io/switchboard/internal/commands/kernel"
	cmdVersion "github.com/switchboard-io/switchboard/internal/commands/version"

	"github.com/switchboard-io/switchboard/internal/version"
)

func main() {
	ui := &cli.BasicUi{Writer: os.Stdout, ErrorWriter: os.Stderr}
	os.Exit(run(os.Args[1:], ui, os.Stdout))
}

func run(args []string, ui cli.Ui, logOutput io.Writer) int {
	c := cli.NewCLI("switchboard", version.GetHumanVersion())
	c.Args = args
	c.Commands = initializeCommands(ui, logOutput)
	c.HelpFunc = helpFunc(c.Commands)
	c.HelpWriter = logOutput

	exitStatus, err := c.Run()
	if err != nil {
		log.Println(err)
	}
	return exitStatus
}

func initializeCommands(ui cli.Ui, logOutput io.Writer) map[string]cli.CommandFactory {
	return map[string]cli.CommandFactory{
		"kernel": func() (cli.Command, error) {
			return cmdKernel.New(context.Background(), ui, logOutput), nil
		},
		"controller": func() (cli.Command, error) {
			return cmdController.New(context.Background(), ui, logOutput), nil
		},
		"version": func() (cli.Command, error) {
			return &cmdVersion.Command{UI: ui, Version: version.GetHumanVersion()}, nil
		},
	}
}

func helpFunc(commands map[string]cli.CommandFactory) cli.HelpFunc {
	// This should be updated for any commands we want to hide for any reason.
	// Hidden commands can still be executed if you know the command, but
	// aren't shown in any help output. We use this for prerelease functionality
	// or advanced features.
	hidden := map[string]struct{}{}

	var include []string
	for k := range commands {
		if _, ok := hidden[k]; !ok {
			include = append(include, k)
		}
	}

	return cli.FilteredHelpFunc(include, cli.BasicHelpFunc("switchboard"))
}
