package version

import (
	"fmt"

	"github.com/mitchellh/cli"
)

// Command is the "version" subcommand: it prints the build version
// string and exits.
type Command struct {
	UI      cli.Ui
	Version string
}

func (c *Command) Run(_ []string) int {
	c.UI.Output(fmt.Sprintf("switchboard %s", c.Version))
	return 0
}

func (c *Command) Synopsis() string {
	return "Prints the version"
}

func (c *Command) Help() string {
	return `
Usage: switchboard version

  Prints the current version of switchboard.
`
}
