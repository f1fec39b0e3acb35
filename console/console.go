// Package console turns operator input into server commands. Lines starting
// with '/' are commands; anything else is just logged.
package console

import (
	"bufio"
	"bytes"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lcx/hopnet/log"
)

// Console dispatches slash commands through a cobra command tree.
type Console struct {
	root *cobra.Command
	out  bytes.Buffer
}

// New builds a console whose /stop command calls stop.
func New(stop func()) *Console {
	c := &Console{}
	c.root = &cobra.Command{
		Use:           "hopnet",
		Short:         "hopnet level server console",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	c.root.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "Stop the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.Println("stopping server")
			stop()
			return nil
		},
	})
	c.root.SetOut(&c.out)
	c.root.SetErr(&c.out)
	return c
}

// Execute handles one input line. Command output is written to the log.
func (c *Console) Execute(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		log.Info().Str("input", line).Msg("console")
		return nil
	}

	c.out.Reset()
	args := strings.Fields(line[1:])
	if args == nil {
		args = []string{}
	}
	c.root.SetArgs(args)
	err := c.root.Execute()
	for _, l := range strings.Split(strings.TrimSpace(c.out.String()), "\n") {
		if l != "" {
			log.Info().Str("cmd", line).Msg(l)
		}
	}
	if err != nil {
		log.Warn().Str("cmd", line).Err(err).Msg("console command failed")
	}
	return err
}

// Run reads lines from in until EOF.
func (c *Console) Run(in io.Reader) error {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		_ = c.Execute(sc.Text())
	}
	return sc.Err()
}
