package main

import (
	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"

	"github.com/dudk/console"
	"github.com/dudk/console/session"
)

type inspectCommand struct {
	*app
	dump bool
}

func (a *app) inspectCommand() *cobra.Command {
	ic := &inspectCommand{app: a}
	cmd := &cobra.Command{
		Use:   "inspect CONFIG",
		Short: "Build the session and print its state",
		Args:  cobra.ExactArgs(1),
		RunE:  ic.run,
	}
	cmd.Flags().BoolVar(&ic.dump, "dump", false, "dump state structure instead of YAML")
	return cmd
}

func (ic *inspectCommand) run(cmd *cobra.Command, args []string) error {
	c, err := session.LoadConfig(args[0])
	if err != nil {
		return err
	}
	in, err := ic.open(cmd.Context(), c, "dummy")
	if err != nil {
		return err
	}
	state := in.session.State()
	order := in.session.ProcessOrder()
	if err := in.close(); err != nil {
		return err
	}
	if ic.dump {
		cfg := spew.ConfigState{Indent: "  ", DisablePointerAddresses: true, SortKeys: true}
		cfg.Fdump(cmd.OutOrStdout(), order, state)
		return nil
	}
	data, err := console.MarshalState(state)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
