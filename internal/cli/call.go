package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"edtassist/internal/tools"
)

func init() {
	call := &cobra.Command{
		Use:   "call <user> <name> [json-args]",
		Short: "Run an assistant operation by name, exactly as a model would",
		Args:  cobra.RangeArgs(2, 3),
		Run:   runCall,
	}
	list := &cobra.Command{
		Use:   "tools",
		Short: "List the operations exposed to the assistant",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			printJSON(tools.Describe())
		},
	}

	RootCmd.AddCommand(call, list)
}

func runCall(cmd *cobra.Command, args []string) {
	name := args[1]
	if !tools.Has(name) {
		exitErr("call", fmt.Errorf("unknown function %q (see \"edtassist tools\")", name))
	}
	a := openApp()
	var raw []byte
	if len(args) == 3 {
		raw = []byte(args[2])
	}
	printJSON(a.dispatcher.CallJSON(cmd.Context(), args[0], name, raw))
}
