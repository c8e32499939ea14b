// Command realizerctl drives a running realizer over gRPC.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")

	for _, c := range rpcCommands {
		commander.Register(c, "realized results")
	}
	commander.Register(&devCertsCmd{}, "setup")
	commander.Register(&tokenCmd{}, "setup")

	conn.register(flag.CommandLine)
	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
