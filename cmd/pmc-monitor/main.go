// Command pmc-monitor runs a victim, optionally alongside an attacker, on pinned
// cores and records hardware performance counters for every repetition.
package main

import (
	"fmt"
	"os"

	appErr "pmcharness/pkg/errors"

	"github.com/spf13/cobra"
)

func newRootCmd() (*cobra.Command, *cliFlags) {
	f := &cliFlags{}
	cmd := &cobra.Command{
		Use:           "pmc-monitor -v VICTIM [-a ATTACKER] [flags]",
		Short:         "Measure hardware performance counters of a victim and an optional attacker",
		Long:          "Launches the victim (and attacker) blocked on pinned cores, releases them in a controlled order and appends one counter row per repetition to the result file.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := f.validate(cmd.Flags().Changed)
			if err != nil {
				return err
			}
			return run(cmd.Context(), opts)
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return appErr.Wrap(err, appErr.InvalidFlags)
	})

	flags := cmd.Flags()
	flags.SortFlags = false
	flags.StringVarP(&f.victim, "victim", "v", "", "victim executable")
	flags.StringVarP(&f.attacker, "attacker", "a", "", "attacker executable; enables attack mode")
	flags.StringVarP(&f.configPath, "config", "c", "", "counter configuration (default \"conf/monitor.yaml\")")
	flags.StringVarP(&f.output, "output", "o", "", "result file (default \"results/monitor.out\")")
	flags.IntVarP(&f.repeat, "repeat", "r", 0, "number of repetitions (default from config, 1)")
	flags.BoolVarP(&f.invert, "invert", "i", false, "release the victim before the attacker")
	flags.IntVarP(&f.delayMicros, "delay", "d", 0, "microseconds between the two releases")
	flags.BoolVarP(&f.sync, "sync", "s", false, "wait for each subject to exit before releasing the next")
	flags.BoolVarP(&f.monitorOnly, "monitor", "m", false, "run the subjects without touching counters")
	flags.StringArrayVar(&f.victimEnv, "venv", nil, "victim environment NAME=VALUE (repeatable)")
	flags.StringArrayVar(&f.attackerEnv, "aenv", nil, "attacker environment NAME=VALUE (repeatable)")
	flags.StringArrayVar(&f.victimParams, "vpar", nil, "victim parameters (repeatable, shell quoted)")
	flags.StringArrayVar(&f.attackerParams, "apar", nil, "attacker parameters (repeatable, shell quoted)")
	flags.BoolVar(&f.verbose, "verbose", false, "print every counter value")
	flags.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.BoolVar(&f.noRealtime, "no-rt", false, "skip nice and SCHED_RR escalation of subjects")
	flags.StringVar(&f.backend, "backend", "", "counter backend: auto, intel, amd or perf")
	flags.BoolVar(&f.archive, "archive", false, "upload the result files to the configured object store")
	_ = cmd.MarkFlagFilename("config", "yaml", "yml")
	return cmd, f
}

func main() {
	os.Exit(execute(os.Args[1:]))
}

func execute(args []string) int {
	cmd, _ := newRootCmd()
	cmd.SetArgs(args)
	err := cmd.Execute()
	if err == nil {
		return 0
	}
	// cobra's own argument errors are not coded
	if appErr.GetError(err) == nil {
		err = appErr.Wrap(err, appErr.InvalidFlags)
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	if appErr.Is(err, appErr.UsageFailure) {
		fmt.Fprint(os.Stderr, cmd.UsageString())
	}
	return appErr.ExitCode(err)
}
