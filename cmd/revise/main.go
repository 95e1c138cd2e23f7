package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/odvcencio/revise/pkg/reviseerr"
)

const version = "revise 0.1.0-dev"

func main() {
	var opts options
	var showVersion bool

	root := &cobra.Command{
		Use:   "revise [flags] [<target>]",
		Short: "Rebase staged changes onto a commit and rewrite history to match",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				fmt.Println(version)
				return nil
			}
			if len(args) == 1 {
				opts.target = args[0]
			}
			if opts.gpgSign && opts.noGPGSign {
				return reviseerr.New(reviseerr.Misuse, "--gpg-sign and --no-gpg-sign are mutually exclusive")
			}
			if opts.all && opts.patch {
				return reviseerr.New(reviseerr.Misuse, "--all and --patch are mutually exclusive")
			}
			if opts.autosquash && opts.noAutosquash {
				return reviseerr.New(reviseerr.Misuse, "--autosquash and --no-autosquash are mutually exclusive")
			}
			return runRevise(opts)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.Flags().BoolVar(&opts.root, "root", false, "revise starting at the root commit")
	root.Flags().StringVar(&opts.ref, "ref", "HEAD", "reference to update")
	root.Flags().BoolVar(&opts.reauthor, "reauthor", false, "reset the author of the targeted commit")
	root.Flags().BoolVar(&showVersion, "version", false, "print the version and exit")
	root.Flags().BoolVarP(&opts.edit, "edit", "e", false, "edit commit message of targeted commit(s)")
	root.Flags().BoolVar(&opts.autosquash, "autosquash", false, "automatically apply fixup! and squash! commits to their targets")
	root.Flags().BoolVar(&opts.noAutosquash, "no-autosquash", false, "force disable autosquash behavior")
	root.Flags().BoolVar(&opts.noIndex, "no-index", false, "ignore the index while rewriting history")
	root.Flags().BoolVarP(&opts.all, "all", "a", false, "stage all tracked files before running")
	root.Flags().BoolVarP(&opts.patch, "patch", "p", false, "interactively stage hunks before running")
	root.Flags().BoolVarP(&opts.interactive, "interactive", "i", false, "interactively edit commit stack")
	root.Flags().StringArrayVarP(&opts.messages, "message", "m", nil, "specify commit message on command line")
	root.Flags().BoolVarP(&opts.cut, "cut", "c", false, "interactively cut a commit into two smaller commits")
	root.Flags().BoolVarP(&opts.gpgSign, "gpg-sign", "S", false, "sign commits")
	root.Flags().BoolVar(&opts.noGPGSign, "no-gpg-sign", false, "do not sign commits")

	if err := root.Execute(); err != nil {
		reportAndExit(err)
	}
}

func reportAndExit(err error) {
	red := color.New(color.FgRed)
	if reviseerr.Is(err, reviseerr.UserAbort) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	red.Fprintln(os.Stderr, err)
	logrus.WithError(err).Debug("revise: aborting")
	os.Exit(reviseerr.ExitCode(err))
}
