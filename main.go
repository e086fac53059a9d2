package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path"
	"runtime"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"tsquare/config"
)

type options struct {
	debug  bool
	config string
}

func setupLogging(debug bool) {
	log.SetFormatter(&log.TextFormatter{
		CallerPrettyfier: func(f *runtime.Frame) (string, string) {
			filename := path.Base(f.File)
			return fmt.Sprintf("%s()", f.Function), fmt.Sprintf("%s:%d", filename, f.Line)
		},
	})
	if debug {
		log.SetLevel(log.DebugLevel)
		log.SetReportCaller(true)
	}
}

// run loads the configuration and wires the app for a command.
func (o *options) run(fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(o.config)
		if err != nil {
			return err
		}
		a, err := newApp(cfg, o.debug)
		if err != nil {
			return err
		}
		defer a.Close()
		return userError(fn(cmd.Context(), a, args))
	}
}

func newRootCmd() *cobra.Command {
	o := &options{}
	rootCmd := &cobra.Command{
		Use:           "tsquare",
		Short:         "tsquare is a command line client for the T-Square portal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(o.debug)
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&o.debug, "debug", "d", false, "Debug mode")
	rootCmd.PersistentFlags().StringVarP(&o.config, "config", "c", "", "Config file (default "+config.DefaultPath()+")")

	rootCmd.AddCommand(
		loginCmd(o),
		logoutCmd(o),
		classesCmd(o),
		toggleCmd(o),
		announcementsCmd(o),
		announcementCmd(o),
		assignmentsCmd(o),
		assignmentCmd(o),
		resourcesCmd(o),
		gradesCmd(o),
		gradeCmd(o),
		subjectCmd(o),
	)
	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Error(err)
		stop()
		os.Exit(1)
	}
}
