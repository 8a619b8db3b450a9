package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alvarorichard/gocatalog/internal/config"
	"github.com/alvarorichard/gocatalog/internal/util"
	"github.com/alvarorichard/gocatalog/internal/version"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	debugFlag := flag.Bool("debug", false, "enable debug mode")
	configFlag := flag.String("config", "", "configuration file")
	helpFlag := flag.Bool("help", false, "show help message")
	altHelpFlag := flag.Bool("h", false, "show help message")

	flag.Parse()

	if *versionFlag || version.HasVersionArg() {
		version.ShowVersion("gocatalog")
		return
	}
	if *helpFlag || *altHelpFlag || flag.NArg() == 0 {
		util.Helper()
		return
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, util.ErrorHandler(err))
		os.Exit(1)
	}

	util.SetDebugMode(*debugFlag || cfg.Debug)
	util.InitLoggerWithFile(util.LogFileOptions{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, util.ErrorHandler(err))
		stop()
		os.Exit(1)
	}
}
