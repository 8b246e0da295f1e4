// Copyright (c) 2025 The EDR developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"os/user"
	"path/filepath"
	"runtime"
	"syscall"

	ethlog "github.com/ethereum/go-ethereum/log"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/mezosphere/edr/kv"
	"github.com/mezosphere/edr/metrics"
)

func initLogger(ctx *cli.Context) {
	logLevel := ctx.Int(verbosityFlag.Name)
	output := os.Stderr

	var handler slog.Handler
	if ctx.Bool(jsonLogsFlag.Name) {
		handler = ethlog.JSONHandler(output)
	} else {
		useColor := isatty.IsTerminal(output.Fd()) && os.Getenv("TERM") != "dumb"
		handler = ethlog.NewTerminalHandlerWithLevel(output, ethlog.FromLegacyLevel(logLevel), useColor)
	}
	ethlog.SetDefault(ethlog.NewLogger(handler))
}

func makeInstanceDir(ctx *cli.Context) (string, error) {
	dataDir := ctx.String(dataDirFlag.Name)
	if dataDir == "" {
		return "", errors.Errorf("unable to infer default data dir, use -%s to specify one", dataDirFlag.Name)
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return "", errors.Wrapf(err, "create data dir '%v'", dataDir)
	}
	return dataDir, nil
}

func openMainDB(dataDir string) (kv.Store, error) {
	dir := filepath.Join(dataDir, "state.db")
	db, err := kv.New(dir, kv.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "open state database at '%v'", dir)
	}
	return db, nil
}

func openMemMainDB() (kv.Store, error) {
	db, err := kv.NewMem()
	if err != nil {
		return nil, errors.Wrap(err, "open in-memory state database")
	}
	return db, nil
}

func startAPIServer(ctx *cli.Context, handler http.Handler) (*http.Server, string, error) {
	addr := ctx.String(apiAddrFlag.Name)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, "", errors.Wrapf(err, "listen API addr '%v'", addr)
	}
	srv := &http.Server{Handler: handler}
	go func() {
		srv.Serve(listener)
	}()
	return srv, "http://" + listener.Addr().String() + "/", nil
}

func startMetricsServer(ctx *cli.Context) (*http.Server, string, error) {
	addr := ctx.String(metricsAddrFlag.Name)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, "", errors.Wrapf(err, "listen metrics addr '%v'", addr)
	}
	router := http.NewServeMux()
	router.Handle("/metrics", metrics.HTTPHandler())
	srv := &http.Server{Handler: router}
	go func() {
		srv.Serve(listener)
	}()
	return srv, "http://" + listener.Addr().String() + "/metrics", nil
}

// handleExitSignal returns a context canceled on interrupt or terminate.
func handleExitSignal() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		exitSignalCh := make(chan os.Signal, 1)
		signal.Notify(exitSignalCh, os.Interrupt, syscall.SIGTERM)

		sig := <-exitSignalCh
		log.Info("exit signal received", "signal", sig)
		cancel()
	}()
	return ctx
}

func defaultDataDir() string {
	// Try to place the data folder in the user's home dir
	if home := homeDir(); home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, "Library", "Application Support", "org.mezosphere.edr")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "org.mezosphere.edr")
		} else {
			return filepath.Join(home, ".org.mezosphere.edr")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

func homeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

func printStartupMessage(instanceDir, apiURL, metricsURL string) {
	fmt.Printf(`Starting %v
    Instance dir  [ %v ]
    API portal    [ %v ]
`,
		"EDR state service",
		instanceDir,
		apiURL,
	)
	if metricsURL != "" {
		fmt.Printf("    Metrics       [ %v ]\n", metricsURL)
	}
}
