// Copyright (c) 2025 The EDR developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"context"
	"fmt"
	"os"

	ethlog "github.com/ethereum/go-ethereum/log"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/mezosphere/edr/api"
	"github.com/mezosphere/edr/kv"
	"github.com/mezosphere/edr/metrics"
	"github.com/mezosphere/edr/state"
)

var (
	version   string
	gitCommit string
	gitTag    string

	log = ethlog.New("pkg", "main")
)

func fullVersion() string {
	versionMeta := "release"
	if gitTag == "" {
		versionMeta = "dev"
	}
	return fmt.Sprintf("%s-%s-%s", version, gitCommit, versionMeta)
}

func main() {
	app := cli.App{
		Version:   fullVersion(),
		Name:      "EDR",
		Usage:     "account state service for local chain simulation",
		Copyright: "2025 The EDR developers",
		Flags: []cli.Flag{
			dataDirFlag,
			persistFlag,
			apiAddrFlag,
			apiCorsFlag,
			enableAPILogsFlag,
			verbosityFlag,
			jsonLogsFlag,
			pprofFlag,
			enableMetricsFlag,
			metricsAddrFlag,
		},
		Action: defaultAction,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultAction(ctx *cli.Context) error {
	exitSignal := handleExitSignal()
	defer func() { log.Info("exited") }()

	initLogger(ctx)

	var (
		mainDB      kv.Store
		instanceDir string
		err         error
	)
	if ctx.Bool(persistFlag.Name) {
		if instanceDir, err = makeInstanceDir(ctx); err != nil {
			return err
		}
		if mainDB, err = openMainDB(instanceDir); err != nil {
			return err
		}
	} else {
		instanceDir = "Memory"
		if mainDB, err = openMemMainDB(); err != nil {
			return err
		}
	}
	defer func() { log.Info("closing state database..."); mainDB.Close() }()

	var metricsURL string
	if ctx.Bool(enableMetricsFlag.Name) {
		metrics.InitializePrometheusMetrics()
		metricsSrv, url, err := startMetricsServer(ctx)
		if err != nil {
			return err
		}
		metricsURL = url
		defer func() { log.Info("stopping metrics server..."); metricsSrv.Shutdown(context.Background()) }()
	}

	st := state.New(mainDB)
	defer func() {
		log.Info("committing pending state...")
		if err := st.Commit(); err != nil {
			log.Error("commit state", "err", err)
		}
	}()

	handler := api.New(st, api.Options{
		AllowedOrigins:  ctx.String(apiCorsFlag.Name),
		PprofOn:         ctx.Bool(pprofFlag.Name),
		EnableReqLogger: ctx.Bool(enableAPILogsFlag.Name),
		EnableMetrics:   ctx.Bool(enableMetricsFlag.Name),
	})
	apiSrv, apiURL, err := startAPIServer(ctx, handler)
	if err != nil {
		return err
	}
	defer func() { log.Info("stopping API server..."); apiSrv.Shutdown(context.Background()) }()

	printStartupMessage(instanceDir, apiURL, metricsURL)

	<-exitSignal.Done()
	return nil
}
