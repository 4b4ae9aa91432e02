// Copyright (c) 2018 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Command daonode runs every Fort Major DAO service as one process:
// Humans, Tasks, Votings, Task Archive, Bank, Reputation, Liquid
// Democracy and Work Reports, wired together in-process and mounted on
// one HTTP surface (spec §6).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common/mclock"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/inconshreveable/log15"
	colorable "github.com/mattn/go-colorable"
	isatty "github.com/mattn/go-isatty"
	"github.com/pborman/uuid"
	cli "gopkg.in/urfave/cli.v1"

	apibank "github.com/fort-major/dao/api/bank"
	apihumans "github.com/fort-major/dao/api/humans"
	apild "github.com/fort-major/dao/api/liquiddemocracy"
	apireputation "github.com/fort-major/dao/api/reputation"
	apitaskarchive "github.com/fort-major/dao/api/taskarchive"
	apitasks "github.com/fort-major/dao/api/tasks"
	apivotings "github.com/fort-major/dao/api/votings"
	apiworkreports "github.com/fort-major/dao/api/workreports"

	"github.com/fort-major/dao/bank"
	"github.com/fort-major/dao/core"
	"github.com/fort-major/dao/humans"
	"github.com/fort-major/dao/ledgerclient"
	"github.com/fort-major/dao/liquiddemocracy"
	"github.com/fort-major/dao/proof"
	"github.com/fort-major/dao/reputation"
	"github.com/fort-major/dao/taskarchive"
	"github.com/fort-major/dao/tasks"
	"github.com/fort-major/dao/telemetry"
	"github.com/fort-major/dao/votings"
	"github.com/fort-major/dao/workreports"
)

var log = log15.New("module", "daonode")

// roundDuration publishes round durations for a timer loop, the way the
// teacher's packer_loop measures mclock.Now() deltas for its own stage
// timings instead of wall-clock time.Since.
var roundDuration = telemetry.HistogramVec("daonode_round_duration_ms", []string{"loop"}, telemetry.BucketRoundDurations)

func recordRound(loop string, start mclock.AbsTime) {
	roundDuration.ObserveWithLabels(int64(mclock.Now()-start)/1_000_000, map[string]string{"loop": loop})
}

var (
	dataDirFlag = cli.StringFlag{
		Name:  "data-dir",
		Usage: "directory holding the reputation balance store",
		Value: "./daonode-data",
	}
	listenFlag = cli.StringFlag{
		Name:  "listen",
		Usage: "address the combined HTTP surface listens on",
		Value: "127.0.0.1:8669",
	}
	verbosityFlag = cli.IntFlag{
		Name:  "verbosity",
		Usage: "log verbosity, 0 (crit) to 5 (debug)",
		Value: int(log15.LvlInfo),
	}
	adminsFlag = cli.StringSliceFlag{
		Name:  "admin",
		Usage: "principal (base32 or hex) allowed to call Bank's admin RPCs, repeatable",
	}
	fmjLedgerFlag = cli.StringFlag{
		Name:  "fmj-ledger-url",
		Usage: "base URL of the FMJ token ledger's transfer endpoint",
	}
	icpLedgerFlag = cli.StringFlag{
		Name:  "icp-ledger-url",
		Usage: "base URL of the ICP ledger's transfer endpoint",
	}
	metricsFlag = cli.BoolFlag{
		Name:  "metrics",
		Usage: "serve Prometheus metrics at /metrics instead of the no-op backend",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "daonode"
	app.Usage = "Fort Major DAO backend, all services in one process"
	app.Flags = []cli.Flag{
		dataDirFlag, listenFlag, verbosityFlag, adminsFlag,
		fmjLedgerFlag, icpLedgerFlag, metricsFlag,
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

// initLogger mirrors the log15 setup every cmd/thor-family binary
// uses: colorized terminal output when stdout is a tty, plain when
// it's redirected.
func initLogger(verbosity int) {
	var handler log15.Handler
	output := colorable.NewColorableStdout()
	if isatty.IsTerminal(os.Stdout.Fd()) {
		handler = log15.StreamHandler(output, log15.TerminalFormat())
	} else {
		handler = log15.StreamHandler(output, log15.LogfmtFormat())
	}
	log15.Root().SetHandler(log15.LvlFilterHandler(log15.Lvl(verbosity), handler))
}

func nowNs() core.TimestampNs {
	return core.TimestampNs(time.Now().UnixNano())
}

// initReputationOnce seeds the deployer's genesis balance on a fresh
// store. Init panics on an already-initialized store by contract, so a
// restart against existing data recovers that panic instead of crashing.
func initReputationOnce(svc *reputation.Service) {
	defer func() {
		if r := recover(); r != nil {
			log.Info("reputation store already initialized", "recovered", r)
		}
	}()
	if err := svc.Init(core.AnonymousPrincipal, nowNs()); err != nil {
		log.Error("reputation init failed", "err", err)
	}
}

func run(ctx *cli.Context) error {
	initLogger(ctx.Int(verbosityFlag.Name))

	if ctx.Bool(metricsFlag.Name) {
		telemetry.InitPrometheus()
	} else {
		telemetry.InitNoop()
	}

	ids := core.ServiceIDs{
		Humans:          "humans",
		Votings:         "votings",
		Tasks:           "tasks",
		TaskArchive:     "task_archive",
		Bank:            "bank",
		Reputation:      "reputation",
		LiquidDemocracy: "liquid_democracy",
		WorkReports:     "work_reports",
		FmjLedger:       ctx.String(fmjLedgerFlag.Name),
		IcpLedger:       ctx.String(icpLedgerFlag.Name),
	}

	// RootKeys/CertCache are the verification side of package proof
	// (spec §4.9): a single-binary deployment calls its own services
	// in-process and has nothing to verify, but a split deployment
	// replaces the adapters in adapters.go with HTTP clients that
	// verify each peer's certified reply through exactly these two
	// objects before trusting it.
	_ = proof.NewRootKeys()
	_ = proof.NewCertCache()

	repStore, err := reputation.Open(ctx.String(dataDirFlag.Name) + "/reputation")
	if err != nil {
		return fmt.Errorf("daonode: opening reputation store: %w", err)
	}
	defer repStore.Close()

	liquidDemocracySvc := liquiddemocracy.New()
	reputationSvc := reputation.New(repStore, []string{ids.Tasks, ids.WorkReports})
	humansSvc := humans.New([]string{ids.Tasks, ids.WorkReports}, ids.Bank)
	taskArchiveSvc := taskarchive.New(ids.Tasks)

	fmjLedger := ledgerclient.New(ids.FmjLedger)
	icpLedger := ledgerclient.New(ids.IcpLedger)
	bankSvc := bank.New(fmjLedger, icpLedger, &humansClientAdapter{humans: humansSvc, callerID: ids.Bank},
		ctx.StringSlice(adminsFlag.Name), nowNs())

	archiveSink := &archiveSinkAdapter{archive: taskArchiveSvc, callerID: ids.Tasks, now: nowNs}
	tasksSvc := tasks.New(humansSvc, archiveSink, ids.Votings)

	dispatcher := &votingsDispatcherAdapter{tasks: tasksSvc, callerID: ids.Votings, now: nowNs}
	votingsSvc := votings.New(dispatcher)

	selfWorkReportsID := core.NewRandomPrincipal()
	workReportsSvc := workreports.New(
		selfWorkReportsID,
		&rewardMinterAdapter{humans: humansSvc, callerID: ids.WorkReports},
		&repMinterAdapter{reputation: reputationSvc, callerID: ids.WorkReports, now: nowNs},
	)

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	initReputationOnce(reputationSvc)

	go runArchivePump(rootCtx, archiveSink)
	go runDecayLoop(rootCtx, reputationSvc)

	router := mux.NewRouter()
	apihumans.New(humansSvc).Mount(router, "/humans")
	apitasks.New(tasksSvc).Mount(router, "/tasks")
	apivotings.New(votingsSvc).Mount(router, "/votings")
	apitaskarchive.New(taskArchiveSvc).Mount(router, "/task-archive")
	apibank.New(bankSvc).Mount(router, "/bank")
	apireputation.New(reputationSvc, liquidDemocracySvc).Mount(router, "/reputation")
	apild.New(liquidDemocracySvc).Mount(router, "/liquid-democracy")
	apiworkreports.New(workReportsSvc).Mount(router, "/work-reports")
	router.Path("/metrics").Methods("GET").Handler(telemetry.Handler())

	handler := handlers.CombinedLoggingHandler(os.Stdout,
		handlers.RecoveryHandler()(
			stampRequestID(router)))

	srv := &http.Server{
		Addr:    ctx.String(listenFlag.Name),
		Handler: handler,
	}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Info("shutting down")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("daonode listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// stampRequestID sets a fresh uuid as the X-Request-Id header of every
// response; the id is not added to the request or to log lines.
func stampRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New()
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(r.Context()))
	})
}

// runArchivePump flushes queued archived tasks to the Task Archive
// service once a day (spec §4.1.2).
func runArchivePump(ctx context.Context, sink *archiveSinkAdapter) {
	ticker := time.NewTicker(time.Duration(core.OneDayNs))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := mclock.Now()
			sink.pump()
			recordRound("archive_pump", start)
		}
	}
}

// runDecayLoop drives Reputation's chunked monthly decay (spec §4.3):
// each DecayRound visits at most core.DecayRoundChunkSize entries and
// reports whether more remain in the current pass.
func runDecayLoop(ctx context.Context, rep *reputation.Service) {
	wait := time.Duration(core.OneMonthNs)
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		start := mclock.Now()
		more, err := rep.DecayRound(nowNs())
		recordRound("decay", start)
		if err != nil {
			log.Error("decay round failed", "err", err)
			wait = time.Duration(core.OneMonthNs)
			continue
		}
		if more {
			wait = time.Second
		} else {
			wait = time.Duration(core.OneMonthNs)
		}
	}
}
