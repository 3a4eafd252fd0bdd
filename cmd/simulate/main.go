package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/starchallenge/internal/simulate"
)

const (
	defaultParticipants   = 50
	defaultCriteria       = 3
	defaultPerParticipant = 20
	defaultWorkers        = 2 // multiplier for runtime.NumCPU()
	defaultTimeout        = 10 * time.Second
	defaultSettle         = 10 * time.Second
	defaultRunTimeout     = 10 * time.Minute

	exitFailure      = 1
	exitVerification = 2
)

func main() {
	var (
		baseURL      = flag.String("url", "http://localhost:9080", "Base URL of the service")
		participants = flag.Int("participants", defaultParticipants, "Participants to seed")
		criteria     = flag.Int("criteria", defaultCriteria, "Weighted criteria to seed")
		per          = flag.Int("per", defaultPerParticipant, "Performances per participant")
		workers      = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Concurrent submitters")
		timeout      = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		settle       = flag.Duration("settle", defaultSettle, "Time allowed for the live channel to converge")
		updateEvery  = flag.Int("update-every", 0, "Update every Nth performance after submitting")
		deleteEvery  = flag.Int("delete-every", 0, "Delete every Nth performance after submitting")
		noLive       = flag.Bool("no-live", false, "Skip the websocket subscriber")
		seed         = flag.Uint64("seed", uint64(time.Now().UnixNano()), "Random seed")
		outputFile   = flag.String("output", "", "Write a JSON report to this file")
		logFile      = flag.String("log", "", "Also write logs to this file")
		verbose      = flag.Bool("verbose", false, "Enable debug logging")
		help         = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		simulate.ShowHelp()
		return
	}

	if err := simulate.SetupLogging(*logFile, *verbose); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(exitFailure)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultRunTimeout)
	defer cancel()

	cfg := &simulate.Config{
		BaseURL:         *baseURL,
		Participants:    *participants,
		Criteria:        *criteria,
		PerParticipant:  *per,
		Workers:         *workers,
		Timeout:         *timeout,
		SettleTimeout:   *settle,
		UpdateEveryNth:  *updateEvery,
		DeleteEveryNth:  *deleteEvery,
		SkipLiveChannel: *noLive,
		Seed:            *seed,
		OutputFile:      *outputFile,
		Verbose:         *verbose,
	}

	if _, err := simulate.Run(ctx, cfg); err != nil {
		os.Stderr.WriteString("Simulation failed: " + err.Error() + "\n")
		code := exitFailure
		if simulate.IsVerificationFailure(err) {
			code = exitVerification
		}
		cancel()
		stop()
		os.Exit(code)
	}
}
