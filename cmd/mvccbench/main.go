// Command mvccbench drives the MVCC engine (package mvcc) with a
// configurable number of participants for a fixed duration and reports
// aggregate throughput and fairness.
//
// Usage:
//
//	mvccbench -n 8 -d 5 [-v]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clabs/multicore-kernels/internal/mvcc"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr *os.File) int {
	fs := flag.NewFlagSet("mvccbench", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var numThread int
	var duration int
	var verify bool
	fs.IntVar(&numThread, "n", 0, "number of participant threads (alias: --num_thread)")
	fs.IntVar(&numThread, "num_thread", 0, "number of participant threads")
	fs.IntVar(&duration, "d", 0, "duration in seconds (alias: --duration)")
	fs.IntVar(&duration, "duration", 0, "duration in seconds")
	fs.BoolVar(&verify, "v", false, "enable cross-participant invariant verification (alias: --verify)")
	fs.BoolVar(&verify, "verify", false, "enable cross-participant invariant verification")

	if err := fs.Parse(args); err != nil {
		return 1
	}

	if numThread <= 0 {
		fmt.Fprintln(stderr, "Invalid argument: num_thread should be greater than 0")
		return 1
	}
	if duration <= 0 {
		fmt.Fprintln(stderr, "Invalid argument: duration should be greater than 0")
		return 1
	}

	runID := uuid.New()
	logger := zerolog.New(stderr).With().Timestamp().Str("run_id", runID.String()).Logger()

	engine, err := mvcc.NewEngine(numThread, mvcc.WithVerify(verify), mvcc.WithLogger(logger))
	if err != nil {
		fmt.Fprintf(stderr, "Invalid argument: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(duration)*time.Second)
	defer cancel()

	if err := engine.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("mvccbench: engine run failed")
		return 1
	}

	var total uint64
	for i := 0; i < engine.N(); i++ {
		total += engine.Participant(i).Updates()
	}
	throughput := float64(total) / float64(duration)
	fairness := mvccFairness(engine)

	fmt.Fprintf(stdout, "%f\n", throughput)
	fmt.Fprintf(stdout, "%f\n", fairness)
	return 0
}

func mvccFairness(e *mvcc.Engine) float64 {
	participants := make([]*mvcc.Participant, e.N())
	for i := 0; i < e.N(); i++ {
		participants[i] = e.Participant(i)
	}
	return mvcc.Fairness(participants)
}
