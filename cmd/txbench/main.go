// Command txbench drives the transactional record store (package
// txstore) with a configurable table size, thread count, and per-
// transaction read count for a fixed duration, then reports READ,
// UPDATE, transaction, and abort throughput.
//
// Usage:
//
//	txbench -t 1000 -n 8 -r 5 -d 5
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/clabs/multicore-kernels/internal/txstore"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr *os.File) int {
	fs := flag.NewFlagSet("txbench", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var tableSize, numThread, readNum, duration int
	fs.IntVar(&tableSize, "t", 0, "number of records per table (alias: --table_size)")
	fs.IntVar(&tableSize, "table_size", 0, "number of records per table")
	fs.IntVar(&numThread, "n", 0, "number of transaction threads (alias: --num_thread)")
	fs.IntVar(&numThread, "num_thread", 0, "number of transaction threads")
	fs.IntVar(&readNum, "r", 0, "shared-mode reads per transaction, in [0,10] (alias: --read_num)")
	fs.IntVar(&readNum, "read_num", 0, "shared-mode reads per transaction, in [0,10]")
	fs.IntVar(&duration, "d", 0, "duration in seconds (alias: --duration)")
	fs.IntVar(&duration, "duration", 0, "duration in seconds")

	if err := fs.Parse(args); err != nil {
		return 1
	}

	if tableSize <= 0 {
		fmt.Fprintln(stderr, "Invalid argument: table_size should be greater than 0")
		return 1
	}
	if numThread <= 0 {
		fmt.Fprintln(stderr, "Invalid argument: num_thread should be greater than 0")
		return 1
	}
	if readNum < 0 || readNum > 10 {
		fmt.Fprintln(stderr, "Invalid argument: read_num should be in [0, 10]")
		return 1
	}
	if duration <= 0 {
		fmt.Fprintln(stderr, "Invalid argument: duration should be greater than 0")
		return 1
	}

	logger := zerolog.New(stderr).With().Timestamp().Logger()

	store, err := txstore.NewStore(tableSize, readNum, txstore.WithStoreLogger(logger))
	if err != nil {
		fmt.Fprintf(stderr, "Invalid argument: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(duration)*time.Second)
	defer cancel()

	if err := store.Run(ctx, numThread); err != nil {
		logger.Error().Err(err).Msg("txbench: store run failed")
		return 1
	}

	stats := store.Stats()
	reads := stats.Reads.Load()
	updates := stats.Updates.Load()
	aborted := stats.Aborted.Load()
	trxCount := store.TxnCount()

	rate := func(count uint64) float64 { return float64(count) / float64(duration) }

	fmt.Fprintf(stdout, "READ throughput: %d READS and %f READS/sec\n", reads, rate(reads))
	fmt.Fprintf(stdout, "UPDATE throughput: %d UPDATES and %f UPDATES/sec\n", updates, rate(updates))
	fmt.Fprintf(stdout, "Transaction throughput: %d trx and %f trx/sec\n", trxCount, rate(trxCount))
	fmt.Fprintf(stdout, "Aborted transactions: %d aborts and %f aborts/sec\n", aborted, rate(aborted))
	return 0
}
