// Command sieve is a demo application for package taskqueue: it counts
// primes below -max by chunking the search range into fixed-size blocks
// and pushing one task per block onto a bounded queue drained by a worker
// pool, mirroring the original multi-threaded sieve-of-Eratosthenes demo
// this repository's task queue was built to exercise.
//
// Usage:
//
//	sieve -max 1000000 -workers 4 -chunk 10000
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/clabs/multicore-kernels/internal/taskqueue"
)

type block struct {
	lo, hi uint64 // [lo, hi)
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr *os.File) int {
	fs := flag.NewFlagSet("sieve", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var max, workers, chunk int
	fs.IntVar(&max, "max", 0, "upper bound (exclusive) for the prime search")
	fs.IntVar(&workers, "workers", 0, "number of worker goroutines")
	fs.IntVar(&chunk, "chunk", 0, "block size per task")

	if err := fs.Parse(args); err != nil {
		return 1
	}

	if max <= 1 {
		fmt.Fprintln(stderr, "Invalid argument: max should be greater than 1")
		return 1
	}
	if workers <= 0 {
		fmt.Fprintln(stderr, "Invalid argument: workers should be greater than 0")
		return 1
	}
	if chunk <= 0 {
		fmt.Fprintln(stderr, "Invalid argument: chunk should be greater than 0")
		return 1
	}

	var count atomic.Int64
	q, err := taskqueue.New[block](workers*4, func(b block) {
		count.Add(int64(countPrimesInBlock(b.lo, b.hi)))
	})
	if err != nil {
		fmt.Fprintf(stderr, "Invalid argument: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = q.Run(ctx, workers)
	}()

	for lo := uint64(0); lo < uint64(max); lo += uint64(chunk) {
		hi := lo + uint64(chunk)
		if hi > uint64(max) {
			hi = uint64(max)
		}
		b := block{lo: lo, hi: hi}
		for {
			if err := q.Push(b); err == nil {
				break
			}
		}
	}
	q.Terminate()
	wg.Wait()
	cancel()

	fmt.Fprintf(stdout, "%d\n", count.Load())
	return 0
}

func countPrimesInBlock(lo, hi uint64) int {
	n := 0
	for v := lo; v < hi; v++ {
		if isPrime(v) {
			n++
		}
	}
	return n
}

func isPrime(n uint64) bool {
	if n < 2 {
		return false
	}
	if n < 4 {
		return true
	}
	if n%2 == 0 {
		return false
	}
	for d := uint64(3); d*d <= n; d += 2 {
		if n%d == 0 {
			return false
		}
	}
	return true
}
