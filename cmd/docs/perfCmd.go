package docs

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/dClient/cmd/util"
	"github.com/ValentinKolb/dClient/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for a cluster",
		Long:    "Runs parallel benchmarks of the document operations through the request executor and prints the executor metrics afterwards",
		RunE:    run,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix        = "__test"
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfSkip             = make([]string, 0)
)

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. put,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the value for the put-large test should be (in KB)"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different documents to use for the tests"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
	key = "metrics"
	perfTestCmd.Flags().Bool(key, true, util.WrapString("Print the executor metrics after the benchmarks"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = viper.GetInt("keys")
	perfNumThreads = viper.GetInt("threads")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	if perfKeySpread <= 0 {
		return fmt.Errorf("keys must be > 0, got %d", perfKeySpread)
	}
	return nil
}

// benchmark is one named benchmark, setup runs before the timer starts
type benchmark struct {
	name  string
	setup bool
	op    func(ctx context.Context, key string, counter int) error
}

func run(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	conf := rpcExecutor.Config()

	fmt.Println("Performance testing tool for clusters")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(conf.String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	fmt.Println("staring tests...")

	small := json.RawMessage(`"test"`)
	large := largeValue(perfLargeValueSizeKB)

	benchmarks := []benchmark{
		{name: "put", op: func(ctx context.Context, key string, _ int) error {
			_, err := rpcStore.Put(ctx, key, small, "")
			return err
		}},
		{name: "put-large", op: func(ctx context.Context, key string, _ int) error {
			_, err := rpcStore.Put(ctx, key, large, "")
			return err
		}},
		{name: "get", setup: true, op: func(ctx context.Context, key string, _ int) error {
			_, _, err := rpcStore.Get(ctx, key)
			return err
		}},
		{name: "has", setup: true, op: func(ctx context.Context, key string, _ int) error {
			_, err := rpcStore.Has(ctx, key)
			return err
		}},
		{name: "has-not", op: func(ctx context.Context, key string, _ int) error {
			_, err := rpcStore.Has(ctx, key+"-missing")
			return err
		}},
		{name: "delete", setup: true, op: func(ctx context.Context, key string, _ int) error {
			_, err := rpcStore.Delete(ctx, key, "")
			return err
		}},
		{name: "mixed", setup: true, op: func(ctx context.Context, key string, counter int) error {
			var err error
			switch counter % 4 {
			case 0: // put
				_, err = rpcStore.Put(ctx, key, small, "")
			case 1: // get
				_, _, err = rpcStore.Get(ctx, key)
			case 2: // delete
				_, err = rpcStore.Delete(ctx, key, "")
			case 3: // has
				_, err = rpcStore.Has(ctx, key)
			}
			return err
		}},
	}

	// Create results map
	results := make(map[string]testing.BenchmarkResult)
	for _, bm := range benchmarks {
		result := testing.Benchmark(func(b *testing.B) {
			if shouldSkip(bm.name) {
				return
			}

			// prepare keys
			getKey, iter := getKeys(bm.name)
			if bm.setup {
				iter(func(k string) {
					if _, err := rpcStore.Put(ctx, k, small, ""); err != nil {
						log.Printf("(%s) - error putting document: %v\n", bm.name, err)
					}
				})
			}

			// cleanup
			b.Cleanup(func() {
				iter(func(k string) {
					if _, err := rpcStore.Delete(ctx, k, ""); err != nil {
						log.Printf("(%s) - error deleting document: %v\n", bm.name, err)
					}
				})
			})

			b.SetParallelism(perfNumThreads)
			b.ResetTimer()

			b.RunParallel(func(pb *testing.PB) {
				counter := 0
				for pb.Next() {
					if err := bm.op(ctx, getKey(counter), counter); err != nil {
						log.Printf("(%s) - error: %v\n", bm.name, err)
					}
					counter++
				}
			})
		})
		results[bm.name] = result
		printResult(bm.name, result)
	}

	if viper.GetBool("metrics") {
		fmt.Println()
		fmt.Println("Executor metrics:")
		rpcExecutor.WriteMetrics(os.Stdout)
	}

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, conf); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	for _, skip := range perfSkip {
		if test == strings.TrimSpace(skip) {
			return true
		}
	}
	return false
}

// largeValue returns a json string of about the given size
func largeValue(sizeKB int) json.RawMessage {
	value, _ := json.Marshal(strings.Repeat("x", sizeKB*1024))
	return value
}

// creates an array of test keys and functions to work with them
func getKeys(prefix string) (func(int) string, func(func(string))) {
	keys := make([]string, perfKeySpread)
	for i := 0; i < perfKeySpread; i++ {
		keys[i] = fmt.Sprintf("%s/%s-%d", perfKeyPrefix, prefix, i)
	}

	// Function to get a key by index (with wraparound)
	getKey := func(i int) string {
		return keys[i%perfKeySpread]
	}

	// Function to iterate over all keys and apply a function to each
	iterateKeys := func(fn func(string)) {
		for _, key := range keys {
			fn(key)
		}
	}

	return getKey, iterateKeys
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult, config common.ClientConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"Urls", "Database", "ReadBalance", "RequestTimeout", "MaxRetryAttempts", "CacheDisabled",
		"Threads", "LargeValueSizeKB", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for test, result := range results {
		var nsPerOp float64
		var opsPerSec float64
		skipped := "true"

		if result.NsPerOp() != 0 {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			strings.Join(config.Urls, ";"),
			config.Database,
			config.ReadBalanceBehavior.String(),
			config.RequestTimeout.String(),
			strconv.Itoa(config.MaxRetryAttempts),
			strconv.FormatBool(config.Cache.Disabled),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
