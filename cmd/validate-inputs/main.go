package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/marcelsud/tower-poller/inputs"
	"github.com/marcelsud/tower-poller/tower"
	"github.com/rs/zerolog"
)

/* validate-inputs - Standalone CLI tool to validate inputs.yaml
 * Usage: go run cmd/validate-inputs/main.go [--check] [inputs.yaml]
 * --check also calls each Tower server to verify host and credentials
 * Exit codes: 0 = valid, 1 = invalid
 */

func main() {
	check := flag.Bool("check", false, "contact each Tower server to verify host and credentials")
	timeout := flag.Duration("timeout", 15*time.Second, "timeout for each --check request")
	flag.Parse()

	inputsFile := "inputs.yaml"
	if flag.NArg() > 0 {
		inputsFile = flag.Arg(0)
	}

	fmt.Printf("Validating inputs file: %s\n", inputsFile)
	fmt.Println(strings.Repeat("-", 50))

	loader := inputs.NewLoader()
	loadErr := loader.Load(inputsFile)
	loaded := loader.List()
	if loadErr != nil {
		fmt.Fprintf(os.Stderr, "❌ VALIDATION FAILED\n\n")
		for _, err := range unjoin(loadErr) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		if len(loaded) == 0 {
			os.Exit(1)
		}
		fmt.Println()
	} else {
		fmt.Printf("✓ VALIDATION PASSED\n\n")
	}

	fmt.Printf("Loaded %d input(s):\n", len(loaded))
	failed := loadErr != nil
	for i, in := range loaded {
		fmt.Printf("\n%d. Input: %s\n", i+1, in.Name)
		fmt.Printf("   Host:        %s\n", in.Host)
		fmt.Printf("   Event type:  %s\n", in.Category)
		fmt.Printf("   Schedule:    %s\n", in.Schedule)
		fmt.Printf("   Verify SSL:  %t\n", in.VerifySSL)
		fmt.Printf("   Log level:   %s\n", in.LogLevel)
		if len(in.ExtraQueryParams) > 0 {
			fmt.Printf("   Extra query: %s\n", in.ExtraQueryParams.Encode())
		}

		if !*check {
			continue
		}
		client, err := tower.NewClient(in, zerolog.Nop())
		if err != nil {
			fmt.Printf("   ❌ Check:    %v\n", err)
			failed = true
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		version, err := client.Validate(ctx)
		cancel()
		if err != nil {
			fmt.Printf("   ❌ Check:    %v\n", err)
			failed = true
			continue
		}
		fmt.Printf("   ✓ Check:     Tower %s\n", version)
	}

	if failed {
		os.Exit(1)
	}
	fmt.Printf("\n✓ All inputs are valid!\n")
}

// unjoin splits an errors.Join result into its parts
func unjoin(err error) []error {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		return joined.Unwrap()
	}
	return []error{err}
}
