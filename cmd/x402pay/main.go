// Command x402pay pays for HTTP resources protected by x402 on Solana.
//
//	x402pay pay -config x402pay.yaml https://api.example.com/report
//	x402pay supported -facilitator https://facilitator.payai.network
//	x402pay inspect <X-PAYMENT header or base64 transaction>
//	x402pay serve -pay-to <address> -amount 1000
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "pay":
		err = runPay(ctx, os.Args[2:])
	case "supported":
		err = runSupported(ctx, os.Args[2:])
	case "inspect":
		err = runInspect(os.Args[2:])
	case "serve":
		err = runServe(ctx, os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "x402pay:", err)
		var exit exitError
		if errors.As(err, &exit) {
			os.Exit(int(exit))
		}
		os.Exit(1)
	}
}

// exitError carries a specific exit status without a message.
type exitError int

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

func printUsage() {
	fmt.Println("x402pay - pay for x402-protected HTTP resources with Solana")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  x402pay pay [flags] <url>        - Request a URL, paying if the server answers 402")
	fmt.Println("  x402pay supported [flags]        - List the payment kinds a facilitator supports")
	fmt.Println("  x402pay inspect <value>          - Decode an X-PAYMENT header or base64 transaction")
	fmt.Println("  x402pay serve [flags]            - Run a demo server with a paywalled endpoint")
	fmt.Println()
	fmt.Println("Run 'x402pay <command> -h' for more information.")
}
