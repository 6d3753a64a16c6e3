// Command ledgerctl is the operator CLI of the ledger
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/erp/ledger/internal/cli"
	"github.com/erp/ledger/internal/domain/shared"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := cli.NewRootCommand(cli.RuntimeLoader).ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}
	if de, ok := shared.AsDomainError(err); ok {
		fmt.Fprintf(os.Stderr, "error [%s]: %s\n", de.Code, de.Error())
		os.Exit(2)
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
