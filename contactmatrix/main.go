// Copyright 2020 Daniel Erat <dan@erat.org>.
// All rights reserved.

// contactmatrix imputes ages in social-contact survey data and builds
// age-stratified contact matrices.
package main

import (
	"context"
	"os"
	"os/signal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCmd(os.Stderr).ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
