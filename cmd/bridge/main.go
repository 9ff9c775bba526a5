// The bridge exports transactions from a snapshot file to the budgeting
// backend: it maps the selection into account groups and delivers them in a
// single POST, then prints the resulting status line.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/sayeni/butty/internal/exportsync"
	"github.com/sayeni/butty/internal/logger"
)

func main() {
	var (
		backendURL = flag.String("backend-url", "http://localhost:8080/transactions", "backend ingest endpoint")
		input      = flag.String("input", "", "path to the JSON snapshot to export")
		selectIDs  = flag.String("select", "", "comma-separated transaction ids to export (default: all)")
		level      = flag.String("log-level", "info", "log level")
	)
	flag.Parse()

	log := logger.New(*level)

	if *input == "" {
		log.Fatal().Msg("-input is required")
	}

	ctx := logger.WithContext(context.Background(), log)

	source := exportsync.NewFileSource(*input)
	transactions, err := source.Transactions(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load snapshot")
	}

	selection := transactions
	if *selectIDs != "" {
		wanted := make(map[string]struct{})
		for _, id := range strings.Split(*selectIDs, ",") {
			wanted[strings.TrimSpace(id)] = struct{}{}
		}
		selection = selection[:0:0]
		for _, tx := range transactions {
			if _, ok := wanted[tx.ID]; ok {
				selection = append(selection, tx)
			}
		}
	}

	dispatcher := exportsync.NewDispatcher(source, *backendURL, nil)
	err = dispatcher.Sync(ctx, selection)

	if status := dispatcher.Status(); status != "" {
		fmt.Println(status)
	} else {
		fmt.Println("Nothing selected")
	}

	if err != nil {
		os.Exit(1)
	}
}
