// Command alertctl drives the alert editor, the alert list and the
// notification center from a terminal.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"portfolioalerts/internal/client"
	"portfolioalerts/internal/config"
	"portfolioalerts/internal/logger"

	"go.uber.org/zap"
)

const usage = `usage: alertctl [flags] <command> [args]

commands:
  coins                               list owned coins
  set <ABBR>:<more|less>:<threshold>  set one or more alerts
  alerts                              list active alerts
  edit -id N [-name S] [-type T] [-threshold X]
  delete <id>                         delete an alert
  notifications                       list notifications
  read <id>                           mark a notification as read
  count                               show the unread badge
  watch                               follow the unread badge
  asset add <name> <abbr> <amount>
  asset update <id> <amount> [name]
  asset delete <id>
  asset search <query>
  upload <file.csv>
  logout
`

type app struct {
	api  *client.Client
	term *terminal
	log  *zap.Logger
	cfg  *config.Config
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	baseURL := flag.String("url", cfg.Client.BaseURL, "Alerts API base URL")
	user := flag.String("user", cfg.Client.UserID, "User id sent as "+client.UserHeader)
	yes := flag.Bool("yes", false, "Answer yes to confirmations")
	verbose := flag.Bool("v", false, "Log requests to stderr")
	flag.Usage = func() { fmt.Fprint(flag.CommandLine.Output(), usage) }
	flag.Parse()

	log := zap.NewNop()
	if *verbose {
		log = logger.New(logger.Options{Level: "debug", Console: true})
	}
	defer log.Sync()

	api, err := client.New(*baseURL,
		client.WithUserID(*user),
		client.WithLogger(log),
		client.WithHTTPClient(&http.Client{Timeout: cfg.Client.Timeout}),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{api: api, term: newTerminal(os.Stdin, os.Stdout, *yes), log: log, cfg: cfg}
	if err := a.run(ctx, flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
