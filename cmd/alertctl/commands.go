package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"portfolioalerts/internal/alertlist"
	"portfolioalerts/internal/editor"
	"portfolioalerts/internal/notifycenter"
	"portfolioalerts/internal/portfolio"

	"github.com/pkg/errors"
)

var errUsage = errors.New("invalid arguments, run alertctl -h")

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "coins":
		return a.coins(ctx)
	case "set":
		return a.set(ctx, rest)
	case "alerts":
		return a.alerts(ctx)
	case "edit":
		return a.edit(ctx, rest)
	case "delete":
		return a.deleteAlert(ctx, rest)
	case "notifications":
		return a.notifications(ctx)
	case "read":
		return a.read(ctx, rest)
	case "count":
		return a.count(ctx)
	case "watch":
		return a.watch(ctx)
	case "asset":
		return a.asset(ctx, rest)
	case "upload":
		return a.upload(ctx, rest)
	case "logout":
		msg, redirect, err := portfolio.New(a.api, a.term, a.log).Logout(ctx)
		fmt.Println(msg)
		if err == nil {
			fmt.Println("->", redirect)
		}
		return err
	}
	return errUsage
}

func parseID(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, errUsage
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Errorf("invalid id %q", args[0])
	}
	return id, nil
}

func (a *app) coins(ctx context.Context) error {
	ed := editor.New(a.api, a.log)
	defer ed.Close()

	forms, err := ed.Open(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tABBREVIATION")
	for _, f := range forms {
		fmt.Fprintf(w, "%s\t%s\n", f.Coin.Name, f.Coin.Abbreviation)
	}
	return w.Flush()
}

// set takes ABBR:direction:threshold triples and saves them in one batch.
func (a *app) set(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	ed := editor.New(a.api, a.log)
	defer ed.Close()

	if _, err := ed.Open(ctx); err != nil {
		return err
	}
	for _, arg := range args {
		parts := strings.Split(arg, ":")
		if len(parts) != 3 {
			return errors.Errorf("expected ABBR:more|less:threshold, got %q", arg)
		}
		if err := ed.Select(parts[0], parts[1]); err != nil {
			return err
		}
		if err := ed.SetValue(parts[0], parts[2]); err != nil {
			return err
		}
	}

	res, err := ed.Save(ctx)
	fmt.Println(res.Message)
	return err
}

func (a *app) alertList() *alertlist.Manager {
	return alertlist.New(a.api, a.term, a.term, a.log)
}

func printAlerts(state alertlist.State) {
	switch {
	case state.Err != "":
		fmt.Println("!", state.Err)
	case state.Empty != "":
		fmt.Println(state.Empty)
	default:
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tCONDITION\tTHRESHOLD\tCREATED")
		for _, r := range state.Rows {
			fmt.Fprintf(w, "%d\t%s (%s)\t%s\t%s\t%s\n",
				r.ID, r.Name, r.Cryptocurrency, r.DirectionLong, r.Threshold, r.Created)
		}
		w.Flush()
	}
}

func (a *app) alerts(ctx context.Context) error {
	printAlerts(a.alertList().Load(ctx))
	return nil
}

func (a *app) edit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("edit", flag.ContinueOnError)
	id := fs.Int64("id", 0, "Alert id")
	name := fs.String("name", "", "New name")
	alertType := fs.String("type", "", "New direction: more or less")
	threshold := fs.String("threshold", "", "New threshold")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id <= 0 {
		return errUsage
	}

	list := a.alertList()
	form, err := list.BeginEdit(ctx, *id)
	if err != nil {
		return err
	}
	if *name != "" {
		form.Name = *name
	}
	if *alertType != "" {
		form.AlertType = *alertType
	}
	if *threshold != "" {
		form.Threshold = *threshold
	}
	if err := list.SubmitEdit(ctx, *form); err != nil {
		return err
	}
	printAlerts(list.State())
	return nil
}

func (a *app) deleteAlert(ctx context.Context, args []string) error {
	id, err := parseID(args)
	if err != nil {
		return err
	}
	list := a.alertList()
	deleted, err := list.Delete(ctx, id)
	if err != nil || !deleted {
		return err
	}
	printAlerts(list.State())
	return nil
}

func (a *app) center() *notifycenter.Center {
	return notifycenter.New(a.api, a.log, time.Local)
}

func printBadge(b notifycenter.Badge) {
	if !b.Visible {
		fmt.Println("no unread notifications")
		return
	}
	fmt.Printf("[%s] unread\n", b.Text)
}

func (a *app) notifications(ctx context.Context) error {
	items, err := a.center().Open(ctx)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("No notifications.")
		return nil
	}
	for _, it := range items {
		marker := " "
		if it.Unread {
			marker = "*"
		}
		fmt.Printf("%s %d  %s  %s\n", marker, it.ID, it.Time, it.Text)
	}
	return nil
}

func (a *app) read(ctx context.Context, args []string) error {
	id, err := parseID(args)
	if err != nil {
		return err
	}
	c := a.center()
	if err := c.MarkRead(ctx, id); err != nil {
		return err
	}
	printBadge(c.Badge())
	return nil
}

func (a *app) count(ctx context.Context) error {
	b, err := a.center().RefreshCount(ctx)
	if err != nil {
		return err
	}
	printBadge(b)
	return nil
}

// watch polls the badge and also follows the push stream until interrupted.
func (a *app) watch(ctx context.Context) error {
	c := a.center()
	poller := c.StartPolling(ctx, a.cfg.Client.PollInterval)
	defer poller.Stop()

	go func() {
		if err := c.Watch(ctx, a.api); err != nil && ctx.Err() == nil {
			a.log.Sugar().Warnf("notification stream stopped: %v", err)
		}
	}()

	var last notifycenter.Badge
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if b := c.Badge(); b != last {
				last = b
				printBadge(b)
			}
		}
	}
}

func (a *app) asset(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	pm := portfolio.New(a.api, a.term, a.log)

	var (
		msg string
		err error
	)
	switch sub, rest := args[0], args[1:]; sub {
	case "add":
		if len(rest) != 3 {
			return errUsage
		}
		msg, err = pm.Add(ctx, rest[0], rest[1], rest[2])
	case "update":
		if len(rest) < 2 {
			return errUsage
		}
		id, perr := parseID(rest[:1])
		if perr != nil {
			return perr
		}
		name := ""
		if len(rest) > 2 {
			name = rest[2]
		}
		msg, err = pm.Update(ctx, id, name, rest[1])
	case "delete":
		id, perr := parseID(rest)
		if perr != nil {
			return perr
		}
		msg, err = pm.Delete(ctx, id)
	case "search":
		found, serr := pm.Search(ctx, strings.Join(rest, " "))
		if serr != nil {
			return serr
		}
		for _, m := range found {
			fmt.Printf("%d\t%s\t%v\n", m.ID, m.AssetName, m.Amount)
		}
		return nil
	default:
		return errUsage
	}

	if msg != "" {
		fmt.Println(msg)
	}
	return err
}

func (a *app) upload(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	f, err := os.Open(args[0])
	if err != nil {
		return errors.Wrap(err, "open csv")
	}
	defer f.Close()

	msg, err := portfolio.New(a.api, a.term, a.log).UploadCSV(ctx, args[0], f)
	fmt.Println(msg)
	return err
}
