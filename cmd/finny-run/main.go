// finny-run loads a YAML machine description, starts it, and dispatches
// event names read line by line from stdin, printing the active
// configuration after each one. Hook references cannot be resolved from
// the command line, so the description must be hookless.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/asytsai/finny"
)

func main() {
	verbose := flag.Bool("v", false, "log every dispatch notification")
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [-v] <machine.yaml>\n", os.Args[0])
		os.Exit(2)
	}

	data, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, err := finny.ParseConfig(data)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	table, err := cfg.Build(nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	opts := []finny.Option{}
	if *verbose {
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
		opts = append(opts,
			finny.WithLogger(logger),
			finny.WithInspector(finny.NewSlogInspector(logger)),
		)
	}

	m := finny.New(table, nil, opts...)
	if err := m.Start(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer m.Stop()

	printStates(m, table)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name == "" {
			continue
		}
		evt := table.Event(name, nil)
		if evt.ID == finny.EventNone {
			fmt.Fprintf(os.Stderr, "unknown event %q\n", name)
			continue
		}
		out, err := m.Dispatch(evt)
		if err != nil {
			fmt.Fprintf(os.Stderr, "dispatch %q: %v\n", name, err)
			continue
		}
		if out.Unhandled > 0 {
			fmt.Fprintf(os.Stderr, "event %q not handled in the current configuration\n", name)
		}
		printStates(m, table)
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func printStates(m *finny.Dispatcher, table *finny.TransitionTable) {
	parts := make([]string, 0, table.Regions())
	for i := 0; i < table.Regions(); i++ {
		region := table.Region(finny.RegionID(i))
		parts = append(parts, fmt.Sprintf("%s=%s", region.Name, m.ActiveName(region.ID)))
	}
	fmt.Println(strings.Join(parts, " "))
}
