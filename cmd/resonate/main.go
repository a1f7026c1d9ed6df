package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/itsdarik/resonate"
)

var (
	config   = "resonate.toml"
	verbose  = false
	seed     int64
	endpoint = ""
	list     = false
)

func init() {
	pflag.StringVarP(&config, "config", "c", config, "configuration file")
	pflag.BoolVarP(&verbose, "verbose", "v", verbose, "verbose output")
	pflag.Int64VarP(&seed, "seed", "s", seed, "random seed, overrides the configuration")
	pflag.StringVarP(&endpoint, "endpoint", "e", endpoint, "streaming endpoint as host:port, defaults to the bridge")
	pflag.BoolVarP(&list, "list", "l", list, "list shows and exit")
}

func main() {
	pflag.Parse()

	logLevel := slog.LevelWarn
	if verbose {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := readConfig()
	if err != nil {
		return err
	}

	cfg.ApplyEnv(os.Getenv)
	if seed != 0 {
		cfg.Seed = seed
	}

	c, err := resonate.NewController(cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to create controller: %w", err)
	}

	if list {
		for _, name := range c.Shows() {
			fmt.Println(name)
		}
		return nil
	}

	shows := pflag.Args()
	if len(shows) == 0 {
		name, err := pickShow(os.Stdin, os.Stdout, c.Shows())
		if err != nil {
			return err
		}
		shows = []string{name}
	}

	announceSeed(os.Stderr, c.Seed())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := c.Open(ctx, endpoint); err != nil {
		return fmt.Errorf("failed to start streaming: %w", err)
	}
	defer c.Stop()

	for _, name := range shows {
		if err := c.BeginShow(ctx, name); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("show %s failed: %w", name, err)
		}
	}

	if err := c.Stop(); err != nil {
		return fmt.Errorf("streaming failed: %w", err)
	}

	stats := c.Stats()
	slog.Info(
		"done",
		"sent", stats.Sent,
		"failed", stats.Failed)

	return nil
}

func readConfig() (*resonate.Config, error) {
	f, err := os.Open(config)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	return resonate.ParseConfig(f)
}

// announceSeed prints the random seed regardless of the log level so that any
// run can be replayed.
func announceSeed(w io.Writer, seed int64) {
	fmt.Fprintf(w, "random seed %d (replay with --seed %d)\n", seed, seed)
}

// pickShow prompts for a show until a valid choice is read.
func pickShow(r io.Reader, w io.Writer, names []string) (string, error) {
	scanner := bufio.NewScanner(r)
	for {
		fmt.Fprintln(w, "Shows:")
		for i, name := range names {
			fmt.Fprintf(w, "  %d) %s\n", i+1, name)
		}
		fmt.Fprint(w, "Pick a show: ")

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return "", err
			}
			return "", errors.New("no show picked")
		}

		choice := strings.TrimSpace(scanner.Text())
		if i, err := strconv.Atoi(choice); err == nil && i >= 1 && i <= len(names) {
			return names[i-1], nil
		}
		for _, name := range names {
			if name == choice {
				return name, nil
			}
		}

		fmt.Fprintf(w, "Unknown show %q.\n", choice)
	}
}
