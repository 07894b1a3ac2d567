// Command natscat is a thin command-line exerciser of the natswire public
// client API: publish, subscribe, and request against a NATS server.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/helmcode/natswire"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	configPath := os.Getenv("NATSCAT_CONFIG_PATH")
	if _, err := os.Stat(configPath); err != nil {
		configPath = ""
	}
	cfg, err := LoadConfig(configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := natswire.NewClientBuilder().
		WithName(cfg.NATS.Name).
		WithInboxPrefix(cfg.NATS.InboxPrefix).
		WithLogger(logger).
		Connect(ctx, cfg.NATS.URL)
	if err != nil {
		slog.Error("failed to connect to nats", "url", cfg.NATS.URL, "error", err)
		os.Exit(1)
	}
	defer client.Close()

	slog.Info("connected", "url", cfg.NATS.URL)

	switch os.Args[1] {
	case "pub":
		err = runPub(client, os.Args[2:])
	case "sub":
		err = runSub(ctx, client, os.Args[2:])
	case "request":
		err = runRequest(ctx, client, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: natscat <pub|sub|request> [flags]")
}

func runPub(client *natswire.Client, args []string) error {
	fs := flag.NewFlagSet("pub", flag.ExitOnError)
	subject := fs.String("subject", "", "subject to publish to")
	body := fs.String("data", "", "payload to publish")
	if err := fs.Parse(args); err != nil {
		return err
	}
	subj, err := natswire.NewSubject(*subject)
	if err != nil {
		return fmt.Errorf("invalid subject: %w", err)
	}
	if err := client.Publish(subj, []byte(*body)); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	slog.Info("published", "subject", *subject, "bytes", len(*body))
	return nil
}

func runSub(ctx context.Context, client *natswire.Client, args []string) error {
	fs := flag.NewFlagSet("sub", flag.ExitOnError)
	subject := fs.String("subject", "", "subject to subscribe to")
	queue := fs.String("queue", "", "optional queue group")
	if err := fs.Parse(args); err != nil {
		return err
	}
	subj, err := natswire.NewSubject(*subject)
	if err != nil {
		return fmt.Errorf("invalid subject: %w", err)
	}

	var sub *natswire.Subscription
	if *queue != "" {
		q, err := natswire.NewQueueGroup(*queue)
		if err != nil {
			return fmt.Errorf("invalid queue: %w", err)
		}
		sub, err = client.QueueSubscribe(subj, q)
		if err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
	} else {
		sub, err = client.Subscribe(subj)
		if err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
	}
	defer sub.Close()

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()

	for {
		msg, svrErr, ok := sub.Next()
		if !ok {
			return nil
		}
		if svrErr != nil {
			slog.Warn("subscription error", "error", svrErr)
			continue
		}
		fmt.Fprintf(w, "[%s] %s\n", msg.Subject.String(), msg.Data)
		w.Flush()

		select {
		case <-ctx.Done():
			return nil
		default:
		}
	}
}

func runRequest(ctx context.Context, client *natswire.Client, args []string) error {
	fs := flag.NewFlagSet("request", flag.ExitOnError)
	subject := fs.String("subject", "", "subject to request")
	body := fs.String("data", "", "request payload")
	timeout := fs.Duration("timeout", 5*time.Second, "request timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	subj, err := natswire.NewSubject(*subject)
	if err != nil {
		return fmt.Errorf("invalid subject: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	resp, err := client.Request(reqCtx, subj, []byte(*body))
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	fmt.Printf("%s\n", resp.Data)
	return nil
}
