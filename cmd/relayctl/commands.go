package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"announcement_relay/internal/rpc"
)

func newHelloCmd(opts *options) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "hello",
		Short: "Check that the relay is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			msg, err := opts.client().Hello(ctx, name)
			if err != nil {
				return fmt.Errorf("hello: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "relayctl", "name to greet")
	return cmd
}

func newListCmd(opts *options) *cobra.Command {
	var after string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List announcements of every tracked feed",
		Long: `List announcements of every tracked feed without advancing checkpoints.

Examples:
  relayctl list
  relayctl list --after 2024-01-01T00:00:00+02:00`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var cutoff *time.Time
			if after != "" {
				t, err := time.Parse(time.RFC3339, after)
				if err != nil {
					return fmt.Errorf("--after must be RFC3339: %w", err)
				}
				cutoff = &t
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			out := cmd.OutOrStdout()
			return opts.client().ListFeeds(ctx, cutoff, func(feed *rpc.FeedReply) error {
				return opts.printFeed(out, feed)
			})
		},
	}

	cmd.Flags().StringVar(&after, "after", "", "only announcements published after this RFC3339 time")
	return cmd
}

func newNewCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "new",
		Short: "Run a sync and print new announcements",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			out := cmd.OutOrStdout()
			start := time.Now()
			count := 0

			err := opts.client().NewAnnouncements(ctx, func(feed *rpc.FeedReply) error {
				count += len(feed.Announcements)
				return opts.printFeed(out, feed)
			})
			if err != nil {
				return fmt.Errorf("new announcements: %w", err)
			}

			if !opts.json {
				fmt.Fprintf(out, "%d new announcements in %s\n", count, time.Since(start).Round(time.Millisecond))
			}
			return nil
		},
	}
}

func newSubscribeCmd(opts *options) *cobra.Command {
	var (
		server  string
		channel string
		file    string
	)

	cmd := &cobra.Command{
		Use:   "subscribe [URL...]",
		Short: "Subscribe a channel to one or more feeds",
		Long: `Subscribe a channel to one or more feeds.

Examples:
  relayctl subscribe https://canvas.example/feeds/announcements/course_1.atom --server 1 --channel 2
  relayctl subscribe --file feeds.txt --server 1 --channel 2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			urls := args
			if file != "" {
				lines, err := readLines(file)
				if err != nil {
					return err
				}
				urls = append(urls, lines...)
			}
			if len(urls) == 0 {
				return fmt.Errorf("no feed urls given")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			client := opts.client()
			sub := rpc.Subscriber{ServerID: server, ChannelID: channel}
			out := cmd.OutOrStdout()

			failed := 0
			for _, u := range urls {
				resp, err := client.Subscribe(ctx, u, sub)
				if err != nil {
					return fmt.Errorf("subscribe %s: %w", u, err)
				}
				if !resp.Success {
					failed++
				}
				fmt.Fprintf(out, "%s: %s\n", u, resp.Message)
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d subscriptions failed", failed, len(urls))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "subscriber server id")
	cmd.Flags().StringVar(&channel, "channel", "", "subscriber channel id")
	cmd.Flags().StringVar(&file, "file", "", "file with one feed url per line")
	_ = cmd.MarkFlagRequired("server")
	_ = cmd.MarkFlagRequired("channel")

	return cmd
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open feed list: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read feed list: %w", err)
	}
	return lines, nil
}
