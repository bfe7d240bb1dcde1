package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"announcement_relay/internal/rpc"
)

type options struct {
	addr    string
	timeout time.Duration
	json    bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "relayctl",
		Short: "Client for the announcement relay",
		Long: `relayctl calls the announcement relay's RPC endpoints.

Example usage:
  relayctl hello                                     # Check that the relay answers
  relayctl list --after 2024-01-01T00:00:00Z         # Announcements published after a date
  relayctl new                                       # Run a sync and print what was new
  relayctl subscribe URL --server S --channel C      # Subscribe a channel to a feed`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.addr, "addr", "http://localhost:50051", "relay base URL")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "request timeout")
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "output as JSON")

	root.AddCommand(
		newHelloCmd(opts),
		newListCmd(opts),
		newNewCmd(opts),
		newSubscribeCmd(opts),
	)

	return root
}

func (o *options) client() *rpc.Client {
	return rpc.NewClient(http.DefaultClient, o.addr)
}

// printFeed writes one streamed feed either as a JSON line or as a short
// human-readable block.
func (o *options) printFeed(w io.Writer, feed *rpc.FeedReply) error {
	if o.json {
		return json.NewEncoder(w).Encode(feed)
	}

	title := feed.Title
	if title == "" {
		title = feed.CanonicalID
	}
	fmt.Fprintf(w, "[%d] %s: %d announcement(s)\n", feed.ID, title, len(feed.Announcements))
	for _, a := range feed.Announcements {
		published := "-"
		if a.Published != nil {
			published = a.Published.AsTime().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "  %s  %s  %s\n", published, a.Title, a.Link)
	}
	for _, s := range feed.Subscribers {
		fmt.Fprintf(w, "  -> %s/%s\n", s.ServerID, s.ChannelID)
	}
	return nil
}
