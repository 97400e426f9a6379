package cmd

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/emrgen/linkfeed/internal/view"
	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

func init() {
	rootCmd.AddCommand(feedCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(postCmd())
	rootCmd.AddCommand(voteCmd())
	rootCmd.AddCommand(watchCmd())
}

func feedCmd() *cobra.Command {
	var refresh bool

	command := &cobra.Command{
		Use:     "feed",
		Short:   "list the links",
		Long:    `list the links, from the local cache when it holds them`,
		Example: "linkfeed feed -r",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			client, err := newClient(ctx)
			if err != nil {
				logrus.Error(err)
				return
			}
			defer client.Close()

			view.Fetching(os.Stdout)
			load := client.Links().Feed
			if refresh {
				load = client.Links().Refresh
			}
			feed, err := load(ctx)
			if err != nil {
				logrus.Debug(err)
				view.Error(os.Stdout)
				return
			}
			view.Feed(os.Stdout, feed, time.Now())
		},
	}

	command.Flags().BoolVarP(&refresh, "refresh", "r", false, "fetch from the server even when cached")

	return command
}

func searchCmd() *cobra.Command {
	var filter string
	var required = []string{"filter"}

	command := &cobra.Command{
		Use:     "search",
		Short:   "search the links",
		Long:    `list the links whose description or url contains the filter`,
		Example: "linkfeed search -f <text>",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			ctx := context.Background()
			client, err := newClient(ctx)
			if err != nil {
				logrus.Error(err)
				return
			}
			defer client.Close()

			links, err := client.Links().Search(ctx, filter)
			if err != nil {
				logrus.Debug(err)
				view.Error(os.Stdout)
				return
			}
			view.Links(os.Stdout, links, time.Now())
		},
	}

	command.Flags().StringVarP(&filter, "filter", "f", "", "search text (required)")

	return command
}

func postCmd() *cobra.Command {
	var url string
	var description string
	var required = []string{"url", "description"}

	command := &cobra.Command{
		Use:     "post",
		Short:   "submit a link",
		Example: "linkfeed post -u <url> -d <description>",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			ctx := context.Background()
			client, err := newClient(ctx)
			if err != nil {
				logrus.Error(err)
				return
			}
			defer client.Close()

			link, err := client.Links().Post(ctx, url, description)
			if err != nil {
				logrus.Error(err)
				return
			}
			color.Green("link posted")
			printField("ID", link.ID)
		},
	}

	command.Flags().StringVarP(&url, "url", "u", "", "link url (required)")
	command.Flags().StringVarP(&description, "description", "d", "", "link description (required)")
	command.Flags().SortFlags = false

	return command
}

func voteCmd() *cobra.Command {
	var linkID string
	var required = []string{"link-id"}

	command := &cobra.Command{
		Use:     "vote",
		Short:   "upvote a link",
		Example: "linkfeed vote -l <link-id>",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			ctx := context.Background()
			client, err := newClient(ctx)
			if err != nil {
				logrus.Error(err)
				return
			}
			defer client.Close()

			if _, err := client.Links().Vote(ctx, linkID); err != nil {
				logrus.Error(err)
				return
			}
			color.Green("voted")

			// the vote was patched into the cached feed
			feed, err := client.Links().Feed(ctx)
			if err != nil {
				logrus.Debug(err)
				return
			}
			view.Feed(os.Stdout, feed, time.Now())
		},
	}

	command.Flags().StringVarP(&linkID, "link-id", "l", "", "link id (required)")

	return command
}

func watchCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "watch",
		Short: "follow the feed",
		Long:  `list the links and redraw them as links are posted and voted on`,
		Run: func(cmd *cobra.Command, args []string) {
			ctx, stop := signal.NotifyContext(context.Background(), unix.SIGTERM, unix.SIGINT)
			defer stop()

			client, err := newClient(ctx)
			if err != nil {
				logrus.Error(err)
				return
			}
			defer client.Close()

			if err := client.StartSync(); err != nil {
				logrus.Error(err)
				return
			}

			w, err := client.Links().Watch(ctx)
			if err != nil {
				logrus.Error(err)
				return
			}
			defer w.Close()

			logrus.Infof("Press Ctrl+C to stop watching")
			for {
				select {
				case <-ctx.Done():
					return
				case state, ok := <-w.States():
					if !ok {
						return
					}
					if state.Err != nil {
						logrus.Debug(state.Err)
					}
					view.FeedState(os.Stdout, state.Loading, state.Err, state.Feed, time.Now())
				}
			}
		},
	}

	return command
}
