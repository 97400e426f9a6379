package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "cache commands",
}

func init() {
	cacheCmd.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true})
	cacheCmd.AddCommand(showCacheCmd())
	cacheCmd.AddCommand(clearCacheCmd())
	cacheCmd.AddCommand(listSnapshotsCmd())
	cacheCmd.AddCommand(saveSnapshotCmd())
}

func showCacheCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "show",
		Short: "list the cached records",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			client, err := newClient(ctx)
			if err != nil {
				logrus.Error(err)
				return
			}
			defer client.Close()

			records, err := client.Cache().Extract(ctx)
			if err != nil {
				logrus.Error(err)
				return
			}

			keys := make([]string, 0, len(records))
			for key := range records {
				keys = append(keys, key)
			}
			sort.Strings(keys)

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Key", "Fields"})
			for _, key := range keys {
				table.Append([]string{key, strconv.Itoa(len(records[key]))})
			}
			table.Render()
		},
	}

	return command
}

func clearCacheCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "clear",
		Short: "drop every cached record",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			client, err := newClient(ctx)
			if err != nil {
				logrus.Error(err)
				return
			}
			defer client.Close()

			size, err := client.Cache().Size(ctx)
			if err != nil {
				logrus.Error(err)
				return
			}
			if err := client.Cache().Reset(ctx); err != nil {
				logrus.Error(err)
				return
			}
			color.Green("removed %d records", size)
		},
	}

	return command
}

func listSnapshotsCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "snapshots",
		Short: "list the saved cache snapshots",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			client, err := newClient(ctx)
			if err != nil {
				logrus.Error(err)
				return
			}
			defer client.Close()

			if client.Snapshots() == nil {
				color.Red("snapshots are off, set LINKFEED_DB_DRIVER to sqlite or postgres")
				return
			}

			snapshots, err := client.Snapshots().List(ctx)
			if err != nil {
				logrus.Error(err)
				return
			}

			now := time.Now()
			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"ID", "Records", "Compression", "Taken"})
			for _, snapshot := range snapshots {
				table.Append([]string{
					snapshot.ID,
					strconv.Itoa(snapshot.Size),
					snapshot.Compression,
					humanize.RelTime(snapshot.CreatedAt, now, "ago", "from now"),
				})
			}
			table.Render()
		},
	}

	return command
}

func saveSnapshotCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "save",
		Short: "save a cache snapshot",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			client, err := newClient(ctx)
			if err != nil {
				logrus.Error(err)
				return
			}
			defer client.Close()

			if client.Snapshots() == nil {
				color.Red("snapshots are off, set LINKFEED_DB_DRIVER to sqlite or postgres")
				return
			}

			snapshot, err := client.Snapshots().Save(ctx)
			if err != nil {
				logrus.Error(err)
				return
			}
			fmt.Printf("saved %d records as %s\n", snapshot.Size, snapshot.ID)
		},
	}

	return command
}
