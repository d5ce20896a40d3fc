package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/danmuck/clowdctl/internal/protocol/session"
	"github.com/danmuck/clowdctl/internal/upload"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newListCmd(a *app) *cobra.Command {
	var offset, count int
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List your uploads, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := a.client(upload.NopSink{})
			if err != nil {
				return err
			}
			defer client.Close()

			items, err := client.ListUploads(commandContext(cmd), offset, count)
			if err != nil {
				if errors.Is(err, session.ErrServerError) && !client.Authenticated() {
					return fmt.Errorf("%w (is [login] configured?)", err)
				}
				return err
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no uploads")
				return nil
			}
			rows := make([][]string, 0, len(items))
			for _, it := range items {
				rows = append(rows, []string{
					it.Key,
					it.DisplayName,
					humanize.Time(it.UploadDate),
					formatViews(it.Views, it.MaxViews),
					it.URL,
				})
			}
			printTable(cmd.OutOrStdout(), []string{"Key", "Name", "Uploaded", "Views", "URL"}, rows)
			return nil
		},
	}
	cmd.Flags().IntVar(&offset, "offset", 0, "skip this many uploads")
	cmd.Flags().IntVar(&count, "count", 10, fmt.Sprintf("number of uploads to show (max %d)", upload.MaxListCount))
	return cmd
}

func formatViews(views int, limit *int) string {
	if limit == nil || *limit <= 0 {
		return strconv.Itoa(views)
	}
	return fmt.Sprintf("%d/%d", views, *limit)
}
