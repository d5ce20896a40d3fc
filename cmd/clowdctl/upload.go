package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/danmuck/clowdctl/internal/upload"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

type uploadFlags struct {
	text      bool
	name      string
	direct    bool
	viewLimit int
	validFor  time.Duration
	quiet     bool
}

func newUploadCmd(a *app) *cobra.Command {
	f := &uploadFlags{}
	cmd := &cobra.Command{
		Use:   "upload [file...]",
		Short: "Upload files, or text read from stdin",
		Example: `  clowdctl upload shot.png notes.pdf
  echo hello | clowdctl upload --text --name greeting.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.text && len(args) > 0 {
				return errors.New("--text reads stdin and takes no file arguments")
			}
			if !f.text && len(args) == 0 {
				return errors.New("nothing to upload: pass files or --text")
			}
			return runUpload(cmd, a, f, args)
		},
	}
	flags := cmd.Flags()
	flags.BoolVar(&f.text, "text", false, "upload stdin as text")
	flags.StringVar(&f.name, "name", "", "display name for --text uploads")
	flags.BoolVar(&f.direct, "direct", false, "request a direct download link")
	flags.IntVar(&f.viewLimit, "view-limit", 0, "maximum number of views (0 = unlimited)")
	flags.DurationVar(&f.validFor, "valid-for", 0, "expire the upload after this duration (0 = never)")
	flags.BoolVarP(&f.quiet, "quiet", "q", false, "print only the resulting links")
	return cmd
}

// options merges the [upload] config defaults with any flags set explicitly.
func (f *uploadFlags) options(cmd *cobra.Command, base upload.Options) upload.Options {
	opts := base
	flags := cmd.Flags()
	if flags.Changed("direct") {
		opts.Direct = f.direct
	}
	if flags.Changed("view-limit") {
		opts.ViewLimit = f.viewLimit
	}
	if flags.Changed("valid-for") {
		opts.ValidFor = f.validFor
	}
	return opts
}

func runUpload(cmd *cobra.Command, a *app, f *uploadFlags, files []string) error {
	tracker := upload.NewTracker()
	sinks := []upload.Sink{tracker}
	if !f.quiet {
		sinks = append(sinks, newConsoleSink(cmd.ErrOrStderr()))
	}
	client, err := a.client(upload.NewMultiSink(sinks...))
	if err != nil {
		return err
	}
	defer client.Close()

	ctx := commandContext(cmd)
	opts := f.options(cmd, a.cfg.Upload)
	out := cmd.OutOrStdout()

	if f.text {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		res, err := client.UploadText(ctx, string(data), f.name, opts)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, res.ActionLink)
		return nil
	}

	var errs []error
	for _, path := range files {
		res, err := client.UploadFile(ctx, path, opts)
		if err != nil {
			a.log.Debug().Err(err).Str("path", path).Msg("upload failed")
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		if f.quiet {
			fmt.Fprintln(out, res.ActionLink)
		}
	}
	if !f.quiet {
		printSummary(out, tracker.List())
	}
	return errors.Join(errs...)
}

func printSummary(w io.Writer, items []upload.Progress) {
	rows := make([][]string, 0, len(items))
	for _, p := range items {
		status, link := "ok", p.ActionLink
		if p.Failed {
			status, link = "failed", p.Message
		}
		rows = append(rows, []string{
			p.DisplayName,
			humanize.Bytes(uint64(p.BytesWritten)),
			status,
			link,
		})
	}
	printTable(w, []string{"Name", "Size", "Status", "Link"}, rows)
}
