package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vertextoedge/chunkdl/internal/adapter/filesystem"
	"github.com/vertextoedge/chunkdl/internal/progress"
	"github.com/vertextoedge/chunkdl/internal/service/manager"
)

type getOptions struct {
	outputDir  string
	chunkSize  string
	maxRetries int
	coalesce   bool
	resume     bool
	progress   string
	statusAddr string
}

func newGetCmd(root *rootOptions) *cobra.Command {
	opts := &getOptions{}

	cmd := &cobra.Command{
		Use:   "get <url>...",
		Short: "Download one or more files",
		Long: `Get downloads each url into the output directory. Bytes are written to
"<name>.part" and renamed once the download completes; an interrupted
download resumes from its checkpoint on the next run.

Examples:
  chunkdl get https://example.com/big.iso
  chunkdl get -o ./downloads --chunk-size 16MiB https://example.com/a.tar https://example.com/b.tar`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer root.closeApp()
			return runGet(cmd, root.app, opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.outputDir, "output", "o", ".", "Output directory")
	cmd.Flags().StringVar(&opts.chunkSize, "chunk-size", "", "Bytes per request, e.g. 8MiB (default from config)")
	cmd.Flags().IntVar(&opts.maxRetries, "max-retries", 0, "Retries per chunk; 0 uses the config value, negative disables")
	cmd.Flags().BoolVar(&opts.coalesce, "coalesce", false, "Attach repeated urls to the running download")
	cmd.Flags().BoolVar(&opts.resume, "resume", false, "Resume from stored checkpoints even if disabled in config")
	cmd.Flags().StringVar(&opts.progress, "progress", progressAuto, "Progress output: auto, tty or plain")
	cmd.Flags().StringVar(&opts.statusAddr, "status-addr", "", "Serve download status on this address (default from config)")

	return cmd
}

// download tracks one started url
type download struct {
	url    string
	name   string
	file   *os.File // nil when attached to another download
	handle *manager.Handle
}

func runGet(cmd *cobra.Command, app *App, opts *getOptions, urls []string) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	var chunkSize int64
	if opts.chunkSize != "" {
		n, err := progress.ParseBytes(opts.chunkSize)
		if err != nil {
			return fmt.Errorf("invalid --chunk-size: %w", err)
		}
		if n <= 0 {
			return fmt.Errorf("invalid --chunk-size: must be positive")
		}
		chunkSize = n
	}

	showProgress, err := shouldShowProgress(opts.progress, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	files, err := filesystem.NewManager(opts.outputDir)
	if err != nil {
		return err
	}

	if report, err := app.Maintenance(files).RunOnce(); err != nil {
		app.Logger.Warn("maintenance pass failed", zap.Error(err))
	} else {
		app.Logger.Debug("maintenance pass complete",
			zap.Int("checkpoints", report.Checkpoints),
			zap.Int("partials", report.Partials))
	}

	statusAddr := opts.statusAddr
	if statusAddr == "" {
		statusAddr = app.Config.Status.BindAddr
	}
	if statusAddr != "" {
		stopStatus, err := app.StartStatusServer(statusAddr)
		if err != nil {
			return fmt.Errorf("failed to start status server: %w", err)
		}
		defer stopStatus()
	}

	var printer *progressPrinter
	if showProgress {
		printer = newProgressPrinter(cmd.ErrOrStderr(), progressInterval)
	}

	resume := opts.resume || app.Config.Download.Resume
	base := manager.Options{
		ChunkSize:  chunkSize,
		MaxRetries: opts.maxRetries,
		Coalesce:   opts.coalesce,
		Resume:     resume,
	}

	var (
		downloads []*download
		errs      []error
		owners    = make(map[string]*download)
		names     = make(map[string]bool)
	)

	for _, raw := range urls {
		d, err := startDownload(ctx, app, files, base, printer, raw, owners, names)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", raw, err))
			continue
		}
		downloads = append(downloads, d)
	}

	results := make([]error, len(downloads))
	var g errgroup.Group
	for i, d := range downloads {
		g.Go(func() error {
			results[i] = finishDownload(cmd.OutOrStdout(), files, d)
			return results[i]
		})
	}
	_ = g.Wait()

	for _, err := range results {
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 1 {
		return fmt.Errorf("%d of %d downloads failed: %w", len(errs), len(urls), errors.Join(errs...))
	}
	if len(errs) == 1 {
		return errs[0]
	}
	return nil
}

// startDownload opens the sink for raw and registers it with the manager.
// A url already started in this run is attached without a sink of its own.
func startDownload(
	ctx context.Context,
	app *App,
	files *filesystem.Manager,
	base manager.Options,
	printer *progressPrinter,
	raw string,
	owners map[string]*download,
	names map[string]bool,
) (*download, error) {
	if owner, ok := owners[raw]; ok {
		h, err := app.Manager.StartDownload(ctx, raw, base)
		if err != nil {
			return nil, err
		}
		return &download{url: raw, name: owner.name, handle: h}, nil
	}

	name, err := fileName(raw)
	if err != nil {
		return nil, err
	}
	name = uniqueName(name, names)

	keep := false
	if base.Resume {
		cp, err := app.Checkpoints.Load(raw)
		if err != nil {
			app.Logger.Warn("failed to load checkpoint", zap.String("url", raw), zap.Error(err))
		}
		keep = cp.CanResume()
	}

	f, err := files.OpenPartial(name, keep)
	if err != nil {
		return nil, err
	}

	opts := base
	opts.Sink = f
	opts.OnProgress = printer.callback()

	h, err := app.Manager.StartDownload(ctx, raw, opts)
	if err != nil {
		f.Close()
		return nil, err
	}

	names[name] = true
	d := &download{url: raw, name: name, file: f, handle: h}
	owners[raw] = d
	return d, nil
}

// finishDownload waits for the handle and commits the partial file. Failed
// or cancelled downloads keep their partial file for a later resume.
func finishDownload(out io.Writer, files *filesystem.Manager, d *download) error {
	<-d.handle.Done()
	res, err := d.handle.Result(), d.handle.Err()

	dest := files.DestPath(d.name)
	if d.file != nil {
		if err != nil {
			d.file.Close()
			return fmt.Errorf("%s: %w", d.url, err)
		}
		committed, cerr := files.Commit(d.file)
		if cerr != nil {
			return fmt.Errorf("%s: %w", d.url, cerr)
		}
		dest = committed
	} else if err != nil {
		return fmt.Errorf("%s: %w", d.url, err)
	}

	line := fmt.Sprintf("%s -> %s (%s in %s)", d.url, dest,
		progress.FormatBytes(res.Bytes), res.Duration.Round(time.Millisecond))
	if res.Resumed {
		line += fmt.Sprintf(", resumed at %s", progress.FormatBytes(res.ResumedFrom))
	}
	fmt.Fprintln(out, line)
	return nil
}

// fileName derives a local file name from the last path segment of raw
func fileName(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}

	name := path.Base(u.Path)
	switch name {
	case "", ".", "/":
		name = u.Hostname()
	}
	if name == "" {
		name = "download"
	}
	return name, nil
}

// uniqueName appends -1, -2, ... until name is unused in this run
func uniqueName(name string, used map[string]bool) string {
	if !used[name] {
		return name
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s-%d%s", stem, i, ext)
		if !used[candidate] {
			return candidate
		}
	}
}
