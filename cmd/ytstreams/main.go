package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/urfave/cli"

	"github.com/ytget/ytstreams"
	"github.com/ytget/ytstreams/agent"
	"github.com/ytget/ytstreams/downloader"
	"github.com/ytget/ytstreams/errs"
	"github.com/ytget/ytstreams/internal/config"
	"github.com/ytget/ytstreams/internal/logger"
	"github.com/ytget/ytstreams/internal/sanitize"
	"github.com/ytget/ytstreams/session"
	"github.com/ytget/ytstreams/types"
	"github.com/ytget/ytstreams/youtube/formats"
	"github.com/ytget/ytstreams/youtube/watch"
)

var version = "dev"

type options struct {
	cookiesURL  string
	cookiesFile string
	cookies     string
	proxy       string
	origin      string
	userAgent   string
	timeout     time.Duration
	raw         bool
	dump        string
	format      string
	ext         string
	output      string
	rateLimit   string
	noProgress  bool
	verbose     bool
}

func main() {
	var opts options
	app := cli.NewApp()
	app.Name = "ytstreams"
	app.Usage = "resolve the playable streams of a video through a cookie session"
	app.UsageText = "ytstreams [--cookies-url URL|--cookies-file FILE|--cookies STRING] [options] <videoId|url>"
	app.Version = version
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:        "cookies-url",
			Usage:       "cookie export endpoint answering {cookies:[...]}",
			EnvVar:      "STREAMS_COOKIE_URL",
			Destination: &opts.cookiesURL,
		},
		cli.StringFlag{
			Name:        "cookies-file",
			Usage:       "JSON export or Netscape cookies.txt",
			EnvVar:      "STREAMS_COOKIE_FILE",
			Destination: &opts.cookiesFile,
		},
		cli.StringFlag{
			Name:        "cookies",
			Usage:       "raw Cookie header, e.g. 'SID=...; HSID=...'",
			EnvVar:      "STREAMS_COOKIES",
			Destination: &opts.cookies,
		},
		cli.StringFlag{
			Name:        "proxy",
			Usage:       "proxy URL (http, https, socks5)",
			EnvVar:      "STREAMS_PROXY",
			Destination: &opts.proxy,
		},
		cli.StringFlag{
			Name:        "origin",
			Usage:       "watch page origin",
			EnvVar:      "STREAMS_ORIGIN",
			Value:       watch.DefaultOrigin,
			Destination: &opts.origin,
		},
		cli.StringFlag{
			Name:        "user-agent",
			Usage:       "User-Agent sent with watch page requests",
			EnvVar:      "STREAMS_USER_AGENT",
			Value:       agent.DefaultUserAgent,
			Destination: &opts.userAgent,
		},
		cli.DurationFlag{
			Name:        "timeout",
			Usage:       "timeout for each outbound request",
			Value:       30 * time.Second,
			Destination: &opts.timeout,
		},
		cli.BoolFlag{
			Name:        "raw",
			Usage:       "print mime type and url of each stream without deciphering",
			Destination: &opts.raw,
		},
		cli.StringFlag{
			Name:        "dump",
			Usage:       "write the player response JSON to `FILE`",
			Destination: &opts.dump,
		},
		cli.StringFlag{
			Name:        "format, f",
			Usage:       "print only the url of one format ('itag=22', 'best', 'worst', 'height<=480')",
			Destination: &opts.format,
		},
		cli.StringFlag{
			Name:        "ext",
			Usage:       "container filter for --format (mp4, webm, m4a)",
			Destination: &opts.ext,
		},
		cli.StringFlag{
			Name:        "output, o",
			Usage:       "download the selected format to `PATH` (file or existing directory)",
			Destination: &opts.output,
		},
		cli.StringFlag{
			Name:        "rate-limit",
			Usage:       "download rate limit (e.g. 2MiB/s, 500KiB/s)",
			Destination: &opts.rateLimit,
		},
		cli.BoolFlag{
			Name:        "no-progress",
			Usage:       "disable download progress output",
			Destination: &opts.noProgress,
		},
		cli.BoolFlag{
			Name:        "verbose, v",
			Usage:       "log session and pipeline activity to stderr",
			Destination: &opts.verbose,
		},
	}
	app.Action = func(c *cli.Context) error {
		if c.NArg() != 1 {
			_ = cli.ShowAppHelp(c)
			return cli.NewExitError("exactly one video id or url is required", 2)
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := run(ctx, afero.NewOsFs(), os.Stdout, opts, c.Args().First()); err != nil {
			return cli.NewExitError(fmt.Sprintf("Error: %v", err), 1)
		}
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, fs afero.Fs, out io.Writer, opts options, input string) error {
	videoID, err := watch.VideoID(input)
	if err != nil {
		return err
	}
	sel, err := formats.ParseSelector(opts.format)
	if err != nil {
		return err
	}

	cfg := config.Default()
	cfg.CookieURL, cfg.CookieFile, cfg.Cookies = opts.cookiesURL, opts.cookiesFile, opts.cookies
	cfg.Proxy = opts.proxy
	if opts.timeout > 0 {
		cfg.SourceTimeout, cfg.RequestTimeout = opts.timeout, opts.timeout
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logCfg := logger.DefaultLogConfig()
	logCfg.Output = "stderr"
	logCfg.Level = "ERROR"
	if opts.verbose {
		logCfg.Level = "DEBUG"
	}
	log, err := logger.CreateLoggerFromConfig(logCfg)
	if err != nil {
		return err
	}

	src, err := cfg.CookieSource(fs)
	if err != nil {
		return err
	}
	mgr := session.NewManager(src, session.WithLogger(log))
	if err := mgr.Refresh(ctx); err != nil {
		return err
	}

	svc, err := ytstreams.New(mgr, ytstreams.Config{
		Fetcher: watch.Config{
			Origin:    opts.origin,
			UserAgent: opts.userAgent,
			Proxy:     cfg.ProxyConfig(),
			Timeout:   cfg.RequestTimeout,
		},
		Logger: log,
	})
	if err != nil {
		return err
	}

	var pr *watch.PlayerResponse
	if opts.raw || opts.dump != "" {
		if pr, err = svc.FetchPlayerResponse(ctx, videoID); err != nil {
			return err
		}
		if opts.dump != "" {
			if err := afero.WriteFile(fs, opts.dump, pr.Raw, 0o644); err != nil {
				return fmt.Errorf("write dump: %w", err)
			}
		}
		if opts.raw {
			return printRaw(out, pr)
		}
	}

	var list *types.StreamList
	if pr != nil {
		list, err = svc.ResolvePlayerResponse(ctx, videoID, pr)
	} else {
		list, err = svc.ResolveStreams(ctx, videoID)
	}
	if err != nil {
		return err
	}
	if opts.output != "" || opts.format != "" || opts.ext != "" {
		f := formats.Select(list.Formats, sel, opts.ext)
		if f == nil {
			return fmt.Errorf("%w: no playable format matches %q", errs.ErrInvalidInput, opts.format)
		}
		if opts.output == "" {
			_, err := fmt.Fprintln(out, f.URL())
			return err
		}
		return download(ctx, fs, out, mgr.Snapshot(), cfg, opts, list.Title, f)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(list)
}

func download(ctx context.Context, fs afero.Fs, out io.Writer, snap session.Snapshot, cfg *config.Config, opts options, title string, f types.Descriptor) error {
	a, err := agent.NewWith(snap.Jar, agent.Config{
		Proxy:     cfg.ProxyConfig(),
		Timeout:   cfg.RequestTimeout,
		UserAgent: opts.userAgent,
	})
	if err != nil {
		return err
	}
	defer a.CloseIdleConnections()

	path := opts.output
	if isDir(fs, path) {
		path = filepath.Join(path, sanitize.Filename(title, formats.ExtFromMime(f.MimeType())))
	}

	dlOpts := []downloader.Option{downloader.WithFs(fs)}
	if bps := parseRate(opts.rateLimit); bps > 0 {
		dlOpts = append(dlOpts, downloader.WithRateLimit(bps))
	}
	if !opts.noProgress {
		dlOpts = append(dlOpts, downloader.WithProgress(func(p downloader.Progress) {
			if p.TotalSize > 0 {
				_, _ = fmt.Fprintf(os.Stderr, "Downloaded %.1f%%\r", p.Percent)
			}
		}))
	}
	if err := downloader.New(a, dlOpts...).Download(ctx, f.URL(), path); err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "Saved: %s\n", path)
	return err
}

func isDir(fs afero.Fs, path string) bool {
	ok, err := afero.IsDir(fs, path)
	return err == nil && ok
}

// parseRate parses strings like "2MiB/s" or "500KiB/s" into bytes per second.
func parseRate(s string) int64 {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" {
		return 0
	}
	s = strings.TrimSpace(strings.TrimSuffix(s, "/S"))
	mul := 1.0
	for _, u := range []struct {
		suffix string
		mul    float64
	}{
		{"KIB", 1 << 10}, {"MIB", 1 << 20}, {"GIB", 1 << 30},
		{"KB", 1e3}, {"MB", 1e6}, {"GB", 1e9}, {"B", 1},
	} {
		if strings.HasSuffix(s, u.suffix) {
			s, mul = strings.TrimSpace(strings.TrimSuffix(s, u.suffix)), u.mul
			break
		}
	}
	val, err := strconv.ParseFloat(s, 64)
	if err != nil || val <= 0 {
		return 0
	}
	return int64(val * mul)
}

func printRaw(out io.Writer, pr *watch.PlayerResponse) error {
	if pr.StreamingData == nil {
		return fmt.Errorf("%w: %s %s", errs.ErrNoStreamingData, pr.PlayabilityStatus.Status, pr.PlayabilityStatus.Reason)
	}
	for _, d := range formats.Collect(pr.StreamingData.Formats, pr.StreamingData.AdaptiveFormats) {
		if _, err := fmt.Fprintf(out, "%s\t%s\t%s\n", itag(d), d.MimeType(), formats.RawURL(d)); err != nil {
			return err
		}
	}
	return nil
}

func itag(d types.Descriptor) string {
	if n := formats.Itag(d); n > 0 {
		return strconv.Itoa(n)
	}
	return "-"
}
