// Package downloader saves a resolved stream to disk with ranged requests.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/time/rate"

	"github.com/ytget/ytstreams/errs"
	"github.com/ytget/ytstreams/internal/logger"
)

const (
	defaultChunkSize  = 1 << 20 // 1MB
	defaultMaxRetries = 3
	tmpSuffix         = ".tmp"
	initialBackoff    = 200 * time.Millisecond
	maxBackoff        = 3 * time.Second
	copyBufferSize    = 32 * 1024
)

// Doer sends one request. *agent.Agent and *http.Client satisfy it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Progress holds information about download progress.
type Progress struct {
	TotalSize      int64
	DownloadedSize int64
	Percent        float64
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithProgress registers a callback invoked after every write.
func WithProgress(fn func(Progress)) Option {
	return func(d *Downloader) { d.progress = fn }
}

// WithRateLimit caps throughput in bytes per second; zero disables it.
func WithRateLimit(bps int64) Option {
	return func(d *Downloader) {
		if bps > 0 {
			burst := int(min(bps, copyBufferSize))
			d.limiter = rate.NewLimiter(rate.Limit(bps), burst)
		}
	}
}

// WithChunkSize sets the size of each ranged request.
func WithChunkSize(n int64) Option {
	return func(d *Downloader) {
		if n > 0 {
			d.chunkSize = n
		}
	}
}

// WithFs writes through fs instead of the OS filesystem.
func WithFs(fs afero.Fs) Option {
	return func(d *Downloader) { d.fs = fs }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(d *Downloader) { d.log = logger.For(l, logger.ComponentDownload) }
}

// Downloader fetches a stream in ranged chunks with retry and backoff,
// resuming from a previous temporary file when present.
type Downloader struct {
	client     Doer
	fs         afero.Fs
	progress   func(Progress)
	limiter    *rate.Limiter
	chunkSize  int64
	maxRetries int
	log        *logger.ComponentLogger
}

// New returns a Downloader sending requests through client.
func New(client Doer, opts ...Option) *Downloader {
	if client == nil {
		client = http.DefaultClient
	}
	d := &Downloader{
		client:     client,
		fs:         afero.NewOsFs(),
		chunkSize:  defaultChunkSize,
		maxRetries: defaultMaxRetries,
		log:        logger.For(nil, logger.ComponentDownload),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Download saves streamURL to outputPath via outputPath+".tmp".
func (d *Downloader) Download(ctx context.Context, streamURL, outputPath string) error {
	if streamURL == "" {
		return fmt.Errorf("%w: empty stream url", errs.ErrInvalidInput)
	}
	tmpPath := outputPath + tmpSuffix
	out, err := d.fs.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", tmpPath, err)
	}
	defer func() { _ = out.Close() }()

	info, err := out.Stat()
	if err != nil {
		return err
	}
	downloaded := info.Size()

	total, err := d.totalSize(ctx, streamURL)
	if err != nil {
		d.log.Warn("Could not determine total size", map[string]any{"error": err.Error()})
	}
	d.log.Debug("Download started", map[string]any{
		"path":    outputPath,
		"resume":  downloaded,
		"total":   total,
		"chunked": d.chunkSize,
	})

	for total == 0 || downloaded < total {
		start := downloaded
		end := start + d.chunkSize - 1
		if total > 0 && end >= total {
			end = total - 1
		}
		n, err := d.fetchRange(ctx, streamURL, start, end, out, func(written int64) {
			d.report(total, start+written)
		})
		downloaded += n
		if err != nil {
			return err
		}
		// unknown size: a short chunk is the last one
		if total == 0 && n < end-start+1 {
			break
		}
	}

	if err := out.Close(); err != nil {
		return err
	}
	if downloaded == 0 {
		_ = d.fs.Remove(tmpPath)
		return fmt.Errorf("%w: empty download", errs.ErrInvalidUpstreamResponse)
	}
	d.log.Info("Download finished", map[string]any{"path": outputPath, "bytes": downloaded})
	return d.fs.Rename(tmpPath, outputPath)
}

func (d *Downloader) report(total, done int64) {
	if d.progress == nil {
		return
	}
	p := Progress{TotalSize: total, DownloadedSize: done}
	if total > 0 {
		p.Percent = float64(done) / float64(total) * 100
	}
	d.progress(p)
}

func newRangeRequest(ctx context.Context, streamURL string, start, end int64) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Encoding", "identity")
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))
	return req, nil
}

// totalSize asks for the first two bytes and reads the size from
// Content-Range, falling back to Content-Length.
func (d *Downloader) totalSize(ctx context.Context, streamURL string) (int64, error) {
	req, err := newRangeRequest(ctx, streamURL, 0, 1)
	if err != nil {
		return 0, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= http.StatusBadRequest {
		return 0, fmt.Errorf("%w: size request status %d", errs.ErrUpstreamRequest, resp.StatusCode)
	}
	if cr := resp.Header.Get("Content-Range"); cr != "" {
		if i := strings.LastIndexByte(cr, '/'); i >= 0 {
			if v, err := strconv.ParseInt(cr[i+1:], 10, 64); err == nil {
				return v, nil
			}
		}
	}
	if resp.StatusCode == http.StatusOK {
		if resp.ContentLength > 0 {
			return resp.ContentLength, nil
		}
		if v, err := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64); err == nil && v > 0 {
			return v, nil
		}
	}
	return 0, errors.New("cannot determine total size")
}

// fetchRange copies bytes [start, end] to w with retries on request errors.
func (d *Downloader) fetchRange(ctx context.Context, streamURL string, start, end int64, w io.Writer, onWrite func(int64)) (int64, error) {
	var (
		resp    *http.Response
		lastErr error
		backoff = initialBackoff
	)
	for attempt := 0; attempt < d.maxRetries; attempt++ {
		req, err := newRangeRequest(ctx, streamURL, start, end)
		if err != nil {
			return 0, err
		}
		resp, lastErr = d.client.Do(req)
		if lastErr == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			break
		}
		if lastErr == nil {
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("%w: chunk status %d", errs.ErrUpstreamRequest, resp.StatusCode)
		}
		resp = nil
		d.log.Debug("Chunk request failed", map[string]any{"attempt": attempt + 1, "error": lastErr.Error()})
		if attempt == d.maxRetries-1 {
			break
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
	if resp == nil {
		return 0, fmt.Errorf("download chunk %d-%d: %w", start, end, lastErr)
	}
	defer func() { _ = resp.Body.Close() }()

	var written int64
	buf := make([]byte, copyBufferSize)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if err := d.wait(ctx, n); err != nil {
				return written, err
			}
			if _, werr := w.Write(buf[:n]); werr != nil {
				return written, fmt.Errorf("write chunk: %w", werr)
			}
			written += int64(n)
			onWrite(written)
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, fmt.Errorf("%w: read chunk: %v", errs.ErrUpstreamRequest, rerr)
		}
	}
}

// wait blocks until the rate limiter admits n bytes.
func (d *Downloader) wait(ctx context.Context, n int) error {
	if d.limiter == nil {
		return nil
	}
	for n > 0 {
		k := min(n, d.limiter.Burst())
		if err := d.limiter.WaitN(ctx, k); err != nil {
			return err
		}
		n -= k
	}
	return nil
}
