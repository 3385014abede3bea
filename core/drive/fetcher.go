package drive

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"sessions-portal/core/failure"
	"sessions-portal/logger"
)

const (
	DefaultExportBase      = "https://drive.google.com"
	DefaultUsercontentBase = "https://drive.usercontent.google.com"
	DefaultTimeout         = 30 * time.Second

	confirmCookiePrefix = "download_warning"
)

// Options configures a Fetcher. Zero values take the defaults above.
type Options struct {
	Timeout         time.Duration // bound on connect, headers and any stall while reading
	ExportBase      string
	UsercontentBase string
	Client          *http.Client
}

// Fetcher downloads publicly shared Drive files, passing the virus-scan
// interstitial when Drive serves one.
type Fetcher struct {
	client          *http.Client
	timeout         time.Duration
	exportBase      string
	usercontentBase string
}

func NewFetcher(opts Options) *Fetcher {
	f := &Fetcher{
		client:          opts.Client,
		timeout:         opts.Timeout,
		exportBase:      strings.TrimRight(opts.ExportBase, "/"),
		usercontentBase: strings.TrimRight(opts.UsercontentBase, "/"),
	}
	if f.client == nil {
		f.client = &http.Client{}
	}
	if f.timeout <= 0 {
		f.timeout = DefaultTimeout
	}
	if f.exportBase == "" {
		f.exportBase = DefaultExportBase
	}
	if f.usercontentBase == "" {
		f.usercontentBase = DefaultUsercontentBase
	}
	return f
}

// Download is an open binary response. The caller must Close it.
type Download struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64 // -1 when unknown
	Filename      string
}

func (d *Download) Close() error {
	return d.Body.Close()
}

// Fetch resolves fileID to its binary payload:
//  1. GET /uc?export=download
//  2. repeat with confirm=<token> when a download_warning cookie is set
//  3. fall back to the usercontent host with confirm=t when the reply is still HTML
//
// HTML after the fallback is a Validation error; network and status failures are Transport errors.
func (f *Fetcher) Fetch(ctx context.Context, fileID string) (*Download, error) {
	ctx, cancel := context.WithCancel(ctx)
	watchdog := newWatchdog(f.timeout, cancel)

	jar, _ := cookiejar.New(nil)
	client := *f.client
	client.Jar = jar

	fail := func(err error) (*Download, error) {
		watchdog.stop()
		cancel()
		return nil, err
	}

	params := url.Values{"id": {fileID}, "export": {"download"}}
	resp, err := f.get(ctx, &client, watchdog, f.exportBase+"/uc", params)
	if err != nil {
		return fail(err)
	}

	if token := confirmToken(resp); token != "" {
		logger.Debug("drive confirm token received", logger.String("fileId", fileID))
		discard(resp)
		params.Set("confirm", token)
		resp, err = f.get(ctx, &client, watchdog, f.exportBase+"/uc", params)
		if err != nil {
			return fail(err)
		}
	}

	if isHTML(resp) {
		logger.Info("drive returned HTML, trying usercontent host", logger.String("fileId", fileID))
		discard(resp)
		resp, err = f.get(ctx, &client, watchdog, f.usercontentBase+"/download", url.Values{"id": {fileID}, "confirm": {"t"}})
		if err != nil {
			return fail(err)
		}
		if isHTML(resp) {
			discard(resp)
			return fail(failure.Errorf(failure.Validation, "drive.fetch",
				"unable to download file %s: received HTML instead of video file", fileID))
		}
	}

	return &Download{
		Body:          &guardedBody{rc: resp.Body, watchdog: watchdog, cancel: cancel},
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
		Filename:      filenameFrom(resp.Header.Get("Content-Disposition"), fileID),
	}, nil
}

func (f *Fetcher) get(ctx context.Context, client *http.Client, w *watchdog, base string, params url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+params.Encode(), nil)
	if err != nil {
		return nil, failure.New(failure.Transport, "drive.fetch", err)
	}
	w.kick()
	resp, err := client.Do(req)
	if err != nil {
		if w.fired() {
			err = fmt.Errorf("no response within %s: %w", f.timeout, err)
		}
		return nil, failure.New(failure.Transport, "drive.fetch", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		discard(resp)
		return nil, failure.Errorf(failure.Transport, "drive.fetch", "GET %s: unexpected status %d", base, resp.StatusCode)
	}
	return resp, nil
}

func confirmToken(resp *http.Response) string {
	for _, c := range resp.Cookies() {
		if strings.HasPrefix(c.Name, confirmCookiePrefix) {
			return c.Value
		}
	}
	return ""
}

func isHTML(resp *http.Response) bool {
	return strings.Contains(strings.ToLower(resp.Header.Get("Content-Type")), "text/html")
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}

var quotedFilename = regexp.MustCompile(`filename="(.+?)"`)

func filenameFrom(disposition, fileID string) string {
	name := ""
	if _, params, err := mime.ParseMediaType(disposition); err == nil {
		name = params["filename"]
	}
	if name == "" {
		if m := quotedFilename.FindStringSubmatch(disposition); m != nil {
			name = m[1]
		}
	}
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == "/" {
		return fmt.Sprintf("video_%s.mp4", fileID)
	}
	return name
}

// watchdog cancels the download when no progress is made for timeout.
type watchdog struct {
	timeout time.Duration
	timer   *time.Timer
	mu      sync.Mutex
	expired bool
}

func newWatchdog(timeout time.Duration, cancel context.CancelFunc) *watchdog {
	w := &watchdog{timeout: timeout}
	w.timer = time.AfterFunc(timeout, func() {
		w.mu.Lock()
		w.expired = true
		w.mu.Unlock()
		cancel()
	})
	return w
}

func (w *watchdog) kick() {
	w.timer.Reset(w.timeout)
}

func (w *watchdog) stop() {
	w.timer.Stop()
}

func (w *watchdog) fired() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.expired
}

type guardedBody struct {
	rc       io.ReadCloser
	watchdog *watchdog
	cancel   context.CancelFunc
}

func (b *guardedBody) Read(p []byte) (int, error) {
	n, err := b.rc.Read(p)
	if n > 0 {
		b.watchdog.kick()
	}
	if err != nil && err != io.EOF {
		if b.watchdog.fired() {
			err = fmt.Errorf("download stalled for %s: %w", b.watchdog.timeout, err)
		}
		return n, failure.New(failure.Transport, "drive.read", err)
	}
	return n, err
}

func (b *guardedBody) Close() error {
	b.watchdog.stop()
	err := b.rc.Close()
	b.cancel()
	return err
}
