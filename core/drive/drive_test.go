package drive

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sessions-portal/core/failure"
)

func TestResolveFileID(t *testing.T) {
	cases := []struct {
		link string
		id   string
		ok   bool
	}{
		{"https://drive.google.com/file/d/1AbC_x-9/view?usp=sharing", "1AbC_x-9", true},
		{"https://drive.google.com/file/d/XYZ", "XYZ", true},
		{"https://drive.google.com/open?id=QQQ123", "QQQ123", true},
		{"https://drive.google.com/uc?export=download&id=ABC", "ABC", true},
		{"  https://docs.google.com/file/d/DOC1/edit  ", "DOC1", true},
		{"https://example.com/file/d/abc", "", false},
		{"https://drive.google.com/drive/folders", "", false},
		{"https://drive.google.com/open?id=", "", false},
		{"https://drive.google.com/open?id=a%2Bb", "a%2Bb", true},
		{"https://drive.google.com/file/d/a%20b/view", "a%20b", true},
		{"https://drive.google.com/open?xid=Z", "", false},
		{"not a link", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		id, ok := ResolveFileID(tc.link)
		if id != tc.id || ok != tc.ok {
			t.Fatalf("ResolveFileID(%q): want=(%q,%v) got=(%q,%v)", tc.link, tc.id, tc.ok, id, ok)
		}
	}
}

// fakeDrive serves both Drive hosts from one server.
type fakeDrive struct {
	confirmCookie bool
	exportHTML    bool
	fallbackHTML  bool
	status        int
	hits          []string
}

func (d *fakeDrive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.hits = append(d.hits, r.URL.Path+"?"+r.URL.RawQuery)
	if d.status != 0 {
		w.WriteHeader(d.status)
		return
	}
	switch r.URL.Path {
	case "/uc":
		if d.confirmCookie && r.URL.Query().Get("confirm") == "" {
			http.SetCookie(w, &http.Cookie{Name: "download_warning_13058", Value: "tok42"})
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			io.WriteString(w, "<html>virus scan warning</html>")
			return
		}
		if d.exportHTML {
			w.Header().Set("Content-Type", "text/html")
			io.WriteString(w, "<html>still a page</html>")
			return
		}
		w.Header().Set("Content-Type", "video/mp4")
		w.Header().Set("Content-Disposition", `attachment; filename="talk.mp4"`)
		io.WriteString(w, "export-bytes")
	case "/download":
		if d.fallbackHTML {
			w.Header().Set("Content-Type", "text/html")
			io.WriteString(w, "<html>nope</html>")
			return
		}
		w.Header().Set("Content-Type", "video/webm")
		io.WriteString(w, "usercontent-bytes")
	default:
		http.NotFound(w, r)
	}
}

func newTestFetcher(srv *httptest.Server, timeout time.Duration) *Fetcher {
	return NewFetcher(Options{
		Timeout:         timeout,
		ExportBase:      srv.URL,
		UsercontentBase: srv.URL,
		Client:          srv.Client(),
	})
}

func readAll(t *testing.T, d *Download) string {
	t.Helper()
	defer d.Close()
	b, err := io.ReadAll(d.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(b)
}

func TestFetchUsesConfirmCookie(t *testing.T) {
	fake := &fakeDrive{confirmCookie: true}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	d, err := newTestFetcher(srv, time.Second).Fetch(context.Background(), "FILE1")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if body := readAll(t, d); body != "export-bytes" {
		t.Fatalf("body: want=%q got=%q", "export-bytes", body)
	}
	if d.Filename != "talk.mp4" || d.ContentType != "video/mp4" {
		t.Fatalf("download meta: %+v", d)
	}
	if len(fake.hits) != 2 || !strings.Contains(fake.hits[1], "confirm=tok42") {
		t.Fatalf("second request must carry the token: %v", fake.hits)
	}
}

func TestFetchFallsBackToUsercontent(t *testing.T) {
	fake := &fakeDrive{exportHTML: true}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	d, err := newTestFetcher(srv, time.Second).Fetch(context.Background(), "FILE2")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if body := readAll(t, d); body != "usercontent-bytes" {
		t.Fatalf("body: got=%q", body)
	}
	if d.Filename != "video_FILE2.mp4" {
		t.Fatalf("default filename: got=%q", d.Filename)
	}
	last := fake.hits[len(fake.hits)-1]
	if !strings.HasPrefix(last, "/download?") || !strings.Contains(last, "confirm=t") || !strings.Contains(last, "id=FILE2") {
		t.Fatalf("fallback request: %q", last)
	}
}

func TestFetchHTMLAfterFallbackIsValidation(t *testing.T) {
	srv := httptest.NewServer(&fakeDrive{exportHTML: true, fallbackHTML: true})
	defer srv.Close()

	_, err := newTestFetcher(srv, time.Second).Fetch(context.Background(), "FILE3")
	if !failure.Is(err, failure.Validation) {
		t.Fatalf("want validation failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "received HTML instead of video file") {
		t.Fatalf("message: %v", err)
	}
}

func TestFetchStatusIsTransport(t *testing.T) {
	srv := httptest.NewServer(&fakeDrive{status: http.StatusServiceUnavailable})
	defer srv.Close()

	_, err := newTestFetcher(srv, time.Second).Fetch(context.Background(), "FILE4")
	if !failure.Is(err, failure.Transport) {
		t.Fatalf("want transport failure, got %v", err)
	}
}

func TestFetchStallIsTransport(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		io.WriteString(w, "partial")
		w.(http.Flusher).Flush()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	d, err := newTestFetcher(srv, 100*time.Millisecond).Fetch(context.Background(), "FILE5")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	defer d.Close()
	_, err = io.ReadAll(d.Body)
	if !failure.Is(err, failure.Transport) {
		t.Fatalf("stalled body: want transport failure, got %v", err)
	}
}

func TestFilenameFrom(t *testing.T) {
	if got := filenameFrom(`attachment; filename="../../etc/x.mov"`, "id"); got != "x.mov" {
		t.Fatalf("path components must be stripped: %q", got)
	}
	if got := filenameFrom("", "abc"); got != "video_abc.mp4" {
		t.Fatalf("default: %q", got)
	}
}
