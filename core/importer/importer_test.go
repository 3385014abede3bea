package importer

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"sessions-portal/internal/testutil"
	"sessions-portal/model"
	"sessions-portal/repository"
)

const sheet = `Title,Details,Trainer,Publish Date,Link,Playlist,Tags
Go Concurrency,Channels and goroutines in depth,"Ada Lovelace, Alan Turing",03/14/2024,https://drive.google.com/file/d/AAA/view,Backend,"go, concurrency"
Intro to SQL,Joins,Grace Hopper & Ada Lovelace,04/01/2024,,Backend,sql
Broken Date,x,Someone,2024-04-01,,,
`

type recordingSubmitter struct {
	mu   sync.Mutex
	ids  []uint
	fail error
}

func (s *recordingSubmitter) Submit(ctx context.Context, assetID uint, link string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.ids = append(s.ids, assetID)
	return nil
}

type env struct {
	users  repository.UserRepository
	events repository.EventRepository
	labels repository.LabelRepository
	assets repository.VideoAssetRepository
	sub    *recordingSubmitter
	im     *Importer
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.DB(t)
	e := &env{
		users:  repository.NewGormUserRepository(db),
		events: repository.NewGormEventRepository(db),
		labels: repository.NewGormLabelRepository(db),
		assets: repository.NewGormVideoAssetRepository(db),
		sub:    &recordingSubmitter{},
	}
	e.im = New(e.users, e.events, e.labels, e.assets, e.sub)
	testutil.CreateUser(t, db, "admin", true)
	return e
}

func TestImportCreatesEventsAndQueuesVideos(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	sum, err := e.im.Import(ctx, strings.NewReader(sheet), Options{PresenterDomain: "arbisoft.com"})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if sum.Rows != 3 || len(sum.NewEvents) != 2 || len(sum.Failures) != 1 || sum.Failures[0].Row != 3 {
		t.Fatalf("summary: rows=%d new=%v failures=%+v", sum.Rows, sum.NewEvents.List(), sum.Failures)
	}
	wantPresenters := []string{"ada_lovelace", "alan_turing", "grace_hopper"}
	if got := sum.NewPresenters.List(); !reflect.DeepEqual(got, wantPresenters) {
		t.Fatalf("new presenters: want=%v got=%v", wantPresenters, got)
	}
	if got := sum.ExistingPresenters.List(); !reflect.DeepEqual(got, []string{"ada_lovelace"}) {
		t.Fatalf("presenter reused on row 2: %v", got)
	}
	if got := sum.NewTags.List(); !reflect.DeepEqual(got, []string{"concurrency", "go", "sql"}) {
		t.Fatalf("new tags: %v", got)
	}
	if len(e.sub.ids) != 1 || len(sum.Assets) != 1 || sum.Assets[0].ID != e.sub.ids[0] {
		t.Fatalf("queued assets: submitted=%v summary=%+v", e.sub.ids, sum.Assets)
	}

	ada, _ := e.users.GetByUsername(ctx, "ada_lovelace")
	if ada == nil || ada.Email != "ada_lovelace@arbisoft.com" || ada.FirstName != "Ada" || ada.LastName != "Lovelace" {
		t.Fatalf("presenter user: %+v", ada)
	}

	events, total, err := e.events.List(ctx, repository.EventFilter{Search: "Go Concurrency"})
	if err != nil || total != 1 {
		t.Fatalf("List: total=%d err=%v", total, err)
	}
	ev := events[0]
	if ev.Status != model.EventStatusPublished || ev.EventType != model.EventTypeSession {
		t.Fatalf("event state: %s/%s", ev.Status, ev.EventType)
	}
	if len(ev.Presenters) != 2 || len(ev.Tags) != 2 || len(ev.Playlists) != 1 {
		t.Fatalf("associations: presenters=%d tags=%d playlists=%d", len(ev.Presenters), len(ev.Tags), len(ev.Playlists))
	}
	if ev.VideoAsset == nil || ev.VideoAsset.Status != model.VideoStatusProcessing {
		t.Fatalf("video asset: %+v", ev.VideoAsset)
	}
	if want := time.Date(2024, 3, 14, 0, 0, 0, 0, time.Local); !ev.EventTime.Equal(want) {
		t.Fatalf("event time: want=%s got=%s", want, ev.EventTime)
	}
}

func TestImportIsIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	if _, err := e.im.Import(ctx, strings.NewReader(sheet), Options{}); err != nil {
		t.Fatalf("first import: %v", err)
	}
	sum, err := e.im.Import(ctx, strings.NewReader(sheet), Options{})
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if len(sum.NewEvents) != 0 || len(sum.ExistingEvents) != 2 {
		t.Fatalf("rerun must skip existing events: new=%v existing=%v", sum.NewEvents.List(), sum.ExistingEvents.List())
	}
	if len(e.sub.ids) != 1 {
		t.Fatalf("rerun must not queue again: %v", e.sub.ids)
	}
}

func TestImportDryRunWritesNothing(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	sum, err := e.im.Import(ctx, strings.NewReader(sheet), Options{DryRun: true})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if len(sum.NewEvents) != 2 || len(sum.Parsed) != 2 || len(sum.NewVideoAssets) != 1 {
		t.Fatalf("dry-run summary: %+v", sum)
	}
	if sum.Parsed[0].Description != "Channels and goroutines in dep..." {
		t.Fatalf("abbreviated description: %q", sum.Parsed[0].Description)
	}
	if _, total, _ := e.events.List(ctx, repository.EventFilter{}); total != 0 {
		t.Fatalf("dry run created %d events", total)
	}
	if u, _ := e.users.GetByUsername(ctx, "ada_lovelace"); u != nil {
		t.Fatalf("dry run created a presenter")
	}
	if len(e.sub.ids) != 0 {
		t.Fatalf("dry run queued downloads")
	}

	var out bytes.Buffer
	sum.Print(&out)
	if !strings.Contains(out.String(), "DRY RUN SUMMARY") || !strings.Contains(out.String(), "No database changes were made") {
		t.Fatalf("printed summary:\n%s", out.String())
	}
}

func TestImportSkipDownloadAndDispatchFailure(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	sum, err := e.im.Import(ctx, strings.NewReader(sheet), Options{SkipVideoDownload: true})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if len(e.sub.ids) != 0 || sum.Assets[0].Status != model.VideoStatusProcessing {
		t.Fatalf("skip: submitted=%v assets=%+v", e.sub.ids, sum.Assets)
	}

	e2 := newEnv(t)
	e2.sub.fail = errors.New("queue is full")
	sum, err = e2.im.Import(ctx, strings.NewReader(sheet), Options{})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	asset, _ := e2.assets.GetByID(ctx, sum.Assets[0].ID)
	if asset.Status != model.VideoStatusFailed {
		t.Fatalf("undispatchable asset must be FAILED, got %s", asset.Status)
	}
}

func TestImportRejectsMissingColumns(t *testing.T) {
	e := newEnv(t)
	_, err := e.im.Import(context.Background(), strings.NewReader("Title,Details\nx,y\n"), Options{})
	if err == nil || !strings.Contains(err.Error(), "missing column") {
		t.Fatalf("want missing column error, got %v", err)
	}
}

func TestSplitTrainers(t *testing.T) {
	got := splitTrainers("Ada Lovelace,  Alan  Turing & Grace Hopper and Rand Paul, Ada Lovelace")
	want := []string{"Ada Lovelace", "Alan Turing", "Grace Hopper", "Rand Paul"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("splitTrainers: want=%v got=%v", want, got)
	}
}

func TestWatchImportsNewFiles(t *testing.T) {
	e := newEnv(t)
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan *Summary, 1)
	errc := make(chan error, 1)
	go func() {
		errc <- e.im.Watch(ctx, dir, Options{SkipVideoDownload: true}, func(path string, sum *Summary, err error) {
			if err != nil {
				return
			}
			select {
			case done <- sum:
			default:
			}
		})
	}()

	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "batch.csv"), []byte(sheet), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case sum := <-done:
		if len(sum.NewEvents) != 2 {
			t.Fatalf("watched import: %v", sum.NewEvents.List())
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("watched file was not imported")
	}
	cancel()
	if err := <-errc; err != nil {
		t.Fatalf("Watch: %v", err)
	}
}
