package repository

import (
	"context"
	"strconv"
	"testing"
	"time"

	"sessions-portal/internal/testutil"
	"sessions-portal/model"

	"gorm.io/gorm"
)

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Intro to Go":          "intro-to-go",
		"  Kafka & Friends!! ": "kafka-friends",
		"???":                  "event",
		"Q3 Town-Hall 2024":    "q3-town-hall-2024",
	}
	for in, want := range cases {
		if got := Slugify(in); got != want {
			t.Fatalf("Slugify(%q): want=%q got=%q", in, want, got)
		}
	}
}

func TestOrderClause(t *testing.T) {
	if got := OrderClause(""); got != "events.event_time DESC, events.id DESC" {
		t.Fatalf("default ordering: got=%q", got)
	}
	if got := OrderClause("status"); got != "events.status ASC, events.id ASC" {
		t.Fatalf("status ordering: got=%q", got)
	}
	if got := OrderClause("-is_featured"); got != "events.is_featured DESC, events.id DESC" {
		t.Fatalf("featured ordering: got=%q", got)
	}
	if got := OrderClause("title; DROP TABLE events"); got != "events.event_time DESC, events.id DESC" {
		t.Fatalf("unknown ordering must fall back: got=%q", got)
	}
}

type fixture struct {
	db     *gorm.DB
	events EventRepository
	labels LabelRepository
	users  UserRepository
	assets VideoAssetRepository
	owner  *model.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.DB(t)
	return &fixture{
		db:     db,
		events: NewGormEventRepository(db),
		labels: NewGormLabelRepository(db),
		users:  NewGormUserRepository(db),
		assets: NewGormVideoAssetRepository(db),
		owner:  testutil.CreateUser(t, db, "owner", true),
	}
}

func (f *fixture) event(t *testing.T, title string, at time.Time, status model.EventStatus, tags []model.Tag, playlists []model.Playlist) *model.Event {
	t.Helper()
	ev := &model.Event{
		CreatorID:   f.owner.ID,
		Title:       title,
		Description: title + " description",
		EventTime:   at,
		EventType:   model.EventTypeSession,
		Status:      status,
		Tags:        tags,
		Playlists:   playlists,
	}
	if err := f.events.Create(context.Background(), ev); err != nil {
		t.Fatalf("create event %q: %v", title, err)
	}
	return ev
}

func TestCreateEventSlugCollision(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	first := f.event(t, "Weekly Demo", base, model.EventStatusDraft, nil, nil)
	second := f.event(t, "Weekly Demo", base.Add(24*time.Hour), model.EventStatusDraft, nil, nil)

	if first.Slug != "weekly-demo" {
		t.Fatalf("first slug: want=%q got=%q", "weekly-demo", first.Slug)
	}
	want := "weekly-demo-" + itoa(second.ID)
	if second.Slug != want {
		t.Fatalf("second slug: want=%q got=%q", want, second.Slug)
	}
	stored, err := f.events.GetByID(context.Background(), second.ID)
	if err != nil || stored == nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Slug != want {
		t.Fatalf("stored slug: want=%q got=%q", want, stored.Slug)
	}
}

func TestListFiltersAndPagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	goTag, _ := f.labels.GetOrCreateTag(ctx, "golang")
	infra, _ := f.labels.GetOrCreatePlaylist(ctx, "Infra Series")
	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 12; i++ {
		f.event(t, "Session "+itoa(uint(i)), base.AddDate(0, 0, i), model.EventStatusPublished, nil, nil)
	}
	tagged := f.event(t, "Concurrency Patterns", base.AddDate(0, 1, 0), model.EventStatusPublished, []model.Tag{*goTag}, []model.Playlist{*infra})
	presenter := testutil.CreateUser(t, f.db, "ayesha", false)
	if err := f.events.AddPresenter(ctx, tagged.ID, presenter.ID); err != nil {
		t.Fatalf("AddPresenter: %v", err)
	}

	page, total, err := f.events.List(ctx, EventFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 13 || len(page) != DefaultPageSize {
		t.Fatalf("default page: want total=13 len=%d got total=%d len=%d", DefaultPageSize, total, len(page))
	}
	if page[0].ID != tagged.ID {
		t.Fatalf("default ordering must be newest first: got first=%q", page[0].Title)
	}

	page, _, _ = f.events.List(ctx, EventFilter{Page: 2, PageSize: 10})
	if len(page) != 3 {
		t.Fatalf("page 2: want=3 got=%d", len(page))
	}

	for name, filter := range map[string]EventFilter{
		"search title":     {Search: "concurrency"},
		"search tag":       {Search: "GOLANG"},
		"search playlist":  {Search: "infra"},
		"search presenter": {Search: "ayesha"},
		"tag by name":      {Tag: "golang"},
		"tag by id":        {Tag: itoa(goTag.ID)},
		"playlist by name": {Playlist: "Infra Series"},
	} {
		got, total, err := f.events.List(ctx, filter)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if total != 1 || len(got) != 1 || got[0].ID != tagged.ID {
			t.Fatalf("%s: want only %q, got total=%d", name, tagged.Title, total)
		}
	}

	after := base.AddDate(0, 0, 10)
	_, total, _ = f.events.List(ctx, EventFilter{After: &after})
	if total != 3 {
		t.Fatalf("event_time_after: want=3 got=%d", total)
	}

	featured := false
	_, total, _ = f.events.List(ctx, EventFilter{IsFeatured: &featured, Status: model.EventStatusPublished, EventType: model.EventTypeSession})
	if total != 13 {
		t.Fatalf("combined filters: want=13 got=%d", total)
	}

	asc, _, _ := f.events.List(ctx, EventFilter{Ordering: "event_time", PageSize: 500})
	if len(asc) != 13 || asc[0].Title != "Session 0" {
		t.Fatalf("ascending ordering / max page size clamp: len=%d first=%q", len(asc), asc[0].Title)
	}
}

func TestRecommendations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tag, _ := f.labels.GetOrCreateTag(ctx, "security")
	base := time.Date(2023, 6, 1, 9, 0, 0, 0, time.UTC)

	current := f.event(t, "Threat Modeling", base, model.EventStatusPublished, []model.Tag{*tag}, nil)
	// old but similar: only reachable through the shared tag
	similar := f.event(t, "Pen Testing 101", base.AddDate(-1, 0, 0), model.EventStatusPublished, []model.Tag{*tag}, nil)
	draft := f.event(t, "Draft Similar", base.AddDate(0, 0, 1), model.EventStatusDraft, []model.Tag{*tag}, nil)
	for i := 0; i < 6; i++ {
		f.event(t, "Recent "+itoa(uint(i)), base.AddDate(0, 1, i), model.EventStatusPublished, nil, nil)
	}

	recs, err := f.events.Recommendations(ctx, current.ID)
	if err != nil {
		t.Fatalf("Recommendations: %v", err)
	}
	if len(recs) != 6 {
		t.Fatalf("want 5 latest + 1 similar, got %d", len(recs))
	}
	seen := map[uint]bool{}
	for i, ev := range recs {
		if ev.ID == current.ID || ev.ID == draft.ID {
			t.Fatalf("unexpected event %q in recommendations", ev.Title)
		}
		if seen[ev.ID] {
			t.Fatalf("duplicate event %q", ev.Title)
		}
		seen[ev.ID] = true
		if i > 0 && recs[i-1].EventTime.Before(ev.EventTime) {
			t.Fatalf("recommendations not sorted newest first")
		}
	}
	if recs[len(recs)-1].ID != similar.ID {
		t.Fatalf("similar event must be included last, got %q", recs[len(recs)-1].Title)
	}

	missing, err := f.events.Recommendations(ctx, 9999)
	if err != nil || missing != nil {
		t.Fatalf("unknown event: want nil,nil got %v,%v", missing, err)
	}
}

func TestLabelsLinkedToEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	used, _ := f.labels.GetOrCreateTag(ctx, "used")
	if _, err := f.labels.GetOrCreateTag(ctx, "unused"); err != nil {
		t.Fatalf("GetOrCreateTag: %v", err)
	}
	again, _ := f.labels.GetOrCreateTag(ctx, " used ")
	if again.ID != used.ID {
		t.Fatalf("GetOrCreateTag must reuse existing tag")
	}
	pl, _ := f.labels.GetOrCreatePlaylist(ctx, "Onboarding")
	f.labels.GetOrCreatePlaylist(ctx, "Empty")
	f.event(t, "Linked", time.Now(), model.EventStatusPublished, []model.Tag{*used}, []model.Playlist{*pl})

	all, _ := f.labels.ListTags(ctx, false)
	linked, _ := f.labels.ListTags(ctx, true)
	if len(all) != 2 || len(linked) != 1 || linked[0].Name != "used" {
		t.Fatalf("tags: all=%d linked=%v", len(all), linked)
	}
	pls, _ := f.labels.ListPlaylists(ctx, true)
	if len(pls) != 1 || pls[0].Name != "Onboarding" {
		t.Fatalf("playlists linked: %v", pls)
	}
}
