// Package importer bulk-loads events from the sessions spreadsheet export.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"sessions-portal/logger"
	"sessions-portal/model"
	"sessions-portal/repository"
)

// PublishDateLayout is the Publish Date column format (MM/DD/YYYY).
const PublishDateLayout = "01/02/2006"

var requiredColumns = []string{"Title", "Details", "Trainer", "Publish Date", "Link", "Playlist", "Tags"}

// Submitter queues an asset for download. *dispatch.Dispatcher satisfies it.
type Submitter interface {
	Submit(ctx context.Context, assetID uint, link string) error
}

// Options 导入选项
type Options struct {
	DryRun            bool
	SkipVideoDownload bool
	Creator           *model.User // nil: first staff user, then first presenter
	PresenterDomain   string
}

// Importer 事件批量导入
type Importer struct {
	users     repository.UserRepository
	events    repository.EventRepository
	labels    repository.LabelRepository
	assets    repository.VideoAssetRepository
	submitter Submitter
}

func New(users repository.UserRepository, events repository.EventRepository, labels repository.LabelRepository,
	assets repository.VideoAssetRepository, submitter Submitter) *Importer {
	return &Importer{users: users, events: events, labels: labels, assets: assets, submitter: submitter}
}

type row struct {
	num         int
	title       string
	description string
	trainers    []string
	publishDate string
	link        string
	playlists   []string
	tags        []string
}

// ImportFile opens path and imports it.
func (im *Importer) ImportFile(ctx context.Context, path string, opts Options) (*Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return im.Import(ctx, f, opts)
}

// Import processes every row. A bad row is recorded in the summary and does
// not stop the import; a malformed header does.
func (im *Importer) Import(ctx context.Context, r io.Reader, opts Options) (*Summary, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	sum := newSummary(opts.DryRun)
	fallbackCreator, err := im.defaultCreator(ctx, opts)
	if err != nil {
		return nil, err
	}

	for num := 1; ; num++ {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			sum.fail(num, "", err)
			continue
		}
		field := func(col string) string {
			if i := index[col]; i < len(record) {
				return strings.TrimSpace(record[i])
			}
			return ""
		}
		rw := row{
			num:         num,
			title:       field("Title"),
			description: field("Details"),
			trainers:    splitTrainers(field("Trainer")),
			publishDate: field("Publish Date"),
			link:        field("Link"),
			playlists:   splitList(field("Playlist")),
			tags:        splitList(field("Tags")),
		}
		sum.Rows++
		if err := im.processRow(ctx, rw, opts, fallbackCreator, sum); err != nil {
			sum.fail(num, rw.title, err)
			logger.Warn("import row failed", logger.Int("row", num), logger.String("title", rw.title), logger.ErrorField(err))
		}
	}

	logger.Info("import finished",
		logger.Int("rows", sum.Rows),
		logger.Int("created", len(sum.NewEvents)),
		logger.Int("skipped", len(sum.ExistingEvents)),
		logger.Int("failed", len(sum.Failures)),
		logger.Bool("dryRun", opts.DryRun))
	return sum, nil
}

func (im *Importer) defaultCreator(ctx context.Context, opts Options) (*model.User, error) {
	if opts.Creator != nil {
		return opts.Creator, nil
	}
	return im.users.FirstStaff(ctx)
}

func (im *Importer) processRow(ctx context.Context, rw row, opts Options, creator *model.User, sum *Summary) error {
	if rw.title == "" {
		return errors.New("empty title")
	}
	eventTime, err := time.ParseInLocation(PublishDateLayout, rw.publishDate, time.Local)
	if err != nil {
		return fmt.Errorf("invalid date format: %q", rw.publishDate)
	}
	label := fmt.Sprintf("%s (%s)", rw.title, rw.publishDate)

	exists, err := im.events.ExistsByTitleAndTime(ctx, rw.title, eventTime)
	if err != nil {
		return err
	}
	if exists {
		sum.ExistingEvents.add(label)
		return nil
	}

	presenters, err := im.presenters(ctx, rw.trainers, opts, sum)
	if err != nil {
		return err
	}
	tags, err := im.tags(ctx, rw.tags, opts.DryRun, sum)
	if err != nil {
		return err
	}
	playlists, err := im.playlists(ctx, rw.playlists, opts.DryRun, sum)
	if err != nil {
		return err
	}

	if opts.DryRun {
		sum.NewEvents.add(label)
		if rw.link != "" {
			sum.NewVideoAssets.add(label)
		}
		sum.Parsed = append(sum.Parsed, ParsedEvent{
			Title:       rw.title,
			Description: abbreviate(rw.description, 30),
			Presenters:  rw.trainers,
			Tags:        rw.tags,
			Playlists:   rw.playlists,
			PublishDate: rw.publishDate,
			Link:        rw.link,
		})
		return nil
	}

	if creator == nil && len(presenters) > 0 {
		creator = presenters[0]
	}
	if creator == nil {
		return errors.New("no creator: pass --creator or create a staff user")
	}

	event := &model.Event{
		CreatorID:   creator.ID,
		Title:       rw.title,
		Description: rw.description,
		EventTime:   eventTime,
		EventType:   model.EventTypeSession,
		Status:      model.EventStatusPublished,
		Tags:        tags,
		Playlists:   playlists,
	}
	if err := im.events.Create(ctx, event); err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	for _, u := range presenters {
		if err := im.events.AddPresenter(ctx, event.ID, u.ID); err != nil {
			return fmt.Errorf("add presenter %s: %w", u.Username, err)
		}
	}
	sum.NewEvents.add(label)

	if rw.link != "" {
		asset, err := im.queueVideo(ctx, event, rw.link, opts.SkipVideoDownload)
		if err != nil {
			return err
		}
		sum.NewVideoAssets.add(label)
		sum.Assets = append(sum.Assets, AssetRef{Event: label, ID: asset.ID, Status: asset.Status, Link: rw.link})
	}
	return nil
}

func (im *Importer) queueVideo(ctx context.Context, event *model.Event, link string, skip bool) (*model.VideoAsset, error) {
	asset := &model.VideoAsset{
		EventID:    &event.ID,
		Title:      event.Title,
		Status:     model.VideoStatusProcessing,
		SourceLink: link,
	}
	if err := im.assets.Create(ctx, asset); err != nil {
		return nil, fmt.Errorf("create video asset: %w", err)
	}
	if skip || im.submitter == nil {
		logger.Info("skipping video download", logger.Uint("assetId", asset.ID))
		return asset, nil
	}
	if err := im.submitter.Submit(ctx, asset.ID, link); err != nil {
		logger.Error("failed to start download task", logger.Uint("assetId", asset.ID), logger.ErrorField(err))
		token := uuid.NewString()
		if ok, _ := im.assets.Claim(ctx, asset.ID, token); ok {
			im.assets.MarkFailed(ctx, asset.ID, token, "dispatch: "+err.Error())
		}
		asset.Status = model.VideoStatusFailed
	}
	return asset, nil
}

// presenters matches trainers by first/last name and creates the missing ones.
func (im *Importer) presenters(ctx context.Context, names []string, opts Options, sum *Summary) ([]*model.User, error) {
	users := make([]*model.User, 0, len(names))
	for _, name := range names {
		parts := strings.Fields(name)
		if len(parts) == 0 {
			continue
		}
		first, last := parts[0], strings.Join(parts[1:], " ")
		username := strings.ToLower(strings.Join(parts, "_"))

		u, err := im.users.GetByFullName(ctx, first, last)
		if err != nil {
			return nil, err
		}
		if u != nil {
			sum.ExistingPresenters.add(u.Username)
			users = append(users, u)
			continue
		}
		sum.NewPresenters.add(username)
		if opts.DryRun {
			continue
		}
		u = &model.User{
			Email:     presenterEmail(username, opts.PresenterDomain),
			Username:  username,
			FirstName: first,
			LastName:  last,
			IsActive:  true,
		}
		if err := im.users.Create(ctx, u); err != nil {
			return nil, fmt.Errorf("create presenter %s: %w", username, err)
		}
		users = append(users, u)
	}
	return users, nil
}

func (im *Importer) tags(ctx context.Context, names []string, dryRun bool, sum *Summary) ([]model.Tag, error) {
	out := make([]model.Tag, 0, len(names))
	for _, name := range names {
		tag, err := im.labels.FindTag(ctx, name)
		if err != nil {
			return nil, err
		}
		if tag != nil {
			sum.ExistingTags.add(name)
			out = append(out, *tag)
			continue
		}
		sum.NewTags.add(name)
		if dryRun {
			continue
		}
		if tag, err = im.labels.GetOrCreateTag(ctx, name); err != nil {
			return nil, fmt.Errorf("create tag %s: %w", name, err)
		}
		out = append(out, *tag)
	}
	return out, nil
}

func (im *Importer) playlists(ctx context.Context, names []string, dryRun bool, sum *Summary) ([]model.Playlist, error) {
	out := make([]model.Playlist, 0, len(names))
	for _, name := range names {
		pl, err := im.labels.FindPlaylist(ctx, name)
		if err != nil {
			return nil, err
		}
		if pl != nil {
			sum.ExistingPlaylists.add(name)
			out = append(out, *pl)
			continue
		}
		sum.NewPlaylists.add(name)
		if dryRun {
			continue
		}
		if pl, err = im.labels.GetOrCreatePlaylist(ctx, name); err != nil {
			return nil, fmt.Errorf("create playlist %s: %w", name, err)
		}
		out = append(out, *pl)
	}
	return out, nil
}

var presenterEmailUnsafe = regexp.MustCompile(`[^a-z0-9._-]+`)

func presenterEmail(username, domain string) string {
	if domain == "" {
		domain = "example.com"
	}
	return presenterEmailUnsafe.ReplaceAllString(username, "") + "@" + domain
}

var trainerSeparator = regexp.MustCompile(`\s*(?:,|&|\band\b)\s*`)

func splitTrainers(s string) []string {
	return nonEmpty(trainerSeparator.Split(s, -1))
}

func splitList(s string) []string {
	return nonEmpty(strings.Split(s, ","))
}

func nonEmpty(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		it = strings.Join(strings.Fields(it), " ")
		if it == "" || seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, it)
	}
	return out
}

func abbreviate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// nameSet keeps insertion-independent, sorted output.
type nameSet map[string]struct{}

func (s nameSet) add(name string) { s[name] = struct{}{} }

func (s nameSet) List() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
