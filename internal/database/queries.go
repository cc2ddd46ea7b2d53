package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"feedbrief/internal/domain"
)

const maxErrorLen = 500

func (d *Database) AddFeed(
	ctx context.Context,
	feedURL string,
	feedTitle string,
) (int64, error) {
	feedURL = strings.TrimSpace(feedURL)
	if feedURL == "" {
		return 0, errors.New("feed URL is empty")
	}

	feedTitle = strings.TrimSpace(feedTitle)
	if feedTitle == "" {
		feedTitle = feedURL
	}

	query := "insert or ignore into feeds (url, title) values (?, ?)"

	if _, err := d.db.ExecContext(ctx, query, feedURL, feedTitle); err != nil {
		return 0, fmt.Errorf("insert feed: %w", err)
	}

	var id int64
	if err := d.db.QueryRowContext(ctx, "select id from feeds where url = ?", feedURL).Scan(&id); err != nil {
		return 0, fmt.Errorf("select feed ID: %w", err)
	}

	return id, nil
}

func (d *Database) UpdateFeedTitle(ctx context.Context, feedID int64, feedTitle string) error {
	feedTitle = strings.TrimSpace(feedTitle)
	if feedTitle == "" {
		return errors.New("feed title is empty")
	}

	query := "update feeds set title = ? where id = ?"

	_, err := d.db.ExecContext(ctx, query, feedTitle, feedID)

	return err
}

// RemoveFeed deletes the feed and its items. It reports whether a feed existed.
func (d *Database) RemoveFeed(ctx context.Context, feedID int64) (bool, error) {
	res, err := d.db.ExecContext(ctx, "delete from feeds where id = ?", feedID)
	if err != nil {
		return false, fmt.Errorf("delete feed: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	return n > 0, nil
}

func (d *Database) GetFeeds(ctx context.Context) ([]domain.StoredFeed, error) {
	query := "select id, url, title from feeds order by id"

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer func() {
		if err = rows.Close(); err != nil {
			d.log.ErrorContext(ctx, "Failed to close rows",
				"error", err,
				"operation", "GetFeeds")
		}
	}()

	var feeds []domain.StoredFeed
	for rows.Next() {
		var f domain.StoredFeed
		if err = rows.Scan(&f.ID, &f.URL, &f.Title); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		f.URL = strings.TrimSpace(f.URL)
		f.Title = strings.TrimSpace(f.Title)

		feeds = append(feeds, f)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return feeds, nil
}

// InsertItems stores new items and ignores ones whose URL is already known.
// It returns how many items were actually inserted.
func (d *Database) InsertItems(ctx context.Context, items []domain.Item) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			d.log.ErrorContext(ctx, "Failed to roll back tx",
				"error", rbErr,
				"operation", "InsertItems")
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `insert or ignore into items
	(feed_id, url, title, body, published_at)
	values (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer func() {
		if closeErr := stmt.Close(); closeErr != nil {
			d.log.ErrorContext(ctx, "Failed to close statement",
				"error", closeErr,
				"operation", "InsertItems")
		}
	}()

	inserted := 0
	for _, it := range items {
		res, execErr := stmt.ExecContext(ctx,
			it.FeedID,
			strings.TrimSpace(it.URL),
			strings.TrimSpace(it.Title),
			it.Body,
			it.PublishedAt.UTC().Unix())
		if execErr != nil {
			return 0, fmt.Errorf("insert item (URL = %s): %w", it.URL, execErr)
		}

		n, raErr := res.RowsAffected()
		if raErr != nil {
			return 0, fmt.Errorf("rows affected: %w", raErr)
		}
		inserted += int(n)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return inserted, nil
}

// GetPendingItems returns the newest items without a summary that have not
// failed maxFailures times yet.
func (d *Database) GetPendingItems(ctx context.Context, limit int, maxFailures int) ([]domain.Item, error) {
	query := `select id, feed_id, url, title, body, published_at
	from items
	where summarized_at is null
	and failure_count < ?
	order by published_at desc
	limit ?`

	rows, err := d.db.QueryContext(ctx, query, maxFailures, limit)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer func() {
		if err = rows.Close(); err != nil {
			d.log.ErrorContext(ctx, "Failed to close rows",
				"error", err,
				"limit", limit,
				"operation", "GetPendingItems")
		}
	}()

	var items []domain.Item
	for rows.Next() {
		var (
			it        domain.Item
			published int64
		)
		if err = rows.Scan(&it.ID, &it.FeedID, &it.URL, &it.Title, &it.Body, &published); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		it.PublishedAt = time.Unix(published, 0).UTC()
		items = append(items, it)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return items, nil
}

func (d *Database) SaveSummary(
	ctx context.Context,
	itemID int64,
	summary string,
	provider string,
	at time.Time,
) error {
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return errors.New("summary is empty")
	}

	query := `update items
	set summary = ?, provider = ?, summarized_at = ?, last_error = null
	where id = ?`

	_, err := d.db.ExecContext(ctx, query, summary, provider, at.UTC().Unix(), itemID)

	return err
}

func (d *Database) RecordFailure(ctx context.Context, itemID int64, reason string) error {
	if runes := []rune(reason); len(runes) > maxErrorLen {
		reason = string(runes[:maxErrorLen])
	}

	query := `update items
	set failure_count = failure_count + 1, last_error = ?
	where id = ?`

	_, err := d.db.ExecContext(ctx, query, reason, itemID)

	return err
}

func (d *Database) GetUndeliveredSummaries(ctx context.Context, limit int) ([]domain.DigestEntry, error) {
	query := `select i.id, i.title, i.url, i.summary, f.id, f.title, f.url
	from items as i
	join feeds as f
	on f.id = i.feed_id
	where i.summarized_at is not null
	and i.delivered_at is null
	order by f.id, i.published_at
	limit ?`

	rows, err := d.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer func() {
		if err = rows.Close(); err != nil {
			d.log.ErrorContext(ctx, "Failed to close rows",
				"error", err,
				"limit", limit,
				"operation", "GetUndeliveredSummaries")
		}
	}()

	var entries []domain.DigestEntry
	for rows.Next() {
		var e domain.DigestEntry
		if err = rows.Scan(&e.ItemID, &e.Title, &e.URL, &e.Summary, &e.FeedID, &e.FeedTitle, &e.FeedURL); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		entries = append(entries, e)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return entries, nil
}

func (d *Database) MarkDelivered(ctx context.Context, itemIDs []int64, at time.Time) error {
	if len(itemIDs) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(itemIDs)), ",")
	query := "update items set delivered_at = ? where id in (" + placeholders + ")"

	args := make([]any, 0, len(itemIDs)+1)
	args = append(args, at.UTC().Unix())
	for _, id := range itemIDs {
		args = append(args, id)
	}

	_, err := d.db.ExecContext(ctx, query, args...)

	return err
}
