package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const pageColumns = "id, story_id, page_number, text, scene_description, image_prompt, image_url, status, regeneration_count, updated_at"

// GetPage fetches a single page by story and page number. Returns nil when absent.
func (s *Store) GetPage(ctx context.Context, storyID string, pageNumber int) (*StoryPage, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+pageColumns+` FROM story_pages WHERE story_id = ? AND page_number = ?`,
		storyID,
		pageNumber,
	)
	page, err := scanPage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get page: %w", err)
	}
	return page, nil
}

// ListPages returns every page of a story in page order.
func (s *Store) ListPages(ctx context.Context, storyID string) ([]*StoryPage, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+pageColumns+` FROM story_pages WHERE story_id = ? ORDER BY page_number`,
		storyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	var pages []*StoryPage
	for rows.Next() {
		page, err := scanPage(rows)
		if err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}
	return pages, rows.Err()
}

// UpdatePage persists changes to an existing page.
func (s *Store) UpdatePage(ctx context.Context, page *StoryPage) error {
	if page == nil {
		return errors.New("page is nil")
	}
	if !ValidPageStatus(page.Status) {
		return fmt.Errorf("invalid page status %q", page.Status)
	}
	page.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE story_pages
         SET text = ?, scene_description = ?, image_prompt = ?, image_url = ?,
             status = ?, regeneration_count = ?, updated_at = ?
         WHERE story_id = ? AND page_number = ?`,
		page.Text,
		page.SceneDescription,
		page.ImagePrompt,
		nullableString(page.ImageURL),
		page.Status,
		page.RegenerationCount,
		page.UpdatedAt.Format(time.RFC3339Nano),
		page.StoryID,
		page.PageNumber,
	)
	if err != nil {
		return fmt.Errorf("update page: %w", err)
	}
	return nil
}

// PageStats returns a count of a story's pages grouped by status.
func (s *Store) PageStats(ctx context.Context, storyID string) (map[PageStatus]int, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT status, COUNT(1) FROM story_pages WHERE story_id = ? GROUP BY status`,
		storyID,
	)
	if err != nil {
		return nil, fmt.Errorf("page stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[PageStatus]int)
	for rows.Next() {
		var status PageStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

func scanPage(scanner interface{ Scan(dest ...any) error }) (*StoryPage, error) {
	var (
		id          int64
		storyID     string
		pageNumber  int
		text        string
		scene       string
		imagePrompt string
		imageURL    sql.NullString
		statusStr   string
		regenCount  int
		updatedRaw  sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&storyID,
		&pageNumber,
		&text,
		&scene,
		&imagePrompt,
		&imageURL,
		&statusStr,
		&regenCount,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	page := &StoryPage{
		ID:                id,
		StoryID:           storyID,
		PageNumber:        pageNumber,
		Text:              text,
		SceneDescription:  scene,
		ImagePrompt:       imagePrompt,
		ImageURL:          imageURL.String,
		Status:            PageStatus(statusStr),
		RegenerationCount: regenCount,
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		page.UpdatedAt = updated
	}
	return page, nil
}
