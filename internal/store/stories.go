package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const storyColumns = "id, user_id, child_id, theme_id, art_style_id, title, status, page_count, cover_image_url, " +
	"progress_stage, progress_pages_total, progress_pages_done, progress_message, error_message, " +
	"created_at, updated_at, completed_at"

// CreateStory inserts a story together with its pending page rows in a single
// transaction. Page numbers run from 1 to story.PageCount.
func (s *Store) CreateStory(ctx context.Context, story *Story) (*Story, error) {
	if story == nil {
		return nil, errors.New("story is nil")
	}
	if story.PageCount <= 0 {
		return nil, errors.New("story page count must be positive")
	}
	if story.Status == "" {
		story.Status = StoryStatusDraft
	}
	if !ValidStoryStatus(story.Status) {
		return nil, fmt.Errorf("invalid story status %q", story.Status)
	}
	if story.ID == "" {
		story.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin story tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO stories (
            id, user_id, child_id, theme_id, art_style_id, title, status, page_count, cover_image_url,
            progress_stage, progress_pages_total, progress_pages_done, progress_message,
            error_message, created_at, updated_at, completed_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		story.ID,
		story.UserID,
		story.ChildID,
		story.ThemeID,
		story.ArtStyleID,
		story.Title,
		story.Status,
		story.PageCount,
		nullableString(story.CoverImageURL),
		nullableString(story.ProgressStage),
		story.ProgressPagesTotal,
		story.ProgressPagesDone,
		nullableString(story.ProgressMessage),
		nullableString(story.ErrorMessage),
		timestamp,
		timestamp,
		nullableTime(story.CompletedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert story: %w", err)
	}

	for page := 1; page <= story.PageCount; page++ {
		_, err = tx.ExecContext(
			ctx,
			`INSERT INTO story_pages (story_id, page_number, status, updated_at) VALUES (?, ?, ?, ?)`,
			story.ID,
			page,
			PageStatusPending,
			timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("insert page %d: %w", page, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit story: %w", err)
	}
	return s.GetStory(ctx, story.ID)
}

// GetStory fetches a story by identifier. Returns nil when absent.
func (s *Store) GetStory(ctx context.Context, id string) (*Story, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+storyColumns+` FROM stories WHERE id = ?`, id)
	story, err := scanStory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get story: %w", err)
	}
	return story, nil
}

// ListStories returns every story ordered newest first.
func (s *Store) ListStories(ctx context.Context) ([]*Story, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+storyColumns+` FROM stories ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list stories: %w", err)
	}
	defer rows.Close()

	var stories []*Story
	for rows.Next() {
		story, err := scanStory(rows)
		if err != nil {
			return nil, err
		}
		stories = append(stories, story)
	}
	return stories, rows.Err()
}

// ListStoriesByChild returns stories for a child ordered newest first.
func (s *Store) ListStoriesByChild(ctx context.Context, childID string) ([]*Story, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+storyColumns+` FROM stories WHERE child_id = ? ORDER BY created_at DESC`,
		childID,
	)
	if err != nil {
		return nil, fmt.Errorf("list stories: %w", err)
	}
	defer rows.Close()

	var stories []*Story
	for rows.Next() {
		story, err := scanStory(rows)
		if err != nil {
			return nil, err
		}
		stories = append(stories, story)
	}
	return stories, rows.Err()
}

// ListStoriesByStatus returns stories matching a status ordered by creation time.
func (s *Store) ListStoriesByStatus(ctx context.Context, status StoryStatus) ([]*Story, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+storyColumns+` FROM stories WHERE status = ? ORDER BY created_at`,
		status,
	)
	if err != nil {
		return nil, fmt.Errorf("list stories by status: %w", err)
	}
	defer rows.Close()

	var stories []*Story
	for rows.Next() {
		story, err := scanStory(rows)
		if err != nil {
			return nil, err
		}
		stories = append(stories, story)
	}
	return stories, rows.Err()
}

// UpdateStory persists changes to an existing story.
func (s *Store) UpdateStory(ctx context.Context, story *Story) error {
	if story == nil {
		return errors.New("story is nil")
	}
	if !ValidStoryStatus(story.Status) {
		return fmt.Errorf("invalid story status %q", story.Status)
	}
	story.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE stories
         SET title = ?, status = ?, page_count = ?, cover_image_url = ?,
             progress_stage = ?, progress_pages_total = ?, progress_pages_done = ?, progress_message = ?,
             error_message = ?, updated_at = ?, completed_at = ?
         WHERE id = ?`,
		story.Title,
		story.Status,
		story.PageCount,
		nullableString(story.CoverImageURL),
		nullableString(story.ProgressStage),
		story.ProgressPagesTotal,
		story.ProgressPagesDone,
		nullableString(story.ProgressMessage),
		nullableString(story.ErrorMessage),
		story.UpdatedAt.Format(time.RFC3339Nano),
		nullableTime(story.CompletedAt),
		story.ID,
	)
	if err != nil {
		return fmt.Errorf("update story: %w", err)
	}
	return nil
}

// DeleteStory removes a story and, through cascades, its pages.
func (s *Store) DeleteStory(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM stories WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete story: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// StoryStats returns a count of stories grouped by status.
func (s *Store) StoryStats(ctx context.Context) (map[StoryStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM stories GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("story stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[StoryStatus]int)
	for rows.Next() {
		var status StoryStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

func scanStory(scanner interface{ Scan(dest ...any) error }) (*Story, error) {
	var (
		id           string
		userID       string
		childID      string
		themeID      string
		artStyleID   string
		title        string
		statusStr    string
		pageCount    int
		coverURL     sql.NullString
		stage        sql.NullString
		pagesTotal   sql.NullInt64
		pagesDone    sql.NullInt64
		progressMsg  sql.NullString
		errorMessage sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
		completedRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&userID,
		&childID,
		&themeID,
		&artStyleID,
		&title,
		&statusStr,
		&pageCount,
		&coverURL,
		&stage,
		&pagesTotal,
		&pagesDone,
		&progressMsg,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}

	story := &Story{
		ID:                 id,
		UserID:             userID,
		ChildID:            childID,
		ThemeID:            themeID,
		ArtStyleID:         artStyleID,
		Title:              title,
		Status:             StoryStatus(statusStr),
		PageCount:          pageCount,
		CoverImageURL:      coverURL.String,
		ProgressStage:      stage.String,
		ProgressPagesTotal: int(pagesTotal.Int64),
		ProgressPagesDone:  int(pagesDone.Int64),
		ProgressMessage:    progressMsg.String,
		ErrorMessage:       errorMessage.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		story.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		story.UpdatedAt = updated
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			story.CompletedAt = &completed
		}
	}
	return story, nil
}
