package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const childColumns = "id, user_id, name, age, gender, photo_urls, character_description, created_at, updated_at"

// CreateChild inserts a child profile. A missing ID is generated.
func (s *Store) CreateChild(ctx context.Context, child *Child) (*Child, error) {
	if child == nil {
		return nil, errors.New("child is nil")
	}
	if child.ID == "" {
		child.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	photos, err := json.Marshal(photoSlice(child.PhotoURLs))
	if err != nil {
		return nil, fmt.Errorf("marshal photo urls: %w", err)
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO children (id, user_id, name, age, gender, photo_urls, character_description, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		child.ID,
		child.UserID,
		child.Name,
		child.Age,
		child.Gender,
		string(photos),
		nullableString(child.CharacterDescription),
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert child: %w", err)
	}
	return s.GetChild(ctx, child.ID)
}

// GetChild fetches a child profile by identifier. Returns nil when absent.
func (s *Store) GetChild(ctx context.Context, id string) (*Child, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+childColumns+` FROM children WHERE id = ?`, id)
	child, err := scanChild(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get child: %w", err)
	}
	return child, nil
}

// ListChildren returns profiles belonging to a user ordered by creation
// time. An empty user ID lists every profile.
func (s *Store) ListChildren(ctx context.Context, userID string) ([]*Child, error) {
	query := `SELECT ` + childColumns + ` FROM children ORDER BY created_at`
	args := []any{}
	if userID != "" {
		query = `SELECT ` + childColumns + ` FROM children WHERE user_id = ? ORDER BY created_at`
		args = append(args, userID)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	defer rows.Close()

	var children []*Child
	for rows.Next() {
		child, err := scanChild(rows)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, rows.Err()
}

// UpdateChildPhotos replaces a child's reference photo URLs.
func (s *Store) UpdateChildPhotos(ctx context.Context, id string, photoURLs []string) error {
	photos, err := json.Marshal(photoSlice(photoURLs))
	if err != nil {
		return fmt.Errorf("marshal photo urls: %w", err)
	}
	_, err = s.db.ExecContext(
		ctx,
		`UPDATE children SET photo_urls = ?, updated_at = ? WHERE id = ?`,
		string(photos),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("update child photos: %w", err)
	}
	return nil
}

// UpdateChildCharacterDescription caches the visual description derived from
// the child's reference photos.
func (s *Store) UpdateChildCharacterDescription(ctx context.Context, id, description string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE children SET character_description = ?, updated_at = ? WHERE id = ?`,
		nullableString(description),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("update character description: %w", err)
	}
	return nil
}

// RemoveChild deletes a child profile and, through cascades, its stories.
func (s *Store) RemoveChild(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM children WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete child: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

func scanChild(scanner interface{ Scan(dest ...any) error }) (*Child, error) {
	var (
		id          string
		userID      string
		name        string
		age         int
		gender      string
		photosRaw   sql.NullString
		description sql.NullString
		createdRaw  sql.NullString
		updatedRaw  sql.NullString
	)

	if err := scanner.Scan(&id, &userID, &name, &age, &gender, &photosRaw, &description, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}

	child := &Child{
		ID:                   id,
		UserID:               userID,
		Name:                 name,
		Age:                  age,
		Gender:               gender,
		CharacterDescription: description.String,
	}
	if photosRaw.Valid && photosRaw.String != "" {
		if err := json.Unmarshal([]byte(photosRaw.String), &child.PhotoURLs); err != nil {
			return nil, fmt.Errorf("decode photo urls: %w", err)
		}
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		child.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		child.UpdatedAt = updated
	}
	return child, nil
}

func photoSlice(urls []string) []string {
	if urls == nil {
		return []string{}
	}
	return urls
}
