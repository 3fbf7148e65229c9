package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// CreateTheme inserts a story theme. A missing ID is generated.
func (s *Store) CreateTheme(ctx context.Context, theme *Theme) (*Theme, error) {
	if theme == nil {
		return nil, errors.New("theme is nil")
	}
	if theme.ID == "" {
		theme.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO themes (id, name, description, preview_image_url) VALUES (?, ?, ?, ?)`,
		theme.ID,
		theme.Name,
		theme.Description,
		nullableString(theme.PreviewImageURL),
	)
	if err != nil {
		return nil, fmt.Errorf("insert theme: %w", err)
	}
	return s.GetTheme(ctx, theme.ID)
}

// GetTheme fetches a theme by identifier. Returns nil when absent.
func (s *Store) GetTheme(ctx context.Context, id string) (*Theme, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, description, preview_image_url FROM themes WHERE id = ?`, id)
	theme, err := scanTheme(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get theme: %w", err)
	}
	return theme, nil
}

// ListThemes returns every theme ordered by name.
func (s *Store) ListThemes(ctx context.Context) ([]*Theme, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, description, preview_image_url FROM themes ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list themes: %w", err)
	}
	defer rows.Close()

	var themes []*Theme
	for rows.Next() {
		theme, err := scanTheme(rows)
		if err != nil {
			return nil, err
		}
		themes = append(themes, theme)
	}
	return themes, rows.Err()
}

// UpdateThemePreview stores the generated preview image URL for a theme.
func (s *Store) UpdateThemePreview(ctx context.Context, id, previewURL string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE themes SET preview_image_url = ? WHERE id = ?`, nullableString(previewURL), id)
	if err != nil {
		return fmt.Errorf("update theme preview: %w", err)
	}
	return nil
}

// CreateArtStyle inserts an illustration style. A missing ID is generated.
func (s *Store) CreateArtStyle(ctx context.Context, style *ArtStyle) (*ArtStyle, error) {
	if style == nil {
		return nil, errors.New("art style is nil")
	}
	if style.ID == "" {
		style.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO art_styles (id, name, description, preview_image_url) VALUES (?, ?, ?, ?)`,
		style.ID,
		style.Name,
		style.Description,
		nullableString(style.PreviewImageURL),
	)
	if err != nil {
		return nil, fmt.Errorf("insert art style: %w", err)
	}
	return s.GetArtStyle(ctx, style.ID)
}

// GetArtStyle fetches an illustration style by identifier. Returns nil when absent.
func (s *Store) GetArtStyle(ctx context.Context, id string) (*ArtStyle, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, description, preview_image_url FROM art_styles WHERE id = ?`, id)
	style, err := scanArtStyle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get art style: %w", err)
	}
	return style, nil
}

// ListArtStyles returns every illustration style ordered by name.
func (s *Store) ListArtStyles(ctx context.Context) ([]*ArtStyle, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, description, preview_image_url FROM art_styles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list art styles: %w", err)
	}
	defer rows.Close()

	var styles []*ArtStyle
	for rows.Next() {
		style, err := scanArtStyle(rows)
		if err != nil {
			return nil, err
		}
		styles = append(styles, style)
	}
	return styles, rows.Err()
}

// UpdateArtStylePreview stores the generated preview image URL for a style.
func (s *Store) UpdateArtStylePreview(ctx context.Context, id, previewURL string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE art_styles SET preview_image_url = ? WHERE id = ?`, nullableString(previewURL), id)
	if err != nil {
		return fmt.Errorf("update art style preview: %w", err)
	}
	return nil
}

func scanTheme(scanner interface{ Scan(dest ...any) error }) (*Theme, error) {
	var (
		id          string
		name        string
		description string
		preview     sql.NullString
	)
	if err := scanner.Scan(&id, &name, &description, &preview); err != nil {
		return nil, err
	}
	return &Theme{ID: id, Name: name, Description: description, PreviewImageURL: preview.String}, nil
}

func scanArtStyle(scanner interface{ Scan(dest ...any) error }) (*ArtStyle, error) {
	var (
		id          string
		name        string
		description string
		preview     sql.NullString
	)
	if err := scanner.Scan(&id, &name, &description, &preview); err != nil {
		return nil, err
	}
	return &ArtStyle{ID: id, Name: name, Description: description, PreviewImageURL: preview.String}, nil
}
