package api

import "tottales/internal/store"

// FromStory converts a store record to its wire form.
func FromStory(story *store.Story, pages []*store.StoryPage) StoryView {
	view := StoryView{
		ID:            story.ID,
		UserID:        story.UserID,
		ChildID:       story.ChildID,
		ThemeID:       story.ThemeID,
		ArtStyleID:    story.ArtStyleID,
		Title:         story.Title,
		Status:        string(story.Status),
		PageCount:     story.PageCount,
		CoverImageURL: story.CoverImageURL,
		ErrorMessage:  story.ErrorMessage,
		CreatedAt:     story.CreatedAt,
		CompletedAt:   story.CompletedAt,
		Progress: ProgressView{
			Stage:      story.ProgressStage,
			PagesDone:  story.ProgressPagesDone,
			PagesTotal: story.ProgressPagesTotal,
			Message:    story.ProgressMessage,
		},
	}
	for _, page := range pages {
		view.Pages = append(view.Pages, FromPage(page))
	}
	return view
}

// FromPage converts a page record to its wire form.
func FromPage(page *store.StoryPage) PageView {
	return PageView{
		PageNumber:        page.PageNumber,
		Text:              page.Text,
		SceneDescription:  page.SceneDescription,
		ImageURL:          page.ImageURL,
		Status:            string(page.Status),
		RegenerationCount: page.RegenerationCount,
	}
}

// FromChild converts a child record to its wire form.
func FromChild(child *store.Child) ChildView {
	return ChildView{
		ID:                   child.ID,
		UserID:               child.UserID,
		Name:                 child.Name,
		Age:                  child.Age,
		Gender:               child.Gender,
		PhotoURLs:            child.PhotoURLs,
		CharacterDescription: child.CharacterDescription,
	}
}
