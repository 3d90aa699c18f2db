package catalog

import "github.com/hitoshi/biliwall/internal/model"

// wallpaperDTO はカタログAPIが返す作品1件のJSON表現。
type wallpaperDTO struct {
	ID         int64           `json:"il_id"`
	AuthorName string          `json:"author_name"`
	AuthorURL  string          `json:"author_url"`
	Type       string          `json:"type"`
	PostTime   int64           `json:"posttime"`
	Detail     []resolutionDTO `json:"detail"`
}

// resolutionDTO は解像度バリアント1件のJSON表現。
type resolutionDTO struct {
	ID     string `json:"id"`
	File   string `json:"il_file"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Title  string `json:"title"`
}

func (d wallpaperDTO) toModel() model.CatalogItem {
	variants := make([]model.Variant, 0, len(d.Detail))
	for _, r := range d.Detail {
		variants = append(variants, model.Variant{
			ID:       r.ID,
			ImageURL: r.File,
			Width:    r.Width,
			Height:   r.Height,
			Caption:  r.Title,
		})
	}
	return model.CatalogItem{
		ID:                  d.ID,
		AuthorName:          d.AuthorName,
		AuthorURL:           d.AuthorURL,
		Category:            d.Type,
		PostedAtUnixSeconds: d.PostTime,
		Variants:            variants,
	}
}
