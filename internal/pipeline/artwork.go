package pipeline

import (
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/biliwall/internal/model"
)

// プレースホルダー作品の固定値
const (
	PlaceholderID          int64 = 66138
	PlaceholderCaption           = "22&33"
	PlaceholderAttribution       = "Bilibili壁纸娘\n动漫"
)

// RewriteImageURL は同一CDNの大サイズ画像を要求するため、最初の "_m." を "_l." に置換する。
func RewriteImageURL(imageURL string) string {
	return strings.Replace(imageURL, "_m.", "_l.", 1)
}

// FormatAttribution は "作者名, yyyy-MM-dd\nカテゴリ" 形式の帰属表示を生成する。
func FormatAttribution(authorName string, postedAtUnixSeconds int64, category string, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	date := time.Unix(postedAtUnixSeconds, 0).In(loc).Format(time.DateOnly)
	return authorName + ", " + date + "\n" + category
}

// DetailURL は作品の詳細ページURLを生成する。
func DetailURL(base string, id int64) string {
	return base + strconv.FormatInt(id, 10)
}

// buildArtwork は一覧の作品メタデータと選択したバリアントから公開用の作品を組み立てる。
func (p *Pipeline) buildArtwork(item model.CatalogItem, variant model.Variant) model.PublishedArtwork {
	return model.PublishedArtwork{
		ID:       strconv.FormatInt(item.ID, 10),
		ImageURL: RewriteImageURL(variant.ImageURL),
		Caption:  p.sanitize(variant.Caption),
		AttributionLine: FormatAttribution(
			p.sanitize(item.AuthorName),
			item.PostedAtUnixSeconds,
			p.sanitize(item.Category),
			p.config.Location,
		),
		SourceURL: item.AuthorURL,
		DetailURL: DetailURL(p.config.DetailURLBase, item.ID),
	}
}

func (p *Pipeline) placeholderArtwork(uri string) model.PublishedArtwork {
	detail := DetailURL(p.config.DetailURLBase, PlaceholderID)
	return model.PublishedArtwork{
		ID:              strconv.FormatInt(PlaceholderID, 10),
		ImageURL:        uri,
		Caption:         PlaceholderCaption,
		AttributionLine: PlaceholderAttribution,
		SourceURL:       detail,
		DetailURL:       detail,
	}
}

func (p *Pipeline) sanitize(s string) string {
	if p.sanitizer == nil {
		return s
	}
	return p.sanitizer.Sanitize(s)
}
