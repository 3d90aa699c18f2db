package model

import "time"

// NoCurrentID は表示中の作品が存在しないことを示すセンチネル値。
// カタログのIDは正の整数のため0は実在しない。
const NoCurrentID int64 = 0

// CatalogItem はカタログから取得した1件の作品。
// IDが同一性を表し、取得後は変更しない。
type CatalogItem struct {
	ID                  int64
	AuthorName          string
	AuthorURL           string
	Category            string
	PostedAtUnixSeconds int64
	// Variants は上流の並び順を保持する（サイズ順である保証はない）。
	Variants []Variant
}

// HasVariants は1件以上の解像度バリアントを持つかを返す。
func (c CatalogItem) HasVariants() bool {
	return len(c.Variants) > 0
}

// Variant は作品の解像度ごとの画像。
type Variant struct {
	ID       string
	ImageURL string
	Width    int
	Height   int
	Caption  string
}

// PublishedArtwork は公開先へ渡す作品情報。コアでは保存しない。
type PublishedArtwork struct {
	ID              string `json:"id"`
	ImageURL        string `json:"image_url"`
	Caption         string `json:"caption"`
	AttributionLine string `json:"attribution_line"`
	SourceURL       string `json:"source_url"`
	DetailURL       string `json:"detail_url"`
}

// ScheduleRequest は次回サイクルの実行予定時刻。
// 新しいリクエストは以前のリクエストを置き換える。
type ScheduleRequest struct {
	At     time.Time
	Reason string
}
