// Package placeholder は初回表示用のローカルプレースホルダー画像を扱う。
// 画像の配置（アセットのコピー）は対象外で、存在確認とURIの提供のみを行う。
package placeholder

import (
	"net/url"
	"os"
	"path/filepath"
)

// FileAsset はローカルファイルシステム上のプレースホルダー画像。
type FileAsset struct {
	path string
}

// NewFileAsset はFileAssetの新しいインスタンスを生成する。pathが空の場合は常に存在しない扱いとなる。
func NewFileAsset(path string) *FileAsset {
	if path != "" {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}
	return &FileAsset{path: path}
}

// HasPlaceholder は画像ファイルが存在し、空でない通常ファイルであるかを返す。
func (a *FileAsset) HasPlaceholder() bool {
	if a.path == "" {
		return false
	}
	info, err := os.Stat(a.path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Size() > 0
}

// PlaceholderURI は画像のfile:// URIを返す。
func (a *FileAsset) PlaceholderURI() string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(a.path)}
	return u.String()
}
