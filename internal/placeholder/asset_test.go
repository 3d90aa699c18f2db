package placeholder

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileAsset_Present(t *testing.T) {
	path := filepath.Join(t.TempDir(), "placeholder.jpg")
	if err := os.WriteFile(path, []byte{0xff, 0xd8, 0xff}, 0o644); err != nil {
		t.Fatalf("ファイルの作成に失敗しました: %v", err)
	}

	a := NewFileAsset(path)
	if !a.HasPlaceholder() {
		t.Error("存在するファイルはHasPlaceholder=trueであるべき")
	}
	uri := a.PlaceholderURI()
	if !strings.HasPrefix(uri, "file:///") || !strings.HasSuffix(uri, "/placeholder.jpg") {
		t.Errorf("PlaceholderURI = %q", uri)
	}
}

func TestFileAsset_Absent(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{"パス未設定", func(*testing.T) string { return "" }},
		{"存在しないファイル", func(t *testing.T) string { return filepath.Join(t.TempDir(), "missing.jpg") }},
		{"ディレクトリ", func(t *testing.T) string { return t.TempDir() }},
		{"空ファイル", func(t *testing.T) string {
			path := filepath.Join(t.TempDir(), "empty.jpg")
			if err := os.WriteFile(path, nil, 0o644); err != nil {
				t.Fatalf("ファイルの作成に失敗しました: %v", err)
			}
			return path
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if NewFileAsset(tt.path(t)).HasPlaceholder() {
				t.Error("HasPlaceholder = true, want false")
			}
		})
	}
}
