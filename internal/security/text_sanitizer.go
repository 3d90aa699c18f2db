// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はカタログAPIから受け取った作者名・キャプション・カテゴリから
// マークアップを除去し、プレーンテキストとして公開できる形にする。
// WebhookGuard は公開先Webhookへの送信をSSRFから保護する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer は上流の文字列をプレーンテキストに正規化する。
// bluemondayのStrictPolicyで全タグを除去した後、エスケープされた実体参照を元に戻す。
// 結果はHTMLとして埋め込むためのものではなく、表示用テキストとして扱う。
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() *TextSanitizer {
	return &TextSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize は文字列からタグを除去し、前後の空白を取り除いて返す。
// 同一入力に対して常に同一出力を返す。
func (s *TextSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(raw)))
}
