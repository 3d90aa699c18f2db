// Package model はドメインモデルとエラー分類を定義する。
package model

import (
	"errors"
	"fmt"
)

// 定義済みエラー
var (
	// ErrDecode はレスポンスの形式が不正な場合のエラー。リトライしない。
	ErrDecode = errors.New("レスポンスのデコードに失敗しました")
	// ErrUnexpectedStatus はリトライ対象外のHTTPステータス（404など）を受け取った場合のエラー。
	ErrUnexpectedStatus = errors.New("予期しないHTTPステータスです")
	// ErrAbsentResponse はレスポンスのリストがnullだった場合のエラー。
	ErrAbsentResponse = errors.New("レスポンスのリストが存在しません")
	// ErrNotFound は詳細レスポンスに要求IDの作品が含まれない場合のエラー。
	ErrNotFound = errors.New("作品が見つかりません")
	// ErrEmptyCatalog はプレースホルダー除去後のリストが空の場合に使う。失敗ではない。
	ErrEmptyCatalog = errors.New("カタログが空です")
	// ErrPublish は公開先への公開に失敗した場合のエラー。
	ErrPublish = errors.New("作品の公開に失敗しました")
	// ErrNoEligibleItem は選択可能な作品が1件もない場合のエラー。
	ErrNoEligibleItem = errors.New("選択可能な作品がありません")
)

// TransportError はネットワーク障害・タイムアウト・429/5xxを表す。
// 1回の呼び出しの中でリトライ対象となる。
type TransportError struct {
	Op         string // 呼び出し種別: list, detail
	StatusCode int    // HTTPステータス（接続失敗時は0）
	Err        error
}

// Error はerrorインターフェースを実装する。
func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("[%s] 通信エラー (HTTP %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("[%s] 通信エラー: %v", e.Op, e.Err)
}

// Unwrap は元のエラーを返す。
func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsRetryable はエラーが呼び出し単位でリトライ可能な通信エラーかを返す。
func IsRetryable(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
