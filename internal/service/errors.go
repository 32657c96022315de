package service

import "errors"

var (
	ErrInvalidSide      = errors.New("side must be attack or defense")
	ErrInvalidSlotCount = errors.New("query must have exactly six character slots")
	ErrEmptyQuery       = errors.New("検索条件を1つ以上選択してください。")
	ErrInvalidRow       = errors.New("invalid battle log row")
)

var (
	ErrWriteFailed         = errors.New("スプレッドシートの更新に失敗しました")
	ErrConversionFailed    = errors.New("しらす式変換が失敗しました")
	ErrConvertedRowMissing = errors.New("出力結果3行目の取得に失敗しました")
)

const (
	ReasonWriteFailed         = "write_failed"
	ReasonConversionFailed    = "conversion_failed"
	ReasonConvertedRowMissing = "converted_row_missing"
	ReasonInvalidRow          = "invalid_row"
)

// FailureReason maps a write-path error to a stable reason code. Unknown
// errors map to "".
func FailureReason(err error) string {
	switch {
	case errors.Is(err, ErrWriteFailed):
		return ReasonWriteFailed
	case errors.Is(err, ErrConversionFailed):
		return ReasonConversionFailed
	case errors.Is(err, ErrConvertedRowMissing):
		return ReasonConvertedRowMissing
	case errors.Is(err, ErrInvalidRow):
		return ReasonInvalidRow
	}
	return ""
}

// IsValidation reports whether err rejects the caller's input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidSide) ||
		errors.Is(err, ErrInvalidSlotCount) ||
		errors.Is(err, ErrEmptyQuery) ||
		errors.Is(err, ErrInvalidRow)
}
