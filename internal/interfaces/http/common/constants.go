package common

import "time"

const (
	// MaxRequestBody limits JSON request bodies.
	MaxRequestBody = 1 << 20
	// RequestTimeout はハンドラ1回あたりのストア操作の上限。
	RequestTimeout = 5 * time.Second
	// UploadTimeout は写真アップロード用。本文の読み込みを含む。
	UploadTimeout = 30 * time.Second
)
