// internal/api/error_codes.go
package api

// API错误代码常量
const (
	// 通用错误
	ErrorBadRequest     = "BAD_REQUEST"
	ErrorNotFound       = "NOT_FOUND"
	ErrorInternalError  = "INTERNAL_ERROR"
	ErrorUnauthorized   = "UNAUTHORIZED"
	ErrorRateLimited    = "RATE_LIMIT_EXCEEDED"
	ErrorPayloadTooLong = "PAYLOAD_TOO_LARGE"

	// 时间线相关错误
	ErrorUnknownEvent   = "UNKNOWN_EVENT"
	ErrorInvalidMonth   = "INVALID_MONTH"
	ErrorBranchNotFound = "BRANCH_NOT_FOUND"

	// 音频相关错误
	ErrorClipNotFound      = "CLIP_NOT_FOUND"
	ErrorAudioInvalid      = "AUDIO_INVALID"
	ErrorAudioUnavailable  = "AUDIO_UNAVAILABLE"
	ErrorStreamUnavailable = "STREAM_UNAVAILABLE"

	// 导出相关错误
	ErrorExportFailed   = "EXPORT_FAILED"
	ErrorExportNotFound = "EXPORT_NOT_FOUND"
)
