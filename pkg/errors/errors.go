// Package errors provides structured error handling for the application.
// It defines AppError type with error codes so callers can distinguish
// which pipeline concern failed without parsing message strings.
package errors

import (
	"errors"
	"fmt"
)

// Error codes organized by category
const (
	// General errors (1000-1099)
	CodeSuccess       = 0
	CodeUnknown       = 1000
	CodeInvalidParams = 1001
	CodeNotFound      = 1002
	CodeCancelled     = 1003

	// Media probing / preparation errors (1100-1199)
	CodeProbeFailed     = 1100
	CodeAudioExtract    = 1101
	CodeVideoNotFound   = 1102
	CodeSeparateFailed  = 1103
	CodeDenoiseFailed   = 1104

	// Recognition errors (1200-1299)
	CodeRecognizeFailed  = 1200
	CodeRecognizeTimeout = 1201
	CodeEmptyRecognition = 1202

	// Translation errors (1300-1399)
	CodeTranslateFailed   = 1300
	CodeTranslateTimeout  = 1301
	CodeTranslateMismatch = 1302

	// Dubbing / TTS errors (1400-1499)
	CodeSynthesizeFailed = 1400
	CodeVoiceNotFound    = 1401
	CodeAudioMixFailed   = 1402

	// Alignment errors (1500-1599)
	CodeAlignFailed = 1500

	// Assembly / muxing errors (1600-1699)
	CodeMuxFailed      = 1600
	CodeEncoderAborted = 1601

	// Storage errors (1700-1799)
	CodeDBError        = 1700
	CodeFileNotFound   = 1701
	CodeFileWriteError = 1702
)

// AppError represents a structured application error
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
	Cause   error  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code int, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WrapWithDetail wraps an error with additional detail
func WrapWithDetail(code int, message string, detail string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Detail:  detail,
		Cause:   cause,
	}
}

// Is checks if the target error is an AppError with the specified code
func Is(err error, code int) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// GetCode extracts error code from error, returns CodeUnknown if not AppError
func GetCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// GetMessage extracts message from error
func GetMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

// Predefined common errors
var (
	ErrInvalidParams = New(CodeInvalidParams, "参数错误 Invalid parameters")
	ErrNotFound      = New(CodeNotFound, "资源不存在 Resource not found")
	ErrCancelled     = New(CodeCancelled, "任务已停止 Task cancelled")

	// Preparation
	ErrProbeFailed   = New(CodeProbeFailed, "视频探测失败 Video probe failed")
	ErrAudioExtract  = New(CodeAudioExtract, "音频提取失败 Audio extraction failed")
	ErrVideoNotFound = New(CodeVideoNotFound, "视频文件不存在 Video file not found")

	// Recognition
	ErrRecognizeFailed  = New(CodeRecognizeFailed, "语音识别失败 Recognition failed")
	ErrEmptyRecognition = New(CodeEmptyRecognition, "识别结果为空 Empty recognition result")

	// Translation
	ErrTranslateFailed   = New(CodeTranslateFailed, "翻译失败 Translation failed")
	ErrTranslateMismatch = New(CodeTranslateMismatch, "翻译行数不匹配 Translation line count mismatch")

	// Dubbing
	ErrSynthesizeFailed = New(CodeSynthesizeFailed, "语音合成失败 Synthesis failed")
	ErrVoiceNotFound    = New(CodeVoiceNotFound, "音色不存在 Voice not found")

	// Assembly
	ErrMuxFailed = New(CodeMuxFailed, "视频合成失败 Muxing failed")

	// Storage
	ErrDBError      = New(CodeDBError, "数据库错误 Database error")
	ErrFileNotFound = New(CodeFileNotFound, "文件不存在 File not found")
)
