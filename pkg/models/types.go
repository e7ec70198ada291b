package models

import "errors"

// Error carries a stable code alongside the wrapped cause
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Common error codes
const (
	ErrCodeInvalidArchive   = "INVALID_ARCHIVE"
	ErrCodeZipCreateFailed  = "ZIP_CREATE_FAILED"
	ErrCodeZipWriteFailed   = "ZIP_WRITE_FAILED"
	ErrCodeZipCloseFailed   = "ZIP_CLOSE_FAILED"
	ErrCodeInvalidManifest  = "INVALID_MANIFEST"
	ErrCodeSliceFailed      = "SLICE_FAILED"
	ErrCodeEncryptionFailed = "ENCRYPTION_FAILED"
	ErrCodeDecryptionFailed = "DECRYPTION_FAILED"
	ErrCodeInvalidToken     = "INVALID_TOKEN"
	ErrCodeStorageFailed    = "STORAGE_FAILED"
	ErrCodeObjectNotFound   = "OBJECT_NOT_FOUND"
	ErrCodeAccessDenied     = "ACCESS_DENIED"
	ErrCodeAuthFailed       = "AUTH_FAILED"
)

// IsCode reports whether err is a *Error with the given code
func IsCode(err error, code string) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	if e.Code == code {
		return true
	}
	return IsCode(e.Err, code)
}
