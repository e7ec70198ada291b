package models

import "errors"

var (
	// Catalog errors
	ErrBookNotFound      = errors.New("book not found")
	ErrUnsupportedType   = errors.New("book type is not supported for file delivery")
	ErrInvalidBookID     = errors.New("invalid book id")
	ErrInvalidAccessMode = errors.New("invalid access mode")

	// Entitlement errors
	ErrPurchaseRequired = errors.New("purchase required for full access")

	// Package errors
	ErrMalformedArchive = errors.New("malformed packaged archive")
	ErrSliceSelfCheck   = errors.New("trial archive failed self-check")

	// Delivery errors
	ErrStorageUnavailable = errors.New("book file storage unavailable")
	ErrObjectNotFound     = errors.New("book file not found in storage")
	ErrEncryptionFailed   = errors.New("encryption failed")

	// Repository errors
	ErrDatabaseConnection = errors.New("database connection failed")
	ErrDatabaseQuery      = errors.New("database query failed")

	// General errors
	ErrInvalidInput   = errors.New("invalid input")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrInternalServer = errors.New("internal server error")
)
