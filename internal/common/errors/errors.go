package errors

import (
	"errors"
)

var (
	// General Errors
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrUnsupportedFile   = errors.New("unsupported file format")
	ErrPathNotAccessible = errors.New("path is not accessible")
	ErrOSNotSupported    = errors.New("operating system not supported")

	// Lifecycle Errors
	ErrNotInitialized       = errors.New("component not initialized")
	ErrAlreadyInitialized   = errors.New("component already initialized")
	ErrAlreadyDeinitialized = errors.New("component already deinitialized")

	// Backend Errors
	ErrBackendUnavailable = errors.New("no variable store backend available")
	ErrBackendRead        = errors.New("variable store read failed")
	ErrBackendWrite       = errors.New("variable store write failed")
	ErrVariableNotFound   = errors.New("variable not found")
	ErrVariableTooLarge   = errors.New("variable exceeds backend size limit")
	ErrInvalidName        = errors.New("invalid variable name")

	// Record Errors
	ErrMalformed        = errors.New("malformed record header")
	ErrIntegrityFailure = errors.New("checksum mismatch")
	ErrCorruptData      = errors.New("record data is corrupt")
	ErrOptionMismatch   = errors.New("requested options do not match stored record")
	ErrMissingKey       = errors.New("encryption key is required")

	// Compression Errors
	ErrCompressionFailed      = errors.New("compression failed")
	ErrDecompressionFailed    = errors.New("decompression failed")
	ErrUnsupportedCompression = errors.New("unsupported compression format")
	ErrIncompressible         = errors.New("data is incompressible")

	// File & Directory Errors
	ErrFileNotFound   = errors.New("file not found")
	ErrFileReadError  = errors.New("error reading file")
	ErrFileWriteError = errors.New("error writing to file")

	// Configuration Errors
	ErrConfigInvalid    = errors.New("invalid configuration")
	ErrConfigParseError = errors.New("error parsing configuration")
)
