package domain

import (
	"errors"
	"fmt"
)

// DecodeErrorKind classifies raster decode failures.
type DecodeErrorKind string

const (
	MalformedHeader       DecodeErrorKind = "malformed_header"
	UnsupportedBandLayout DecodeErrorKind = "unsupported_band_layout"
	TruncatedData         DecodeErrorKind = "truncated_data"
)

// DecodeError reports a corrupt, incomplete, or unsupported raster stream.
type DecodeError struct {
	Kind DecodeErrorKind
	Msg  string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode raster: %s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("decode raster: %s: %s", e.Kind, e.Msg)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// CompositeErrorKind classifies compositing failures.
type CompositeErrorKind string

const SizeMismatch CompositeErrorKind = "size_mismatch"

// CompositeError reports a sample buffer that does not match the frame size.
type CompositeError struct {
	Kind     CompositeErrorKind
	Expected int
	Actual   int
}

func (e *CompositeError) Error() string {
	return fmt.Sprintf("composite: %s: expected %d samples, got %d", e.Kind, e.Expected, e.Actual)
}

// TransformErrorKind classifies coordinate transform failures.
type TransformErrorKind string

const (
	UnknownCRS    TransformErrorKind = "unknown_crs"
	NonInvertible TransformErrorKind = "non_invertible"
)

// TransformError reports a CRS pair the projection provider cannot resolve.
type TransformError struct {
	Kind   TransformErrorKind
	Source string
	Target string
	Err    error
}

func (e *TransformError) Error() string {
	msg := fmt.Sprintf("transform %s -> %s: %s", e.Source, e.Target, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransformError) Unwrap() error { return e.Err }

// MergeErrorKind classifies overlay merge failures.
type MergeErrorKind string

const InvalidFeatureCollection MergeErrorKind = "invalid_feature_collection"

// MergeError reports an overlay input that is not a FeatureCollection.
type MergeError struct {
	Kind     MergeErrorKind
	Position int
	Tag      string
	Msg      string
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("merge overlay %d (%s): %s: %s", e.Position, e.Tag, e.Kind, e.Msg)
}

// ErrIndexOutOfRange is returned for playback indices outside [0, frameCount).
var ErrIndexOutOfRange = errors.New("frame index out of range")

// FetchError reports a transport failure while retrieving a named resource.
type FetchError struct {
	Name string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Name, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a FetchError caused by a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// ErrNotFound marks a resource the source does not have.
var ErrNotFound = errors.New("not found")
