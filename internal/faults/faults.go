package faults

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"chorusd/internal/media"
)

// Kind classifies a rejection or failure. The dotted form groups kinds by the
// subsystem that raised them and is stable across the API surface.
type Kind string

const (
	KindFileNotFound          Kind = "File.NotFound"
	KindFileUnsupportedFormat Kind = "File.UnsupportedFormat"
	KindFileTooLarge          Kind = "File.TooLarge"

	KindAudioTooShort          Kind = "Audio.TooShort"
	KindAudioTooLong           Kind = "Audio.TooLong"
	KindAudioSilentOrLowRMS    Kind = "Audio.SilentOrLowRMS"
	KindAudioMonoRequired      Kind = "Audio.MonoRequired"
	KindAudioSampleRate        Kind = "Audio.SampleRateUnsupported"
	KindAudioPreflight         Kind = "Audio.PreflightError"

	KindRequestInvalidDuration Kind = "Request.InvalidDuration"

	KindExtractionNoChorus Kind = "Extraction.NoChorusFound"
	KindExtractionFailed   Kind = "Extraction.Failed"
)

// Error carries a classified fault with optional structured context and the
// measured metrics of the asset that produced it.
type Error struct {
	Kind    Kind           `json:"kind"`
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
	Metrics *media.Metrics `json:"metrics,omitempty"`

	cause error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = "fault"
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// WithMetrics attaches measured metrics and returns the error for chaining.
func (e *Error) WithMetrics(metrics media.Metrics) *Error {
	if e == nil {
		return nil
	}
	copied := metrics
	e.Metrics = &copied
	return e
}

// New builds a fault of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrapf builds a fault that wraps an underlying cause.
func Wrapf(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

// As extracts a fault from an error chain.
func As(err error) (*Error, bool) {
	var fault *Error
	if errors.As(err, &fault) {
		return fault, true
	}
	return nil, false
}

// KindOf reports the kind carried by err, or empty when err is not a fault.
func KindOf(err error) Kind {
	if fault, ok := As(err); ok {
		return fault.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

func FileNotFound(identifier string) *Error {
	return &Error{
		Kind:    KindFileNotFound,
		Message: "no audio file found for identifier",
		Context: map[string]any{"identifier": identifier},
	}
}

func UnsupportedFormat(extension string, allowed []string) *Error {
	return &Error{
		Kind:    KindFileUnsupportedFormat,
		Message: fmt.Sprintf("unsupported file extension %q", extension),
		Context: map[string]any{"extension": extension, "allowed": allowed},
	}
}

func FileTooLarge(sizeBytes, limitBytes int64) *Error {
	return &Error{
		Kind:    KindFileTooLarge,
		Message: "uploaded file exceeds the size limit",
		Context: map[string]any{"size_bytes": sizeBytes, "limit_bytes": limitBytes},
	}
}

func TooShort(durationSec, minSec float64) *Error {
	return &Error{
		Kind:    KindAudioTooShort,
		Message: "audio is shorter than the minimum duration",
		Context: map[string]any{"actual": durationSec, "min_seconds": minSec},
	}
}

func TooLong(durationSec, maxSec float64) *Error {
	return &Error{
		Kind:    KindAudioTooLong,
		Message: "audio is longer than the maximum duration",
		Context: map[string]any{"actual": durationSec, "max_seconds": maxSec},
	}
}

func SilentOrLowRMS(loudnessDBFS, thresholdDBFS float64) *Error {
	return &Error{
		Kind:    KindAudioSilentOrLowRMS,
		Message: "audio is silent or below the loudness threshold",
		Context: map[string]any{"actual_dbfs": loudnessDBFS, "threshold_dbfs": thresholdDBFS},
	}
}

func MonoRequired(channels int) *Error {
	return &Error{
		Kind:    KindAudioMonoRequired,
		Message: "audio must be mono",
		Context: map[string]any{"channels": channels},
	}
}

func SampleRateUnsupported(rate, minRate, maxRate int) *Error {
	return &Error{
		Kind:    KindAudioSampleRate,
		Message: "sample rate is outside the supported range",
		Context: map[string]any{"sample_rate": rate, "min_rate": minRate, "max_rate": maxRate, "suggested_rate": 44100},
	}
}

func PreflightError(cause error) *Error {
	return Wrapf(KindAudioPreflight, cause, "could not analyze audio")
}

func InvalidDuration(requested float64, minSec, maxSec float64) *Error {
	return &Error{
		Kind:    KindRequestInvalidDuration,
		Message: "requested clip duration is out of range",
		Context: map[string]any{"requested_sec": requested, "min_sec": minSec, "max_sec": maxSec},
	}
}

func NoChorusFound(identifier string) *Error {
	return &Error{
		Kind:    KindExtractionNoChorus,
		Message: "no chorus section could be located",
		Context: map[string]any{"identifier": identifier},
	}
}

func ExtractionFailed(cause error) *Error {
	return Wrapf(KindExtractionFailed, cause, "extraction failed")
}

// HTTPStatus maps a fault kind to the HTTP status code the API reports.
// Unknown kinds and non-fault errors map to 500.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindFileUnsupportedFormat, KindRequestInvalidDuration:
		return http.StatusBadRequest
	case KindFileNotFound:
		return http.StatusNotFound
	case KindFileTooLarge, KindAudioTooLong:
		return http.StatusRequestEntityTooLarge
	case KindAudioTooShort, KindAudioSilentOrLowRMS, KindAudioMonoRequired,
		KindAudioSampleRate, KindExtractionNoChorus:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
