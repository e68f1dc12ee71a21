package service

import (
	"image"

	"github.com/sogos/pixelpipe/internal/domain/valueobject"
)

// Logger abstracts structured logging operations.
type Logger interface {
	// Debug logs a debug message.
	Debug(msg string, args ...any)

	// Info logs an info message.
	Info(msg string, args ...any)

	// Warn logs a warning message.
	Warn(msg string, args ...any)

	// Error logs an error message.
	Error(msg string, args ...any)

	// With returns a new logger with the given key-value pairs.
	With(args ...any) Logger
}

// ImageProcessor applies one parameterized operation to its input bitmaps
// and produces the output bitmap. Implementations are pure pixel
// transforms; persistence of the result is the worker's job.
type ImageProcessor interface {
	Process(params valueobject.JobType, inputs []image.Image) (image.Image, error)
}
