package models

import "io"

// SpeechRequest drives text-to-speech generation.
type SpeechRequest struct {
	Model  string
	Input  string
	Voice  string
	Format string
}

// SpeechStream carries synthesized audio as it arrives from the provider.
// The caller owns Body and must close it.
type SpeechStream struct {
	Body        io.ReadCloser
	ContentType string
}
