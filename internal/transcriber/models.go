package transcriber

import "slices"

var availableModels = []string{
	"tiny.en",
	"tiny",
	"base.en",
	"base",
	"small.en",
	"small",
	"medium.en",
	"medium",
	"large-v1",
	"large-v2",
	"large-v3",
	"large",
	"turbo",
}

// AvailableModels returns the recognizer model sizes the whisper CLI accepts
func AvailableModels() []string {
	return slices.Clone(availableModels)
}

// IsValidModelSize reports whether size names a known model
func IsValidModelSize(size string) bool {
	return slices.Contains(availableModels, size)
}
