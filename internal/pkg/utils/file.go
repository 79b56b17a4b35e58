package utils

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	// MaxClips per project
	MaxClips = 3
	// MaxClipSize in bytes
	MaxClipSize = 200 * 1024 * 1024
)

var audioMimes = map[string]string{
	"audio/mpeg":  ".mp3",
	"audio/mp3":   ".mp3",
	"audio/wav":   ".wav",
	"audio/x-wav": ".wav",
	"audio/m4a":   ".m4a",
	"audio/x-m4a": ".m4a",
	"audio/mp4":   ".m4a",
	"audio/webm":  ".webm",
}

// SupportAudioMime checks if audio mime type is accepted
func SupportAudioMime(mime string) bool {
	_, ok := audioMimes[strings.ToLower(strings.TrimSpace(mime))]
	return ok
}

// AudioExt returns file extension for the mime type
func AudioExt(mime string) string {
	return audioMimes[strings.ToLower(strings.TrimSpace(mime))]
}

// CleanFileName drops dirs, spaces and lowers the extension
func CleanFileName(fileName string) string {
	base := filepath.Base(filepath.Clean("/" + fileName))
	if base == "/" || base == "." {
		return ""
	}
	ext := filepath.Ext(base)
	base = strings.TrimSuffix(base, ext) + strings.ToLower(ext)
	return strings.ReplaceAll(base, " ", "_")
}

// MakeAudioKey makes storage key for an uploaded clip
func MakeAudioKey(projectID string, clip int, fileName string) string {
	return fmt.Sprintf("%s/audio/%d-%s-%s", projectID, clip, uuid.NewString()[:8], CleanFileName(fileName))
}

// IsProjectKey checks if the key belongs to the project prefix
func IsProjectKey(projectID, key string) bool {
	return projectID != "" && strings.HasPrefix(key, projectID+"/") && !strings.Contains(key, "..")
}

// MakeExportKey makes storage key for a rendered draft
func MakeExportKey(projectID, draftID string, version int, ext string) string {
	return fmt.Sprintf("%s/exports/%s-v%d%s", projectID, draftID, version, ext)
}

// ParamTrue - returns true if string param indicates true value
func ParamTrue(prm string) bool {
	return strings.ToLower(prm) == "true" || prm == "1"
}
