package drive

import (
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	folderPathRe = regexp.MustCompile(`/folders/([a-zA-Z0-9_-]+)`)
	bareIDRe     = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// ExtractFolderID accepts a folder URL (".../folders/<id>" or "?id=<id>") or
// a bare folder ID and returns the ID. It returns "" when nothing matches.
func ExtractFolderID(input string) string {
	input = strings.TrimSpace(input)
	if input == "" {
		return ""
	}
	if m := folderPathRe.FindStringSubmatch(input); m != nil {
		return m[1]
	}
	if u, err := url.Parse(input); err == nil && u.Host != "" {
		if id := u.Query().Get("id"); bareIDRe.MatchString(id) {
			return id
		}
		return ""
	}
	if bareIDRe.MatchString(input) {
		return input
	}
	return ""
}

var audioMimeTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".m4a":  "audio/mp4",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
	".aac":  "audio/aac",
	".webm": "audio/webm",
}

// MimeTypeFor maps an audio file name to the MIME type sent to Drive,
// defaulting to audio/mpeg.
func MimeTypeFor(name string) string {
	if mt, ok := audioMimeTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return mt
	}
	return "audio/mpeg"
}

// IsAudioName reports whether name has a known audio extension.
func IsAudioName(name string) bool {
	_, ok := audioMimeTypes[strings.ToLower(filepath.Ext(name))]
	return ok
}
