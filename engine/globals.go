package engine

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// DefaultMimeType is returned when a file type cannot be guessed.
const DefaultMimeType = "application/octet-stream"

// OSGlobals implements Globals on top of the local filesystem.
// Engine implementations embed it.
type OSGlobals struct {
	VersionString string
}

var _ Globals = OSGlobals{}

func (g OSGlobals) Version() string {
	return g.VersionString
}

// FileLastModified returns the zero time if name cannot be stat'd.
func (OSGlobals) FileLastModified(name string) time.Time {
	fi, err := os.Stat(name)
	if err != nil {
		return time.Time{}
	}
	return fi.ModTime()
}

// FileExists reports whether name exists and is not a directory.
func (OSGlobals) FileExists(name string) bool {
	fi, err := os.Stat(name)
	return err == nil && !fi.IsDir()
}

func (OSGlobals) FileSize(name string) int64 {
	fi, err := os.Stat(name)
	if err != nil {
		return 0
	}
	return fi.Size()
}

func (OSGlobals) PathExists(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

// TempPath returns the temp directory with a trailing separator.
func (OSGlobals) TempPath() string {
	dir := os.TempDir()
	if !strings.HasSuffix(dir, string(filepath.Separator)) {
		dir += string(filepath.Separator)
	}
	return dir
}

// NewTempFile creates an empty uniquely named file and returns its path.
func (g OSGlobals) NewTempFile() string {
	name := filepath.Join(os.TempDir(), "lw-"+strings.ReplaceAll(uuid.NewString(), "-", ""))
	f, err := os.OpenFile(name, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		Logger().Sugar().Debugf("temp file %s: %v", name, err)
		return ""
	}
	_ = f.Close()
	return name
}

func (OSGlobals) GuessMimeType(name string) string {
	return GuessMimeType(name)
}

func (OSGlobals) MD5(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func (OSGlobals) SHA1(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// GuessMimeType guesses by extension, then by content when name is a
// readable file.
func GuessMimeType(name string) string {
	if ext := filepath.Ext(name); ext != "" {
		if t := mime.TypeByExtension(strings.ToLower(ext)); t != "" {
			return stripParams(t)
		}
	}
	if m, err := mimetype.DetectFile(name); err == nil {
		return stripParams(m.String())
	}
	return DefaultMimeType
}

func stripParams(t string) string {
	if i := strings.IndexByte(t, ';'); i >= 0 {
		return strings.TrimSpace(t[:i])
	}
	return t
}
