package job

import (
	"io/fs"
	"path/filepath"
	"strings"
	"time"
)

// Output is a rendered video found in the output directory.
type Output struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// FindOutput walks dir for .mp4/.avi files without "temp" in their name that
// were modified at or after since. A file whose name contains the result
// name's stem wins; otherwise the newest one does. ok is false when nothing
// qualifies.
func FindOutput(dir, resultName string, since time.Time) (Output, bool) {
	stem := strings.TrimSuffix(resultName, filepath.Ext(resultName))
	var best, named Output
	var haveBest, haveNamed bool
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		name := d.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if (ext != ".mp4" && ext != ".avi") || strings.Contains(strings.ToLower(name), "temp") {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.ModTime().Before(since) {
			return nil
		}
		o := Output{Path: p, Size: info.Size(), ModTime: info.ModTime()}
		if !haveBest || o.ModTime.After(best.ModTime) {
			best, haveBest = o, true
		}
		if stem != "" && strings.Contains(name, stem) && (!haveNamed || o.ModTime.After(named.ModTime)) {
			named, haveNamed = o, true
		}
		return nil
	})
	if haveNamed {
		return named, true
	}
	return best, haveBest
}
