package md

import (
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// tempSuffix and tempNameLen describe the on-disk temp-object naming
// scheme ("<16-hex-oid>.tmp", 20 bytes total), spec.md §4.6, matching
// original_source/sheep/md.c's literal check (strlen(d_name) == 20 &&
// strcmp(d_name+16, ".tmp") == 0).
const (
	tempSuffix  = ".tmp"
	tempNameLen = 16 + len(tempSuffix)
)

// EnumerateObjects lists every committed object id stored directly under
// path, skipping the .stale subdirectory, temp files, and anything else
// that doesn't parse as a 16-hex-digit oid (spec.md §4.6).
func EnumerateObjects(path string) ([]uint64, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var out []uint64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, ".") || isTempName(name) {
			continue
		}
		oid, ok := parseObjectFilename(name)
		if !ok {
			continue
		}
		out = append(out, oid)
	}
	return out, nil
}

// CleanTempFiles removes every leftover "<oid>.tmp" temp file under path:
// a crash between create-temp and rename-into-place leaves these behind.
// It runs only when called; Reinit and probe do not call it.
func CleanTempFiles(path string, logger *zap.Logger) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() || !isTempName(e.Name()) {
			continue
		}
		full := path + string(os.PathSeparator) + e.Name()
		if err := os.Remove(full); err != nil && logger != nil {
			logger.Warn("failed to clean temp file", zap.String("path", full), zap.Error(err))
		}
	}
}

func isTempName(name string) bool {
	if len(name) != tempNameLen || !strings.HasSuffix(name, tempSuffix) {
		return false
	}
	_, ok := parseObjectFilename(name[:16])
	return ok
}

func parseObjectFilename(name string) (uint64, bool) {
	if len(name) != 16 {
		return 0, false
	}
	oid, err := strconv.ParseUint(name, 16, 64)
	if err != nil {
		return 0, false
	}
	return oid, true
}
