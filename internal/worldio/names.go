package worldio

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Ext is the map file extension.
const Ext = ".ogz"

const untitled = "untitled"

// MapName normalises a map name: the extension is dropped and an empty
// name becomes "untitled".
func MapName(name string) string {
	name = strings.TrimSuffix(name, Ext)
	if name == "" {
		return untitled
	}
	return name
}

// Files holds the paths that belong to one map.
type Files struct {
	OGZ string
	Cfg string
	Pic string

	base string
}

// FilesFor derives the file set from a map path with or without extension.
func FilesFor(path string) Files {
	base := MapName(path)
	return Files{
		OGZ:  base + Ext,
		Cfg:  base + ".cfg",
		Pic:  base + ".jpg",
		base: base,
	}
}

// Backup returns the backup path for the given mode. Mode 1 keeps a single
// name.BAK; any other mode stamps the name with millis.
func (f Files) Backup(mode int, millis int64) string {
	if mode == 1 {
		return f.base + ".BAK"
	}
	return fmt.Sprintf("%s_%d.BAK", f.base, millis)
}

// CfgName returns the script path that belongs to a map.
func CfgName(path string) string {
	return FilesFor(path).Cfg
}

// resolve joins relative map names onto dir.
func resolve(dir, name string) string {
	name = MapName(name)
	if filepath.IsAbs(name) || dir == "" {
		return name
	}
	return filepath.Join(dir, name)
}
