// Package worldio loads and saves map files: gzip containers holding an
// OCTA stream, with backups, checksum tracking, entity scans and metrics.
package worldio

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Faultbox/cubemap/internal/config"
	"github.com/Faultbox/cubemap/internal/logger"
	"github.com/Faultbox/cubemap/pkg/ogz"
)

// Options configures a Manager.
type Options struct {
	// Dir is the directory relative map names resolve against.
	Dir string
	// SaveBackup selects how an existing map is kept before it is
	// overwritten: 0 none, 1 name.BAK, 2 name_<millis>.BAK.
	SaveBackup int
	// DebugVars logs every stored variable on load.
	DebugVars bool
	// GameIdent is the running game. Defaults to ogz.DefaultGameIdent.
	GameIdent string
	// ScanCacheSize bounds the entity scans kept in memory. Zero disables
	// the cache.
	ScanCacheSize int

	// Vars receives map variables on load and supplies them on save.
	// Without a registry the world's own variables are kept as read.
	Vars     ogz.VarRegistry
	Entities ogz.EntityHooks
	GameData ogz.GameDataHooks
	Progress ogz.Progress

	Logger *zap.Logger
	// Registerer receives the metrics collectors. Nil keeps them private.
	Registerer prometheus.Registerer
	Namespace  string
	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

// OptionsFromConfig maps the maps section of cfg onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Dir:           cfg.Maps.Dir,
		SaveBackup:    cfg.Maps.SaveBackup,
		DebugVars:     cfg.Maps.DebugVars,
		GameIdent:     cfg.Maps.GameIdent,
		ScanCacheSize: cfg.Maps.ScanCacheSize,
		Namespace:     cfg.Metrics.Namespace,
	}
}

type scanKey struct {
	path    string
	modTime int64
	size    int64
}

// Manager owns the currently loaded world and the checksum of the map it
// came from. Loads and saves are serialised.
type Manager struct {
	opts    Options
	log     *zap.Logger
	metrics *metrics
	scans   *lru.Cache[scanKey, *ogz.EntityScan]
	started time.Time

	mu    sync.Mutex
	world *ogz.World
	crc   uint32
}

// New creates a Manager.
func New(opts Options) (*Manager, error) {
	if opts.GameIdent == "" {
		opts.GameIdent = ogz.DefaultGameIdent
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logger.Named("worldio")
	}
	met, err := newMetrics(opts.Namespace, opts.Registerer)
	if err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}
	m := &Manager{
		opts:    opts,
		log:     opts.Logger,
		metrics: met,
		started: opts.Clock(),
	}
	if opts.ScanCacheSize > 0 {
		if m.scans, err = lru.New[scanKey, *ogz.EntityScan](opts.ScanCacheSize); err != nil {
			return nil, fmt.Errorf("creating scan cache: %w", err)
		}
	}
	return m, nil
}

// Path resolves a map name to its file.
func (m *Manager) Path(name string) string {
	return FilesFor(resolve(m.opts.Dir, name)).OGZ
}

// Files returns the file set of a map name.
func (m *Manager) Files(name string) Files {
	return FilesFor(resolve(m.opts.Dir, name))
}

// World returns the most recently loaded world, or nil.
func (m *Manager) World() *ogz.World {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.world
}

// MapCRC returns the checksum of the last successfully loaded map, or 0.
func (m *Manager) MapCRC() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.crc
}

// ClearMapCRC forgets the checksum.
func (m *Manager) ClearMapCRC() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.crc = 0
}

// Load reads the named map. See LoadFile.
func (m *Manager) Load(name string) (*ogz.World, *ogz.Report, error) {
	return m.LoadFile(m.Path(name))
}

// LoadFile reads a map file and makes it the current world. Any failure
// clears the checksum. When the octree holds a corrupt node the returned
// world keeps its entities and settings, becomes current, and the error
// matches ogz.ErrCorruptNode. Other failures leave the current world alone.
func (m *Manager) LoadFile(path string) (*ogz.World, *ogz.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := m.opts.Clock()
	m.crc = 0

	f, err := os.Open(path)
	if err != nil {
		m.metrics.fail(reasonOpen)
		m.log.Error("could not read map", zap.String("path", path), zap.Error(err))
		return nil, nil, fmt.Errorf("could not read map %s: %w", path, err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		m.metrics.fail(reasonFormat)
		m.log.Error("map is not a gzip stream", zap.String("path", path), zap.Error(err))
		return nil, nil, fmt.Errorf("map %s: %w", path, err)
	}
	defer zr.Close()

	opts := ogz.DecodeOptions{
		GameIdent: m.opts.GameIdent,
		Vars:      m.opts.Vars,
		Entities:  m.opts.Entities,
		GameData:  m.opts.GameData,
		Progress:  m.opts.Progress,
	}
	if m.opts.DebugVars {
		opts.VarTrace = func(v ogz.Var, applied bool) {
			m.log.Debug("read var", zap.String("path", path), zap.Stringer("var", v), zap.Bool("applied", applied))
		}
	}

	w, report, err := ogz.Decode(zr, opts)
	for _, n := range report.Notices() {
		m.log.Warn("map compatibility notice",
			zap.String("path", path),
			zap.Stringer("kind", n.Kind),
			zap.Int("index", n.Index),
			zap.String("detail", n.Message))
	}
	if err != nil {
		switch {
		case errors.Is(err, ogz.ErrCorruptNode) && w != nil:
			m.metrics.fail(reasonCorrupt)
			m.world = w
			m.log.Error("garbage in map", zap.String("path", path), zap.Error(err))
		case ogz.IsFormatError(err):
			m.metrics.fail(reasonFormat)
			m.log.Error("map has malformatted data", zap.String("path", path), zap.Error(err))
		default:
			m.metrics.fail(reasonIO)
			m.log.Error("could not read map", zap.String("path", path), zap.Error(err))
		}
		return w, report, err
	}

	elapsed := m.opts.Clock().Sub(start)
	m.world = w
	m.crc = report.CRC
	m.metrics.loaded.Inc()
	m.metrics.loadSeconds.Observe(elapsed.Seconds())
	m.log.Info("read map",
		zap.String("path", path),
		zap.Int("version", w.Version),
		zap.String("game", w.GameIdent),
		zap.Int("entities", len(w.Entities)),
		zap.Int("nodes", ogz.CountNodes(w.Root)),
		zap.Uint32("crc", report.CRC),
		zap.NamedError("notices", report.Err()),
		zap.Duration("elapsed", elapsed))
	return w, report, nil
}

// Save writes w, or the current world when w is nil, under the given map
// name. See SaveFile.
func (m *Manager) Save(name string, w *ogz.World, noLightmaps bool) error {
	return m.SaveFile(m.Path(name), w, noLightmaps)
}

// SaveFile writes a map file. The map is encoded to a temporary file in the
// same directory first. With a backup mode set, the existing file is then
// renamed to its backup name and the save is abandoned if that fails.
// Finally the temporary file is renamed into place.
func (m *Manager) SaveFile(path string, w *ogz.World, noLightmaps bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if w == nil {
		w = m.world
	}
	if w == nil {
		return errors.New("no world to save")
	}
	start := m.opts.Clock()
	files := FilesFor(path)

	var backupErr error
	size, err := m.writeMap(files.OGZ, w, noLightmaps, func() error {
		if m.opts.SaveBackup == config.BackupNone {
			return nil
		}
		backupErr = m.backup(files, start)
		return backupErr
	})
	if backupErr != nil {
		m.log.Warn("could not create backup, skipping saving", zap.String("path", files.OGZ), zap.Error(backupErr))
		return backupErr
	}
	if err != nil {
		m.log.Error("could not write map", zap.String("path", files.OGZ), zap.Error(err))
		return err
	}
	m.metrics.saved.Inc()
	m.log.Info("wrote map",
		zap.String("path", files.OGZ),
		zap.Int64("bytes", size),
		zap.Bool("nolightmaps", noLightmaps),
		zap.Duration("elapsed", m.opts.Clock().Sub(start)))
	return nil
}

// backup moves an existing map aside, replacing an older backup of the
// same name. A map that does not exist yet needs no backup.
func (m *Manager) backup(files Files, now time.Time) error {
	if _, err := os.Stat(files.OGZ); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	name := files.Backup(m.opts.SaveBackup, now.Sub(m.started).Milliseconds())
	if err := os.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing old backup: %w", err)
	}
	if err := os.Rename(files.OGZ, name); err != nil {
		return fmt.Errorf("creating backup: %w", err)
	}
	m.log.Debug("created backup", zap.String("path", name))
	return nil
}

// writeMap encodes w into a temporary file next to path. Only once the
// file is complete does it call beforeRename and move the file into place,
// so a failed encode never disturbs the existing map.
func (m *Manager) writeMap(path string, w *ogz.World, noLightmaps bool, beforeRename func() error) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("creating map directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("could not write map %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	zw, err := gzip.NewWriterLevel(tmp, gzip.BestCompression)
	if err != nil {
		return 0, err
	}
	err = ogz.Encode(zw, w, ogz.EncodeOptions{
		NoLightmaps: noLightmaps,
		Vars:        m.opts.Vars,
		Entities:    m.opts.Entities,
		GameData:    m.opts.GameData,
		Progress:    m.opts.Progress,
	})
	if err != nil {
		return 0, err
	}
	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("finishing gzip stream: %w", err)
	}
	st, err := tmp.Stat()
	if err != nil {
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := beforeRename(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("could not write map %s: %w", path, err)
	}
	return st.Size(), nil
}

// ScanEntities reads the entities and checksum of the named map without
// touching the current world. See ScanFile.
func (m *Manager) ScanEntities(name string) (*ogz.EntityScan, error) {
	return m.ScanFile(m.Path(name))
}

// ScanFile reads the header and entities of a map file and the checksum of
// the whole stream. Results are cached by path, modification time and
// size; a cached scan is shared and must not be modified.
func (m *Manager) ScanFile(path string) (*ogz.EntityScan, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("could not read map %s: %w", path, err)
	}
	key := scanKey{path: path, modTime: st.ModTime().UnixNano(), size: st.Size()}
	if m.scans != nil {
		if s, ok := m.scans.Get(key); ok {
			return s, nil
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not read map %s: %w", path, err)
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("map %s: %w", path, err)
	}
	defer zr.Close()

	s, err := ogz.ScanEntities(zr, m.opts.GameIdent)
	if err != nil {
		return nil, err
	}
	if m.scans != nil {
		m.scans.Add(key, s)
	}
	m.log.Debug("scanned map entities", zap.String("path", path), zap.Int("entities", len(s.Entities)), zap.Uint32("crc", s.CRC))
	return s, nil
}
