// ogztool is a CLI utility for inspecting, converting and generating
// Cube 2 map files.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Faultbox/cubemap/internal/assets"
	"github.com/Faultbox/cubemap/internal/config"
	"github.com/Faultbox/cubemap/internal/gen"
	"github.com/Faultbox/cubemap/internal/logger"
	"github.com/Faultbox/cubemap/internal/worldio"
	"github.com/Faultbox/cubemap/pkg/ogz"
)

func main() {
	config.ParseFlags()
	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}

	t := &tool{cfg: cfg, registry: prometheus.NewRegistry()}
	command := args[0]
	args = args[1:]

	switch command {
	case "info":
		err = t.cmdInfo(args)
	case "ents":
		err = t.cmdEnts(args)
	case "crc":
		err = t.cmdCRC(args)
	case "upgrade":
		err = t.cmdUpgrade(args)
	case "obj":
		err = t.cmdOBJ(args)
	case "gen":
		err = t.cmdGen(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	t.logMetrics()
	logger.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`ogztool - Cube 2 map utility

Usage:
  ogztool [flags] <command> [options]

Commands:
  info <map>                              Show header, octree and variable summary
  ents [-type name] <map>                 List entities without loading geometry
  crc <map>...                            Print the stream checksum of each map
  upgrade [-nolms] [-strict] <map> [out]  Rewrite a map in the current format
  obj <map> [out]                         Export geometry as out.obj and out.mtl
  gen [options] <out>                     Generate a heightfield test map

Flags:
  --config <file>   Config file
  --debug           Debug logging and variable tracing
  --mapdir <dir>    Directory map names resolve against
  --savebak <n>     Backup mode (0 none, 1 single, 2 timestamped)
  --texdir <dir>    Texture root

Examples:
  ogztool info complex
  ogztool ents packages/base/complex.ogz
  ogztool --savebak 1 upgrade oldmap
  ogztool obj complex /tmp/complex
  ogztool gen -seed 42 -size 2048 hills`)
}

type tool struct {
	cfg      *config.Config
	registry *prometheus.Registry
}

// manager creates a map manager. Without vars the world keeps the variables
// it was read with, which is what a format upgrade needs.
func (t *tool) manager(vars bool) (*worldio.Manager, error) {
	opts := worldio.OptionsFromConfig(t.cfg)
	if vars {
		opts.Vars = worldio.DefaultVars()
	}
	if t.cfg.Metrics.Enabled {
		opts.Registerer = t.registry
	}
	return worldio.New(opts)
}

// mapPath prefers a file that exists as given over one under the map
// directory.
func mapPath(m *worldio.Manager, name string) string {
	if p := worldio.FilesFor(name).OGZ; fileExists(p) {
		return p
	}
	return m.Path(name)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (t *tool) cmdInfo(args []string) error {
	if len(args) < 1 {
		return errors.New("usage: ogztool info <map>")
	}
	m, err := t.manager(true)
	if err != nil {
		return err
	}
	path := mapPath(m, args[0])
	w, report, err := m.LoadFile(path)
	if err != nil {
		return err
	}
	st, err := os.Stat(path)
	if err != nil {
		return err
	}

	var lmBytes int
	for _, lm := range w.Lightmaps {
		lmBytes += len(lm.Data)
	}
	pvs := 0
	if w.PVS != nil {
		pvs = w.PVS.ViewCells()
	}

	fmt.Printf("Map:        %s\n", path)
	fmt.Printf("File size:  %s\n", humanize.Bytes(uint64(st.Size())))
	fmt.Printf("Version:    %d\n", w.Version)
	fmt.Printf("World size: %d\n", w.Size)
	fmt.Printf("Game:       %s\n", w.GameIdent)
	fmt.Printf("CRC:        %08x\n", m.MapCRC())
	fmt.Printf("Nodes:      %s\n", humanize.Comma(int64(ogz.CountNodes(w.Root))))
	fmt.Printf("Entities:   %d\n", len(w.Entities))
	fmt.Printf("VSlots:     %d\n", len(w.VSlots))
	fmt.Printf("Lightmaps:  %d (%s)\n", len(w.Lightmaps), humanize.Bytes(uint64(lmBytes)))
	fmt.Printf("PVS cells:  %d\n", pvs)

	if len(w.Vars) > 0 {
		fmt.Println()
		fmt.Println("Variables:")
		for _, v := range w.Vars {
			fmt.Printf("  %s\n", v)
		}
	}
	if notices := report.Notices(); len(notices) > 0 {
		fmt.Println()
		fmt.Println("Notices:")
		for _, n := range notices {
			fmt.Printf("  [%s] %s\n", n.Kind, n.Message)
		}
	}
	return nil
}

func (t *tool) cmdEnts(args []string) error {
	fs := flag.NewFlagSet("ents", flag.ExitOnError)
	typeName := fs.String("type", "", "Only list entities of this type")
	fs.Parse(args)

	if fs.NArg() < 1 {
		return errors.New("usage: ogztool ents [-type name] <map>")
	}
	m, err := t.manager(false)
	if err != nil {
		return err
	}
	scan, err := m.ScanFile(mapPath(m, fs.Arg(0)))
	if err != nil {
		return err
	}

	counts := make(map[string]int)
	for i, e := range scan.Entities {
		name := e.Type.String()
		if *typeName != "" && name != *typeName {
			continue
		}
		counts[name]++
		attrs := make([]string, len(e.Attr))
		for j, a := range e.Attr {
			attrs[j] = fmt.Sprint(a)
		}
		fmt.Printf("%5d  %-12s %8.1f %8.1f %8.1f  %s\n", i, name, e.O.X, e.O.Y, e.O.Z, strings.Join(attrs, " "))
	}

	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintf(os.Stderr, "\n(%d entities, game %s)\n", len(scan.Entities), scan.GameType)
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %-12s %d\n", name, counts[name])
	}
	return nil
}

func (t *tool) cmdCRC(args []string) error {
	if len(args) < 1 {
		return errors.New("usage: ogztool crc <map>...")
	}
	m, err := t.manager(false)
	if err != nil {
		return err
	}
	var failed []error
	for _, name := range args {
		path := mapPath(m, name)
		scan, err := m.ScanFile(path)
		if err != nil {
			failed = append(failed, fmt.Errorf("%s: %w", path, err))
			continue
		}
		fmt.Printf("%08x  %s\n", scan.CRC, path)
	}
	return errors.Join(failed...)
}

func (t *tool) cmdUpgrade(args []string) error {
	fs := flag.NewFlagSet("upgrade", flag.ExitOnError)
	noLMs := fs.Bool("nolms", false, "Drop lightmaps, PVS and surface data")
	strict := fs.Bool("strict", false, "Refuse to write a map that raised compatibility notices")
	fs.Parse(args)

	if fs.NArg() < 1 {
		return errors.New("usage: ogztool upgrade [-nolms] [-strict] <map> [out]")
	}
	m, err := t.manager(false)
	if err != nil {
		return err
	}
	in := mapPath(m, fs.Arg(0))
	out := in
	if fs.NArg() > 1 {
		out = worldio.FilesFor(fs.Arg(1)).OGZ
	}

	w, report, err := m.LoadFile(in)
	if err != nil {
		return err
	}
	if err := report.Err(); err != nil {
		if *strict {
			return fmt.Errorf("%s not upgraded: %w", in, err)
		}
		for _, n := range report.Notices() {
			fmt.Fprintf(os.Stderr, "notice: %s\n", n.Message)
		}
	}
	from := w.Version
	if err := m.SaveFile(out, nil, *noLMs); err != nil {
		return err
	}
	fmt.Printf("%s: version %d -> %d, written to %s\n", in, from, ogz.MapVersion, out)
	return nil
}

func (t *tool) cmdOBJ(args []string) error {
	if len(args) < 1 {
		return errors.New("usage: ogztool obj <map> [out]")
	}
	m, err := t.manager(true)
	if err != nil {
		return err
	}
	path := mapPath(m, args[0])
	out := path
	if len(args) > 1 {
		out = args[1]
	}
	w, _, err := m.LoadFile(path)
	if err != nil {
		return err
	}

	textures := assets.NewRegistry(t.cfg.Textures.Dir)
	if t.cfg.Textures.SlotCfg != "" {
		if err := textures.LoadConfig(t.cfg.Textures.SlotCfg); err != nil {
			return fmt.Errorf("loading texture slots: %w", err)
		}
	}
	if cfg := worldio.CfgName(path); fileExists(cfg) {
		if err := textures.LoadConfig(cfg); err != nil {
			return fmt.Errorf("loading map script: %w", err)
		}
	}

	mesh, err := m.ExportOBJ(out, w, textures)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s triangles in %d materials\n", out, humanize.Comma(int64(mesh.Triangles())), len(mesh.Groups))
	return nil
}

func (t *tool) cmdGen(args []string) error {
	fs := flag.NewFlagSet("gen", flag.ExitOnError)
	size := fs.Int("size", 1024, "World size (power of two)")
	cell := fs.Int("cell", 0, "Column size (default size/32)")
	height := fs.Int("height", 0, "Maximum terrain height (default size/4)")
	seed := fs.Int64("seed", 0, "Noise seed")
	freq := fs.Float64("freq", 0, "Noise periods across the world (default 3)")
	lights := fs.Int("lights", 0, "Number of lights (default 4, -1 for none)")
	title := fs.String("title", "", "Map title")
	fs.Parse(args)

	if fs.NArg() < 1 {
		return errors.New("usage: ogztool gen [options] <out>")
	}
	w, err := gen.Generate(gen.Options{
		Size:      *size,
		Cell:      *cell,
		MaxHeight: *height,
		Seed:      *seed,
		Frequency: *freq,
		Lights:    *lights,
		Title:     *title,
	})
	if err != nil {
		return err
	}
	m, err := t.manager(false)
	if err != nil {
		return err
	}
	out := worldio.FilesFor(fs.Arg(0)).OGZ
	if err := m.SaveFile(out, w, false); err != nil {
		return err
	}
	fmt.Printf("%s: %s nodes, %d entities\n", out, humanize.Comma(int64(ogz.CountNodes(w.Root))), len(w.Entities))
	return nil
}

// logMetrics writes the collected counters to the log when metrics are
// enabled.
func (t *tool) logMetrics() {
	if !t.cfg.Metrics.Enabled {
		return
	}
	families, err := t.registry.Gather()
	if err != nil {
		logger.Warn("could not gather metrics", zap.Error(err))
		return
	}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			fields := []zap.Field{zap.String("name", mf.GetName())}
			for _, lp := range metric.GetLabel() {
				fields = append(fields, zap.String(lp.GetName(), lp.GetValue()))
			}
			switch {
			case metric.GetCounter() != nil:
				fields = append(fields, zap.Float64("value", metric.GetCounter().GetValue()))
			case metric.GetHistogram() != nil:
				h := metric.GetHistogram()
				fields = append(fields, zap.Uint64("count", h.GetSampleCount()), zap.Float64("sum", h.GetSampleSum()))
			}
			logger.Info("metric", fields...)
		}
	}
}
