package resource

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kasuganosora/tilewalk/game/ai"
	"github.com/kasuganosora/tilewalk/game/terrain"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ErrInvalidMap is returned when a map file fails validation.
var ErrInvalidMap = errors.New("resource: invalid map")

// ---- Map file structures ----

// CellRef addresses a grid cell in a map file.
type CellRef struct {
	Row int `yaml:"row"`
	Col int `yaml:"col"`
}

// Cell converts to a grid cell.
func (c CellRef) Cell() ai.Cell { return ai.Cell{Row: c.Row, Col: c.Col} }

// Origin is the map's offset in cell units.
type Origin struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
}

// NPCSpawn declares an actor created when the map loads.
type NPCSpawn struct {
	Name      string            `yaml:"name"`
	At        CellRef           `yaml:"at"`
	Inventory terrain.Inventory `yaml:"inventory"`
	Patrol    []CellRef         `yaml:"patrol"`
	DwellMS   int64             `yaml:"dwell_ms"`
}

// ItemSpawn places a pickup (goat, boat, pickaxe) on a cell.
type ItemSpawn struct {
	Kind string  `yaml:"kind"`
	At   CellRef `yaml:"at"`
}

// MapFile is the on-disk description of a map.
//
//	name: meadow
//	cell_size: 1
//	origin: {x: 0, y: 0}
//	flip_rows: true
//	legend: {"M": mountain}   # optional, overrides the terrain glyphs
//	rows:
//	  - "..^^.."
//	  - ".~~..#"
type MapFile struct {
	Name     string            `yaml:"name"`
	CellSize float64           `yaml:"cell_size"`
	Origin   Origin            `yaml:"origin"`
	FlipRows bool              `yaml:"flip_rows"`
	Legend   map[string]string `yaml:"legend"`
	Rows     []string          `yaml:"rows"`
	NPCs     []NPCSpawn        `yaml:"npcs"`
	Items    []ItemSpawn       `yaml:"items"`

	Path string `yaml:"-"`
}

// Tilemap returns the world placement described by the file.
func (mf *MapFile) Tilemap() terrain.Tilemap {
	return terrain.Tilemap{
		OriginX:  mf.Origin.X,
		OriginY:  mf.Origin.Y,
		CellSize: mf.CellSize,
		FlipRows: mf.FlipRows,
	}
}

// Tiles resolves the glyph rows into kind names.
func (mf *MapFile) Tiles(table *terrain.Table) ([][]string, error) {
	if len(mf.Rows) == 0 {
		return nil, fmt.Errorf("%w %q: no rows", ErrInvalidMap, mf.Name)
	}
	width := -1
	tiles := make([][]string, len(mf.Rows))
	for r, line := range mf.Rows {
		glyphs := []rune(line)
		if width < 0 {
			width = len(glyphs)
		}
		if len(glyphs) == 0 || len(glyphs) != width {
			return nil, fmt.Errorf("%w %q: row %d has %d cells, want %d", ErrInvalidMap, mf.Name, r, len(glyphs), width)
		}
		tiles[r] = make([]string, width)
		for c, g := range glyphs {
			name, ok := mf.kindFor(table, string(g))
			if !ok {
				return nil, fmt.Errorf("%w %q: unknown glyph %q at (%d,%d)", ErrInvalidMap, mf.Name, g, r, c)
			}
			tiles[r][c] = name
		}
	}
	return tiles, nil
}

func (mf *MapFile) kindFor(table *terrain.Table, glyph string) (string, bool) {
	if name, ok := mf.Legend[glyph]; ok {
		_, known := table.Kind(name)
		return name, known
	}
	k, ok := table.ByGlyph(glyph)
	return k.Name, ok
}

// ParseMap decodes a map file. The map name defaults to the file's base name.
func ParseMap(data []byte, path string) (*MapFile, error) {
	mf := &MapFile{}
	if err := yaml.Unmarshal(data, mf); err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrInvalidMap, path, err)
	}
	if mf.Name == "" {
		mf.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if len(mf.Rows) == 0 {
		return nil, fmt.Errorf("%w %q: no rows", ErrInvalidMap, mf.Name)
	}
	if mf.CellSize < 0 {
		return nil, fmt.Errorf("%w %q: negative cell_size", ErrInvalidMap, mf.Name)
	}
	mf.Path = path
	return mf, nil
}

// LoadMapFile reads and decodes a single map file.
func LoadMapFile(path string) (*MapFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseMap(data, path)
}

// isMapFile reports whether path has a YAML extension.
func isMapFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// ---- Loader ----

// Loader reads map files from a directory and builds terrain maps from them.
type Loader struct {
	dir    string
	table  *terrain.Table
	logger *zap.Logger
}

// NewLoader creates a Loader for dir.
func NewLoader(dir string, table *terrain.Table, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{dir: dir, table: table, logger: logger}
}

// Dir returns the directory the loader reads.
func (l *Loader) Dir() string { return l.dir }

// Table returns the terrain table maps are built with.
func (l *Loader) Table() *terrain.Table { return l.table }

// LoadDir decodes every map file in the directory, sorted by path.
// Map names must be unique.
func (l *Loader) LoadDir() ([]*MapFile, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("resource: read map dir: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if !e.IsDir() && isMapFile(e.Name()) {
			paths = append(paths, filepath.Join(l.dir, e.Name()))
		}
	}
	sort.Strings(paths)

	seen := make(map[string]string, len(paths))
	files := make([]*MapFile, 0, len(paths))
	for _, p := range paths {
		mf, err := LoadMapFile(p)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[mf.Name]; dup {
			return nil, fmt.Errorf("%w: map %q defined in %s and %s", ErrInvalidMap, mf.Name, prev, p)
		}
		seen[mf.Name] = p
		files = append(files, mf)
		l.logger.Debug("map file loaded", zap.String("map", mf.Name), zap.String("path", p))
	}
	return files, nil
}

// Build creates a terrain map from a decoded file.
func (l *Loader) Build(mf *MapFile) (*terrain.Map, error) {
	tiles, err := mf.Tiles(l.table)
	if err != nil {
		return nil, err
	}
	return terrain.NewMap(mf.Name, l.table, mf.Tilemap(), tiles)
}
