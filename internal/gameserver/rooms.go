package gameserver

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/skirmish/internal/game/dice"
)

// RoomDef is one room and its exits keyed by direction.
type RoomDef struct {
	ID    string            `yaml:"id"`
	Title string            `yaml:"title"`
	Exits map[string]string `yaml:"exits"`
}

type roomsFile struct {
	Rooms []RoomDef `yaml:"rooms"`
}

// RoomGraph implements combat.Mover over a static exit graph and tracks
// where relocated combatants ended up.
type RoomGraph struct {
	rooms  map[string]RoomDef
	roller *dice.Roller
	logger *zap.Logger

	mu        sync.Mutex
	locations map[string]string
}

// NewRoomGraph builds a graph from rooms.
//
// Precondition: roller and logger must be non-nil.
// Postcondition: Returns an error if a room ID repeats or an exit leads nowhere.
func NewRoomGraph(rooms []RoomDef, roller *dice.Roller, logger *zap.Logger) (*RoomGraph, error) {
	g := &RoomGraph{
		rooms:     make(map[string]RoomDef, len(rooms)),
		roller:    roller,
		logger:    logger,
		locations: make(map[string]string),
	}
	for _, r := range rooms {
		if r.ID == "" {
			return nil, fmt.Errorf("room with title %q has no id", r.Title)
		}
		if _, dup := g.rooms[r.ID]; dup {
			return nil, fmt.Errorf("duplicate room %q", r.ID)
		}
		g.rooms[r.ID] = r
	}
	for _, r := range rooms {
		for dir, to := range r.Exits {
			if _, ok := g.rooms[to]; !ok {
				return nil, fmt.Errorf("room %q exit %q leads to unknown room %q", r.ID, dir, to)
			}
		}
	}
	return g, nil
}

// LoadRoomGraph reads a YAML rooms file.
//
// Precondition: path must name a readable YAML file with a top-level rooms list.
func LoadRoomGraph(path string, roller *dice.Roller, logger *zap.Logger) (*RoomGraph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rooms file %q: %w", path, err)
	}
	var f roomsFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parsing rooms file %q: %w", path, err)
	}
	return NewRoomGraph(f.Rooms, roller, logger)
}

// Has reports whether room exists.
func (g *RoomGraph) Has(room string) bool {
	_, ok := g.rooms[room]
	return ok
}

// CanRetreat resolves the room reached by leaving room in dir. An empty dir
// picks one of the room's exits at random.
func (g *RoomGraph) CanRetreat(_ context.Context, id, room, dir string) (string, bool) {
	r, ok := g.rooms[room]
	if !ok || len(r.Exits) == 0 {
		return "", false
	}
	if dir != "" {
		to, ok := r.Exits[dir]
		return to, ok
	}
	dirs := make([]string, 0, len(r.Exits))
	for d := range r.Exits {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	pick := dirs[g.roller.Between(0, len(dirs)-1)]
	g.logger.Debug("random retreat", zap.String("combatant", id), zap.String("room", room), zap.String("dir", pick))
	return r.Exits[pick], true
}

// Relocate records that id is now in room.
func (g *RoomGraph) Relocate(_ context.Context, id, room string) error {
	if !g.Has(room) {
		return fmt.Errorf("relocating %q: unknown room %q", id, room)
	}
	g.mu.Lock()
	g.locations[id] = room
	g.mu.Unlock()
	return nil
}

// Location returns the last room id was relocated to.
func (g *RoomGraph) Location(id string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	room, ok := g.locations[id]
	return room, ok
}
