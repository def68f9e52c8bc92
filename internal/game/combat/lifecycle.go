package combat

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/cory-johannsen/skirmish/internal/config"
	"github.com/cory-johannsen/skirmish/internal/game/effect"
)

// Last-chance ability names.
const (
	AvertDefensiveRoll = "defensive_roll"
	AvertDeathWard     = "death_ward"
)

// LethalOutcome reports what applying damage did to the victim.
type LethalOutcome struct {
	Applied int
	// Averted names the last-chance ability that cancelled the hit.
	Averted  string
	Killed   bool
	Position Position
	// Experience is what the attacker earned from this hit, kill award included.
	Experience int
	// Flee is set when the victim dropped below its wimpy threshold.
	Flee bool
}

// Lifecycle handles the consequences of damage: last-chance abilities,
// position changes, death, experience and loot.
type Lifecycle struct {
	cfg      config.CombatConfig
	registry *Registry
	roster   *Roster
	collab   Collaborators
	logger   *zap.Logger
	clock    func() time.Duration
}

// NewLifecycle creates a Lifecycle. clock returns the simulated time.
func NewLifecycle(cfg config.CombatConfig, registry *Registry, roster *Roster, collab Collaborators, logger *zap.Logger, clock func() time.Duration) *Lifecycle {
	return &Lifecycle{cfg: cfg, registry: registry, roster: roster, collab: collab.withDefaults(), logger: logger, clock: clock}
}

// ApplyDamage applies amount mitigated damage from attacker (nil for
// environmental damage) to victim.
//
// Precondition: victim is alive.
// Postcondition: either Averted is set and HP is unchanged, or HP decreased by
// amount. A victim left at HP <= 0 is out of the registry.
func (l *Lifecycle) ApplyDamage(ctx context.Context, attacker, victim *Combatant, amount int) LethalOutcome {
	out := LethalOutcome{Position: victim.Position()}
	if amount <= 0 || !victim.Alive() {
		return out
	}
	if victim.HP-amount <= 0 {
		if ability, ok := l.HandleLethal(ctx, victim); ok {
			out.Averted = ability
			return out
		}
	}

	if attacker != nil && attacker != victim && attacker.IsPlayer() && !victim.IsPlayer() {
		gain := victim.Level * amount
		l.grant(ctx, attacker, gain)
		out.Experience += gain
	}

	victim.HP -= amount
	out.Applied = amount
	l.updatePosition(ctx, victim)
	out.Position = victim.Position()

	if out.Position == Dead {
		out.Experience += l.Kill(ctx, attacker, victim)
		out.Killed = true
		return out
	}
	if victim.HP <= 0 {
		l.registry.Leave(victim.ID)
		victim.Target = ""
		return out
	}
	if victim.Wimpy > 0 && victim.HP > 0 && victim.HP < victim.Wimpy {
		out.Flee = true
	}
	return out
}

// HandleLethal evaluates last-chance abilities in priority order and returns
// the one that triggered.
func (l *Lifecycle) HandleLethal(ctx context.Context, victim *Combatant) (string, bool) {
	now := l.clock()
	if victim.HasFeat(FeatDefensiveRoll) && victim.ready(AvertDefensiveRoll, now) {
		victim.startCooldown(AvertDefensiveRoll, now+l.cfg.AvertDeathCooldown)
		l.logger.Info("death averted", zap.String("combatant", victim.ID), zap.String("ability", AvertDefensiveRoll))
		return AvertDefensiveRoll, true
	}
	if victim.Effects != nil {
		if a, ok := victim.Effects.FirstWithFlag(effect.FlagDeathWard); ok {
			victim.Effects.Remove(a.Def.ID)
			l.logger.Info("death averted", zap.String("combatant", victim.ID), zap.String("ability", AvertDeathWard))
			return AvertDeathWard, true
		}
	}
	return "", false
}

func (l *Lifecycle) updatePosition(ctx context.Context, c *Combatant) {
	ev := healthEvent(c.Position(), c.HP, l.cfg.DeathThreshold, c.IsPlayer())
	if ev == "" {
		return
	}
	if err := c.Transition(ctx, ev); err != nil {
		l.logger.Warn("position transition refused", zap.String("combatant", c.ID), zap.String("event", ev), zap.Error(err))
	}
}

func (l *Lifecycle) grant(ctx context.Context, c *Combatant, amount int) {
	if amount == 0 {
		return
	}
	c.Experience += amount
	l.collab.Economy.GrantExperience(ctx, c, amount)
}

// SoloExperience returns the experience for killer slaying victim alone.
func SoloExperience(killer, victim *Combatant, maxGain int) int {
	if victim.Level < killer.Level-3 {
		return 1
	}
	gain := min(victim.Experience/3, maxGain)
	if diff := victim.Level - killer.Level; diff > 0 {
		gain += gain * min(diff, 8) / 8
	}
	return min(max(gain, 1), maxGain)
}

// GroupShare returns each member's share of victimXP split n ways.
//
// Precondition: n >= 1.
func GroupShare(victimXP, n int) int {
	return (victimXP/3 + n - 1) / n
}

// Kill handles a confirmed death and returns the experience killer earned.
//
// Postcondition: victim is out of the registry, nobody targets it, and it
// has no effects, grapples, leader, mount or rider.
func (l *Lifecycle) Kill(ctx context.Context, killer, victim *Combatant) int {
	ctx, span := tracer.Start(ctx, "combat.kill", trace.WithAttributes(
		attribute.String("victim", victim.ID),
		attribute.Bool("player", victim.IsPlayer()),
	))
	defer span.End()

	room := victim.Room
	audience := l.audience(room)
	earned := 0
	if killer != nil && killer != victim {
		earned = l.award(ctx, killer, victim)
	}
	killerID := ""
	if killer != nil {
		killerID = killer.ID
	}

	if victim.Effects != nil {
		victim.Effects.Clear()
	}
	l.registry.Leave(victim.ID)
	victim.Target = ""
	for _, c := range l.roster.All() {
		if c.Target == victim.ID {
			c.Target = ""
		}
		if c.Leader == victim.ID {
			c.Leader = ""
		}
	}
	victim.Leader = ""
	if mount, ok := l.roster.Get(victim.Mount); ok {
		mount.Rider = ""
	}
	if rider, ok := l.roster.Get(victim.Rider); ok {
		rider.Mount = ""
	}
	victim.Mount, victim.Rider = "", ""
	releaseAll(victim, l.roster)

	l.collab.Narrator.Narrate(ctx, Narration{
		Room: room, Audience: audience, ActorID: killerID, TargetID: victim.ID,
		Text: fmt.Sprintf("%s is dead! R.I.P.", victim.Name),
	})

	if victim.IsPlayer() && victim.Level > 6 {
		victim.Experience /= 2
	}
	if err := l.collab.Economy.GenerateLoot(ctx, victim, killer); err != nil {
		l.logger.Warn("generating loot", zap.String("victim", victim.ID), zap.Error(err))
	}
	l.collab.Quests.RecordKill(ctx, killer, victim)

	record := KillRecord{
		ID: uuid.New(), KillerID: killerID, VictimID: victim.ID, VictimName: victim.Name,
		Room: room, Player: victim.IsPlayer(), Experience: earned, At: l.clock(),
	}
	if err := l.collab.Persist.RecordKill(ctx, record); err != nil {
		l.logger.Warn("recording kill", zap.String("victim", victim.ID), zap.Error(err))
	}

	if victim.IsPlayer() {
		l.recall(ctx, victim)
	} else {
		l.roster.Remove(victim.ID)
	}
	l.logger.Info("combatant killed",
		zap.String("victim", victim.ID),
		zap.String("killer", killerID),
		zap.String("room", room),
		zap.Int("experience", earned),
	)
	span.SetAttributes(attribute.Int("experience", earned))
	return earned
}

// award grants kill experience to killer or its co-located group.
func (l *Lifecycle) award(ctx context.Context, killer, victim *Combatant) int {
	if victim.IsPlayer() {
		return 0
	}
	members := l.groupMembers(killer)
	if len(members) <= 1 {
		gain := SoloExperience(killer, victim, l.cfg.MaxExpGain)
		l.grant(ctx, killer, gain)
		return gain
	}
	share := GroupShare(victim.Experience, len(members))
	earned := 0
	for _, m := range members {
		gain := min(share, l.cfg.MaxExpGain)
		if victim.Level < m.Level-3 {
			gain = 1
		}
		l.grant(ctx, m, gain)
		if m == killer {
			earned = gain
		}
	}
	return earned
}

func (l *Lifecycle) groupMembers(killer *Combatant) []*Combatant {
	if killer.Group == "" {
		return []*Combatant{killer}
	}
	var out []*Combatant
	for _, c := range l.roster.InRoom(killer.Room) {
		if c.Group == killer.Group && c.Alive() {
			out = append(out, c)
		}
	}
	return out
}

func (l *Lifecycle) recall(ctx context.Context, victim *Combatant) {
	victim.HP = 1
	victim.Room = l.cfg.RecallRoom
	if err := victim.Transition(ctx, EventRevive); err != nil {
		victim.SetPosition(Standing)
	}
	if err := l.collab.Mover.Relocate(ctx, victim.ID, l.cfg.RecallRoom); err != nil {
		l.logger.Warn("relocating dead player", zap.String("combatant", victim.ID), zap.Error(err))
	}
	if err := l.collab.Persist.PersistCombatant(ctx, victim); err != nil {
		l.logger.Warn("persisting dead player", zap.String("combatant", victim.ID), zap.Error(err))
	}
}

// Bleed moves a downed player outside the registry one health along its
// course: stunned players regain one and sit up at 1, incapacitated or
// mortally wounded ones lose one and die at the death threshold.
func (l *Lifecycle) Bleed(ctx context.Context, c *Combatant) bool {
	if !c.IsPlayer() || l.registry.Contains(c.ID) {
		return false
	}
	switch c.Position() {
	case Stunned:
		c.HP++
	case Incapacitated, MortallyWounded:
		c.HP--
	default:
		return false
	}
	l.updatePosition(ctx, c)
	if c.Position() == Dead {
		l.Kill(ctx, nil, c)
	}
	return true
}

func (l *Lifecycle) audience(room string) []string {
	var ids []string
	for _, c := range l.roster.InRoom(room) {
		ids = append(ids, c.ID)
	}
	return ids
}
