package combat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/cory-johannsen/skirmish/internal/config"
	"github.com/cory-johannsen/skirmish/internal/game/dice"
	"github.com/cory-johannsen/skirmish/internal/game/effect"
)

var tracer = otel.Tracer("github.com/cory-johannsen/skirmish/internal/game/combat")

// AttackReport is the full outcome of one dispatched attack.
type AttackReport struct {
	AttackerID string
	DefenderID string
	Mode       Mode
	Label      string
	Result     AttackResult
	Refusal    *Refusal
	Damage     Damage
	Mitigation MitigationResult
	Lethal     LethalOutcome
}

// DamageReport is the outcome of raw damage injected from outside an attack.
type DamageReport struct {
	TargetID   string
	Invalid    bool
	Mitigation MitigationResult
	Lethal     LethalOutcome
}

// ManeuverReport is the outcome of a maneuver including any grapple damage.
type ManeuverReport struct {
	ManeuverResult
	Mitigation MitigationResult
	Lethal     LethalOutcome
}

// FleeResult is the outcome of a flee attempt.
type FleeResult struct {
	Refusal *Refusal
	From    string
	To      string
}

// AttackLine is one planned attack rendered with its attack bonus.
type AttackLine struct {
	PlannedAttack
	Bonus  int
	Weapon string
}

// View is a read-only snapshot of a combatant.
type View struct {
	ID       string
	Name     string
	Kind     Kind
	Room     string
	HP       int
	MaxHP    int
	Mana     int
	Position Position
	Target   string
	Engaged  bool
	Phase    int
	Health   string
	Effects  []string
}

// Engine is the explicit combat context. It owns the roster, the engagement
// registry and every component. All exported methods are safe for
// concurrent use; one mutex serialises them with pulses.
type Engine struct {
	mu sync.Mutex

	cfg    config.CombatConfig
	logger *zap.Logger
	roller *dice.Roller
	collab Collaborators
	stages []Stage

	registry  *Registry
	roster    *Roster
	router    *Router
	resolver  *Resolver
	damage    *DamageComputer
	pipeline  *Pipeline
	maneuvers *ManeuverEngine
	lifecycle *Lifecycle
	scheduler *Scheduler

	pulses int64
}

// Option configures an Engine.
type Option func(*Engine)

// WithCollaborators sets the outbound collaborators.
func WithCollaborators(c Collaborators) Option {
	return func(e *Engine) { e.collab = c }
}

// WithStages replaces the default mitigation stages.
func WithStages(stages ...Stage) Option {
	return func(e *Engine) { e.stages = stages }
}

// NewEngine creates an Engine.
//
// Precondition: cfg must be valid; roller and logger must be non-nil.
// Postcondition: Returns an Engine with an empty roster at simulated time 0.
func NewEngine(cfg config.CombatConfig, roller *dice.Roller, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{cfg: cfg, logger: logger, roller: roller}
	for _, o := range opts {
		o(e)
	}
	e.collab = e.collab.withDefaults()
	if e.stages == nil {
		e.stages = DefaultStages(roller, cfg)
	}
	e.registry = NewRegistry()
	e.roster = NewRoster()
	e.router = NewRouter(cfg)
	e.resolver = NewResolver(roller, cfg, logger)
	e.damage = NewDamageComputer(roller, cfg, logger)
	e.pipeline = NewPipeline(logger, e.stages...)
	e.maneuvers = NewManeuverEngine(roller, e.damage, logger)
	e.lifecycle = NewLifecycle(cfg, e.registry, e.roster, e.collab, logger, e.now)
	e.scheduler = newScheduler(e.registry, e.router, e, logger)
	return e
}

func (e *Engine) now() time.Duration {
	return time.Duration(e.pulses) * e.cfg.PhaseLength()
}

// Now returns the simulated time: pulses elapsed times the phase length.
func (e *Engine) Now() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now()
}

// Join adds c to the roster.
//
// Precondition: c must be non-nil with a non-empty ID.
// Postcondition: Returns ErrAlreadyJoined if the ID is taken.
func (e *Engine) Join(c *Combatant) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.roster.Add(c) {
		return fmt.Errorf("joining %q: %w", c.ID, ErrAlreadyJoined)
	}
	c.effects()
	c.resetRound()
	return nil
}

// Leave disengages id and removes it from the roster.
func (e *Engine) Leave(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.roster.Get(id)
	if !ok {
		return fmt.Errorf("leaving %q: %w", id, ErrCombatantNotFound)
	}
	e.disengage(ctx, c)
	releaseAll(c, e.roster)
	for _, o := range e.roster.All() {
		if o.Target == id {
			o.Target = ""
		}
	}
	e.roster.Remove(id)
	return nil
}

// Combatant returns the live combatant for id. Callers must not mutate it
// concurrently with the engine.
func (e *Engine) Combatant(id string) (*Combatant, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.roster.Get(id)
}

// View returns a snapshot of id.
func (e *Engine) View(id string) (View, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.roster.Get(id)
	if !ok {
		return View{}, fmt.Errorf("viewing %q: %w", id, ErrCombatantNotFound)
	}
	v := View{
		ID: c.ID, Name: c.Name, Kind: c.Kind, Room: c.Room,
		HP: c.HP, MaxHP: c.MaxHP, Mana: c.Mana,
		Position: c.Position(), Target: c.Target,
		Engaged: e.registry.Contains(c.ID), Phase: e.registry.Phase(c.ID),
		Health: HealthDescription(c.HP, c.MaxHP),
	}
	for _, a := range c.effects().All() {
		v.Effects = append(v.Effects, a.Def.ID)
	}
	return v, nil
}

// Engaged reports whether id is in the engagement registry.
func (e *Engine) Engaged(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.Contains(id)
}

// Order returns the engaged combatant IDs in initiative order.
func (e *Engine) Order() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var ids []string
	for _, c := range e.registry.Order() {
		ids = append(ids, c.ID)
	}
	return ids
}

// Pulse advances every engaged combatant by one phase in initiative order,
// then bleeds dying players once per round.
func (e *Engine) Pulse(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pulses++
	phases := e.router.phases()
	for _, c := range e.registry.Order() {
		if !e.registry.Contains(c.ID) {
			continue
		}
		phase := e.registry.advance(c.ID, phases)
		e.scheduler.Tick(ctx, c, phase)
	}
	if e.pulses%int64(phases) == 0 {
		for _, c := range e.roster.All() {
			e.lifecycle.Bleed(ctx, c)
		}
	}
}

// StartEngagement engages a with b, and b with a unless b is already fighting.
//
// Postcondition: both are registered; a.Target == b.
func (e *Engine) StartEngagement(ctx context.Context, aID, bID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.roster.Get(aID)
	if !ok {
		return fmt.Errorf("engaging %q: %w", aID, ErrCombatantNotFound)
	}
	b, ok := e.roster.Get(bID)
	if !ok {
		return fmt.Errorf("engaging %q: %w", bID, ErrCombatantNotFound)
	}
	switch {
	case aID == bID, !a.Alive(), !b.Alive(), a.Downed(), b.Downed():
		return fmt.Errorf("engaging %q with %q: %w", aID, bID, ErrCannotEngage)
	case a.Room != b.Room:
		return fmt.Errorf("engaging %q with %q: %w", aID, bID, ErrNotCoLocated)
	case e.registry.Contains(aID) && a.Target == bID:
		return fmt.Errorf("engaging %q with %q: %w", aID, bID, ErrAlreadyEngaged)
	}
	e.engage(ctx, a, b)
	return nil
}

func (e *Engine) engage(ctx context.Context, a, b *Combatant) {
	a.Target = b.ID
	if !e.registry.Contains(a.ID) {
		RollInitiative(a, e.roller)
		e.registry.Join(a)
	}
	if a.Position() == Standing {
		_ = a.Transition(ctx, EventEngage)
	}
	if !b.Downed() && (!e.registry.Contains(b.ID) || b.Target == "") {
		b.Target = a.ID
		if !e.registry.Contains(b.ID) {
			RollInitiative(b, e.roller)
			e.registry.Join(b)
		}
		if b.Position() == Standing {
			_ = b.Transition(ctx, EventEngage)
		}
	}
	e.logger.Info("engagement started", zap.String("attacker", a.ID), zap.String("defender", b.ID))
}

// EndEngagement removes id from the registry together with its schedule.
// Calling it for a disengaged or unknown combatant is a no-op.
func (e *Engine) EndEngagement(ctx context.Context, id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.roster.Get(id); ok {
		e.disengage(ctx, c)
	}
}

func (e *Engine) disengage(ctx context.Context, c *Combatant) {
	if !e.registry.Leave(c.ID) {
		return
	}
	c.Target = ""
	if c.Position() == Fighting {
		_ = c.Transition(ctx, EventDisengage)
	}
	e.logger.Debug("engagement ended", zap.String("combatant", c.ID))
}

// RequestAttack makes one attack outside the round schedule, spending the
// attacker's standard action and engaging both sides.
// Unknown or dead participants yield a silent Miss.
func (e *Engine) RequestAttack(ctx context.Context, attackerID, defenderID string, mode Mode, penalty int) AttackReport {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, okA := e.roster.Get(attackerID)
	d, okD := e.roster.Get(defenderID)
	rep := AttackReport{AttackerID: attackerID, DefenderID: defenderID, Mode: mode, Label: "requested"}
	if !okA || !okD || attackerID == defenderID || !a.Alive() || !d.Alive() || a.Room != d.Room {
		rep.Result = AttackResult{Outcome: Miss, Invalid: true}
		return rep
	}
	switch {
	case a.Helpless() || a.hasFlag(effect.FlagPreventsAction):
		rep.Refusal = refuse(RuleViolation, "you cannot act right now")
		return rep
	case !a.Actions.Standard:
		rep.Refusal = refuse(ResourceUnavailable, "you have already acted this round")
		return rep
	}
	if !e.registry.Contains(a.ID) || a.Target == "" {
		e.engage(ctx, a, d)
	}
	rep = e.dispatch(ctx, a, d, PlannedAttack{Mode: mode, Penalty: penalty, Label: "requested"})
	if rep.Refusal == nil {
		a.Actions.Standard = false
		a.Acted = true
	}
	return rep
}

// dispatch executes one attack through resolution, damage, mitigation and lifecycle.
func (e *Engine) dispatch(ctx context.Context, a, d *Combatant, pa PlannedAttack) AttackReport {
	rep := AttackReport{AttackerID: a.ID, Mode: pa.Mode, Label: pa.Label}
	if d == nil || !a.Alive() || !d.Alive() {
		rep.Result = AttackResult{Outcome: Miss, Invalid: true}
		return rep
	}
	rep.DefenderID = d.ID
	w := a.WeaponFor(pa.Mode)
	if pa.Mode == ModeRanged {
		if r := e.spendAmmo(a, w); r != nil {
			rep.Refusal = r
			if en, ok := e.registry.entry(a.ID); ok {
				en.rangedCancelled = true
			}
			e.narrate(ctx, a.Room, []string{a.ID}, a, nil, r.Cause)
			return rep
		}
	}

	audience := e.lifecycle.audience(d.Room)
	ac := AttackContext{
		Attacker: a, Defender: d, Mode: pa.Mode, Penalty: pa.Penalty, Phase: pa.Phase,
		Flanked: len(e.registry.TargetingOf(d.ID)) >= 2,
	}
	rep.Result = e.resolver.Resolve(ctx, ac)
	pc := &ProcContext{Attacker: a, Defender: d, Weapon: w, Roller: e.roller, Saves: e.collab.Saves, Effects: e.collab.Effects}

	switch {
	case rep.Result.Invalid:
		return rep
	case rep.Result.Interception != InterceptNone:
		if rep.Result.Interception == InterceptParry {
			fireProcs(ctx, d.WeaponFor(ModePrimary), triggerParry, pc)
		}
		e.narrate(ctx, d.Room, audience, a, d, fmt.Sprintf("%s's attack is stopped by %s's %s.", a.Name, d.Name, rep.Result.Interception))
		return rep
	case rep.Result.Outcome == Miss:
		fireProcs(ctx, d.WeaponFor(ModePrimary), triggerDodge, pc)
		e.narrate(ctx, d.Room, audience, a, d, fmt.Sprintf("%s misses %s.", a.Name, d.Name))
		return rep
	}

	crit := rep.Result.Outcome == CriticalHit
	rep.Damage = e.damage.Compute(ac, w, crit)
	pc.Damage = rep.Damage.Total
	fireProcs(ctx, w, triggerHit, pc)
	if crit {
		fireProcs(ctx, w, triggerCrit, pc)
	}
	raw := rep.Damage.Total + pc.ExtraDamage
	if e.cfg.DamageCap > 0 {
		raw = min(raw, e.cfg.DamageCap)
	}
	hit := Incoming{Attacker: a, Defender: d, Amount: raw, DamageType: rep.Damage.Type, Origin: OriginWeapon, Magic: w.IsMagic()}
	if w != nil {
		hit.Material = w.Material
	}
	rep.Mitigation = e.pipeline.Apply(ctx, hit)
	if rep.Mitigation.Remaining == 0 {
		fireProcs(ctx, w, triggerGlance, pc)
		e.narrate(ctx, d.Room, audience, a, d, fmt.Sprintf("%s's blow glances off %s.", a.Name, d.Name))
		return rep
	}
	verb := "hits"
	if crit {
		verb = "critically hits"
	}
	e.narrate(ctx, d.Room, audience, a, d, fmt.Sprintf("%s %s %s for %d damage.", a.Name, verb, d.Name, rep.Mitigation.Remaining))

	rep.Lethal = e.lifecycle.ApplyDamage(ctx, a, d, rep.Mitigation.Remaining)
	e.afterDamage(ctx, a, d, audience, rep.Lethal)
	if rep.Lethal.Killed {
		e.afterKill(ctx, a, pa)
	}
	return rep
}

func (e *Engine) spendAmmo(a *Combatant, w *Weapon) *Refusal {
	if a.Ammo <= 0 {
		return refuse(ResourceUnavailable, "you are out of ammunition")
	}
	reload := w != nil && w.RequiresReload && !a.HasFeat(FeatRapidReload)
	if reload && !a.Actions.Move {
		return refuse(ResourceUnavailable, "you have no time to reload")
	}
	a.Ammo--
	if reload {
		a.Actions.Move = false
	}
	return nil
}

func (e *Engine) afterDamage(ctx context.Context, src, d *Combatant, audience []string, out LethalOutcome) {
	if out.Averted != "" {
		e.narrate(ctx, d.Room, audience, src, d, fmt.Sprintf("%s narrowly avoids a killing blow!", d.Name))
		return
	}
	if out.Flee {
		e.flee(ctx, d, "")
	}
}

// afterKill retargets the killer onto another foe and queues a cleave.
func (e *Engine) afterKill(ctx context.Context, a *Combatant, pa PlannedAttack) {
	if !a.Alive() {
		return
	}
	for _, foe := range e.registry.TargetingOf(a.ID) {
		if foe.Room != a.Room || !foe.Alive() {
			continue
		}
		a.Target = foe.ID
		if a.HasFeat(FeatCleave) {
			e.registry.enqueue(a.ID, followUp{Mode: pa.Mode, Penalty: pa.Penalty, Reason: "cleave"})
		}
		return
	}
	e.disengage(ctx, a)
}

// ApplyRawDamage injects damage from spells, traps or the environment through
// the mitigation pipeline and lifecycle. sourceID may be empty.
func (e *Engine) ApplyRawDamage(ctx context.Context, sourceID, targetID string, amount int, damageType string, origin Origin) DamageReport {
	e.mu.Lock()
	defer e.mu.Unlock()
	rep := DamageReport{TargetID: targetID}
	t, ok := e.roster.Get(targetID)
	if !ok || !t.Alive() {
		rep.Invalid = true
		return rep
	}
	src, _ := e.roster.Get(sourceID)
	if e.cfg.DamageCap > 0 {
		amount = min(amount, e.cfg.DamageCap)
	}
	audience := e.lifecycle.audience(t.Room)
	rep.Mitigation = e.pipeline.Apply(ctx, Incoming{
		Attacker: src, Defender: t, Amount: amount, DamageType: damageType,
		Origin: origin, Magic: origin == OriginSpell,
	})
	if rep.Mitigation.Remaining > 0 {
		e.narrate(ctx, t.Room, audience, src, t, fmt.Sprintf("%s takes %d %s damage.", t.Name, rep.Mitigation.Remaining, damageType))
	}
	rep.Lethal = e.lifecycle.ApplyDamage(ctx, src, t, rep.Mitigation.Remaining)
	e.afterDamage(ctx, src, t, audience, rep.Lethal)
	return rep
}

// Maneuver attempts a combat maneuver, spending the initiator's standard action.
// Unknown, dead or separated participants yield a silent zero-margin result
// with Invalid set.
func (e *Engine) Maneuver(ctx context.Context, initiatorID, targetID string, kind ManeuverKind, extra int) ManeuverReport {
	e.mu.Lock()
	defer e.mu.Unlock()
	rep := ManeuverReport{ManeuverResult: ManeuverResult{Kind: kind}}
	actor, okI := e.roster.Get(initiatorID)
	target, okT := e.roster.Get(targetID)
	switch {
	case !okI || !okT || initiatorID == targetID || actor.Room != target.Room:
		rep.Invalid = true
		return rep
	case !actor.Actions.Standard:
		rep.Refusal = refuse(ResourceUnavailable, "you have already acted this round")
		return rep
	}
	audience := e.lifecycle.audience(target.Room)
	rep.ManeuverResult = e.maneuvers.Attempt(ctx, actor, target, kind, extra)
	if rep.Refusal != nil || rep.Invalid {
		return rep
	}
	actor.Actions.Standard = false
	actor.Acted = true
	result := "fails"
	if rep.Success {
		result = "succeeds"
	}
	e.narrate(ctx, target.Room, audience, actor, target, fmt.Sprintf("%s attempts to %s %s and %s.", actor.Name, kind, target.Name, result))
	if rep.RawDamage > 0 {
		rep.Mitigation = e.pipeline.Apply(ctx, Incoming{Attacker: actor, Defender: target, Amount: rep.RawDamage, DamageType: DamageBludgeoning, Origin: OriginWeapon, IgnoreConcealment: true})
		rep.Lethal = e.lifecycle.ApplyDamage(ctx, actor, target, rep.Mitigation.Remaining)
		e.afterDamage(ctx, actor, target, audience, rep.Lethal)
	}
	return rep
}

// Flee moves id out of its room in dir ("" = any exit), ending its engagement.
func (e *Engine) Flee(ctx context.Context, id, dir string) (FleeResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.roster.Get(id)
	if !ok {
		return FleeResult{}, fmt.Errorf("fleeing %q: %w", id, ErrCombatantNotFound)
	}
	return e.flee(ctx, c, dir), nil
}

func (e *Engine) flee(ctx context.Context, c *Combatant, dir string) FleeResult {
	res := FleeResult{From: c.Room}
	switch {
	case c.Position() < Fighting:
		res.Refusal = refuse(RuleViolation, "you need to be on your feet to flee")
		return res
	case c.grappledBy != "":
		res.Refusal = refuse(RuleViolation, "you are held fast")
		return res
	}
	to, ok := e.collab.Mover.CanRetreat(ctx, c.ID, c.Room, dir)
	if !ok {
		res.Refusal = refuse(RuleViolation, "you cannot escape that way")
		return res
	}
	audience := e.lifecycle.audience(c.Room)
	e.disengage(ctx, c)
	releaseAll(c, e.roster)
	if err := e.collab.Mover.Relocate(ctx, c.ID, to); err != nil {
		e.logger.Warn("relocating fleeing combatant", zap.String("combatant", c.ID), zap.Error(err))
	}
	c.Room = to
	res.To = to
	e.narrate(ctx, res.From, audience, c, nil, fmt.Sprintf("%s panics, and attempts to flee!", c.Name))
	return res
}

// ListAttacks renders id's round plan with attack bonuses.
func (e *Engine) ListAttacks(id string) ([]AttackLine, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.roster.Get(id)
	if !ok {
		return nil, fmt.Errorf("listing attacks for %q: %w", id, ErrCombatantNotFound)
	}
	var out []AttackLine
	for _, pa := range e.router.Plan(c) {
		line := AttackLine{PlannedAttack: pa, Bonus: e.resolver.AttackBonus(c, pa.Mode, pa.Penalty), Weapon: "unarmed"}
		if w := c.WeaponFor(pa.Mode); w != nil {
			line.Weapon = w.Name
		}
		out = append(out, line)
	}
	return out, nil
}

// Queued returns the number of follow-up attacks waiting for id's next tick.
func (e *Engine) Queued(id string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.Queued(id)
}

func (e *Engine) narrate(ctx context.Context, room string, audience []string, actor, target *Combatant, text string) {
	n := Narration{Room: room, Audience: audience, Text: text}
	if actor != nil {
		n.ActorID = actor.ID
	}
	if target != nil {
		n.TargetID = target.ID
	}
	e.collab.Narrator.Narrate(ctx, n)
}
