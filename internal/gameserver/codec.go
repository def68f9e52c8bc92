package gameserver

import (
	"bytes"
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cory-johannsen/skirmish/internal/game/combat"
	"github.com/cory-johannsen/skirmish/internal/game/loot"
)

// decodeSpec converts a structpb combatant description into a CombatantSpec.
// Unknown keys are rejected.
func decodeSpec(st *structpb.Struct) (CombatantSpec, error) {
	spec := NewCombatantSpec()
	if st == nil {
		return spec, fmt.Errorf("%w: combatant is required", ErrInvalidSpec)
	}
	raw, err := protojson.Marshal(st)
	if err != nil {
		return spec, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return spec, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	return spec, nil
}

func stringField(in *structpb.Struct, name string) string {
	return in.GetFields()[name].GetStringValue()
}

func intField(in *structpb.Struct, name string) int {
	return int(in.GetFields()[name].GetNumberValue())
}

func refusalMap(r *combat.Refusal) map[string]any {
	return map[string]any{"kind": r.Kind.String(), "cause": r.Cause}
}

func mitigationMap(m combat.MitigationResult) map[string]any {
	absorptions := make([]any, 0, len(m.Absorptions))
	for _, a := range m.Absorptions {
		absorptions = append(absorptions, map[string]any{
			"stage":     a.Stage,
			"amount":    a.Amount,
			"remaining": a.Remaining,
		})
	}
	return map[string]any{
		"raw":         m.Raw,
		"remaining":   m.Remaining,
		"absorptions": absorptions,
		"halted_by":   m.HaltedBy,
		"mana_spent":  m.ManaSpent,
	}
}

func lethalMap(l combat.LethalOutcome) map[string]any {
	return map[string]any{
		"applied":    l.Applied,
		"averted":    l.Averted,
		"killed":     l.Killed,
		"position":   l.Position.String(),
		"experience": l.Experience,
		"flee":       l.Flee,
	}
}

func attackReportMap(r combat.AttackReport) map[string]any {
	m := map[string]any{
		"attacker": r.AttackerID,
		"defender": r.DefenderID,
		"mode":     r.Mode.String(),
		"label":    r.Label,
		"result": map[string]any{
			"outcome":         r.Result.Outcome.String(),
			"natural":         r.Result.Natural,
			"bonus":           r.Result.Bonus,
			"total":           r.Result.Total,
			"armor_class":     r.Result.ArmorClass,
			"threat":          r.Result.Threat,
			"confirm_natural": r.Result.ConfirmNatural,
			"confirm_total":   r.Result.ConfirmTotal,
			"interception":    r.Result.Interception.String(),
			"invalid":         r.Result.Invalid,
		},
		"damage": map[string]any{
			"dice":         r.Damage.Dice,
			"ability":      r.Damage.Ability,
			"flat":         r.Damage.Flat,
			"pre_critical": r.Damage.PreCritical,
			"multiplier":   r.Damage.Multiplier,
			"add_ons":      r.Damage.AddOns,
			"total":        r.Damage.Total,
			"type":         r.Damage.Type,
			"capped":       r.Damage.Capped,
		},
		"mitigation": mitigationMap(r.Mitigation),
		"lethal":     lethalMap(r.Lethal),
	}
	if r.Refusal != nil {
		m["refusal"] = refusalMap(r.Refusal)
	}
	return m
}

func damageReportMap(r combat.DamageReport) map[string]any {
	return map[string]any{
		"target":     r.TargetID,
		"invalid":    r.Invalid,
		"mitigation": mitigationMap(r.Mitigation),
		"lethal":     lethalMap(r.Lethal),
	}
}

func maneuverReportMap(r combat.ManeuverReport) map[string]any {
	m := map[string]any{
		"kind":       r.Kind.String(),
		"natural":    r.Natural,
		"cmb":        r.CMB,
		"cmd":        r.CMD,
		"margin":     r.Margin,
		"success":    r.Success,
		"reversed":   r.Reversed,
		"raw_damage": r.RawDamage,
		"invalid":    r.Invalid,
		"mitigation": mitigationMap(r.Mitigation),
		"lethal":     lethalMap(r.Lethal),
	}
	if r.Disarmed != nil {
		m["disarmed"] = r.Disarmed.Name
	}
	if r.Refusal != nil {
		m["refusal"] = refusalMap(r.Refusal)
	}
	return m
}

func fleeResultMap(r combat.FleeResult) map[string]any {
	m := map[string]any{"from": r.From, "to": r.To}
	if r.Refusal != nil {
		m["refusal"] = refusalMap(r.Refusal)
	}
	return m
}

func viewMap(v combat.View) map[string]any {
	effects := make([]any, 0, len(v.Effects))
	for _, id := range v.Effects {
		effects = append(effects, id)
	}
	return map[string]any{
		"id":       v.ID,
		"name":     v.Name,
		"kind":     v.Kind.String(),
		"room":     v.Room,
		"hp":       v.HP,
		"max_hp":   v.MaxHP,
		"mana":     v.Mana,
		"position": v.Position.String(),
		"target":   v.Target,
		"engaged":  v.Engaged,
		"phase":    v.Phase,
		"health":   v.Health,
		"effects":  effects,
	}
}

func attackLinesMap(lines []combat.AttackLine) map[string]any {
	out := make([]any, 0, len(lines))
	for _, l := range lines {
		out = append(out, map[string]any{
			"index":   l.Index,
			"phase":   l.Phase,
			"mode":    l.Mode.String(),
			"penalty": l.Penalty,
			"label":   l.Label,
			"bonus":   l.Bonus,
			"weapon":  l.Weapon,
		})
	}
	return map[string]any{"attacks": out}
}

func killsMap(kills []combat.KillRecord) map[string]any {
	out := make([]any, 0, len(kills))
	for _, k := range kills {
		out = append(out, map[string]any{
			"id":          k.ID.String(),
			"killer":      k.KillerID,
			"victim":      k.VictimID,
			"victim_name": k.VictimName,
			"room":        k.Room,
			"player":      k.Player,
			"experience":  k.Experience,
			"at_ms":       k.At.Milliseconds(),
		})
	}
	return map[string]any{"kills": out}
}

func corpsesMap(corpses []loot.Corpse) map[string]any {
	out := make([]any, 0, len(corpses))
	for _, c := range corpses {
		items := make([]any, 0, len(c.Loot.Items))
		for _, it := range c.Loot.Items {
			items = append(items, map[string]any{"item": it.ItemDefID, "quantity": it.Quantity})
		}
		out = append(out, map[string]any{
			"id":       c.ID.String(),
			"victim":   c.VictimID,
			"name":     c.Name,
			"room":     c.Room,
			"killer":   c.KillerID,
			"currency": c.Loot.Currency,
			"items":    items,
		})
	}
	return map[string]any{"corpses": out}
}

func stringList(key string, values []string) map[string]any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		out = append(out, v)
	}
	return map[string]any{key: out}
}
