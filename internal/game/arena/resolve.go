package arena

import (
	"fmt"
	"sort"

	"github.com/cory-johannsen/classquest/internal/game/bestiary"
	"github.com/cory-johannsen/classquest/internal/game/character"
	"github.com/cory-johannsen/classquest/internal/game/dice"
	"github.com/cory-johannsen/classquest/internal/game/grid"
)

// AnimationKind identifies what an Animation shows.
type AnimationKind string

const (
	AnimAttack  AnimationKind = "attack"
	AnimHeal    AnimationKind = "heal"
	AnimDefense AnimationKind = "defense"
	AnimBuff    AnimationKind = "buff"
	AnimMove    AnimationKind = "move"
	AnimMiss    AnimationKind = "miss"
	AnimFizzle  AnimationKind = "fizzle"
	AnimRegen   AnimationKind = "regen"
)

// ActorType distinguishes who performed an animation.
type ActorType string

const (
	ActorParticipant ActorType = "participant"
	ActorMonster     ActorType = "monster"
)

// Animation is one resolved step, in the order clients should replay it.
type Animation struct {
	Seq        int           `json:"seq"`
	Kind       AnimationKind `json:"kind"`
	ActorID    string        `json:"actor_id"`
	ActorType  ActorType     `json:"actor_type"`
	ActorName  string        `json:"actor_name"`
	TargetID   string        `json:"target_id,omitempty"`
	TargetType TargetType    `json:"target_type,omitempty"`
	TargetName string        `json:"target_name,omitempty"`
	SkillID    string        `json:"skill_id,omitempty"`
	Value      int           `json:"value,omitempty"`
	TargetHP   int           `json:"target_hp"`
	Killed     bool          `json:"killed,omitempty"`
	From       *grid.Point   `json:"from,omitempty"`
	To         *grid.Point   `json:"to,omitempty"`
	Narrative  string        `json:"narrative"`
}

// AttackDamage is the shared damage formula:
// max(1, floor(power × skillDamage / 10) − defense).
//
// Postcondition: Returns >= 1.
func AttackDamage(power, skillDamage, defense int) int {
	d := power*skillDamage/10 - defense
	if d < 1 {
		return 1
	}
	return d
}

// HealAmount is max(1, floor(intelligence × heal / 10)).
//
// Postcondition: Returns >= 1.
func HealAmount(intelligence, heal int) int {
	h := intelligence * heal / 10
	if h < 1 {
		return 1
	}
	return h
}

type resolver struct {
	enc    *Encounter
	src    dice.Source
	events []Animation
}

func (r *resolver) emit(a Animation) {
	a.Seq = len(r.events) + 1
	r.events = append(r.events, a)
}

// Resolve executes one round on enc in place: queued player actions by
// descending intelligence, then one turn per living monster, then mana
// regeneration of manaRegen for every living participant.
//
// Precondition: enc is in the action phase; src must be non-nil.
// Postcondition: Returns the ordered animations. Only this function lowers HP.
func Resolve(enc *Encounter, src dice.Source, manaRegen int) []Animation {
	r := &resolver{enc: enc, src: src}

	order := make([]*Participant, len(enc.Participants))
	copy(order, enc.Participants)
	sort.SliceStable(order, func(i, j int) bool {
		return order[i].Snapshot.Stats.Intelligence > order[j].Snapshot.Stats.Intelligence
	})
	for _, p := range order {
		if p.Alive && p.eligible(enc.Round) && p.ActionSubmitted && p.Action != nil {
			r.playerAction(p)
		}
	}

	for _, m := range enc.Monsters {
		if !m.Alive {
			continue
		}
		if len(enc.LivingParticipants()) == 0 {
			break
		}
		r.monsterTurn(m)
	}

	for _, p := range enc.Participants {
		if !p.Alive || p.Mana >= p.MaxMana || manaRegen <= 0 {
			continue
		}
		before := p.Mana
		p.Mana += manaRegen
		if p.Mana > p.MaxMana {
			p.Mana = p.MaxMana
		}
		r.emit(Animation{
			Kind: AnimRegen, ActorID: p.ID, ActorType: ActorParticipant, ActorName: p.StudentID,
			Value: p.Mana - before, TargetHP: p.HP,
			Narrative: fmt.Sprintf("%s recovers %d mana.", p.StudentID, p.Mana-before),
		})
	}
	return r.events
}

func (r *resolver) playerAction(p *Participant) {
	base := Animation{ActorID: p.ID, ActorType: ActorParticipant, ActorName: p.StudentID, SkillID: p.Action.SkillID}
	sk, ok := p.Snapshot.Skill(p.Action.SkillID)
	if !ok || sk.Cost > p.Mana {
		base.Kind = AnimFizzle
		base.TargetHP = p.HP
		base.Narrative = fmt.Sprintf("%s's %s fizzles.", p.StudentID, p.Action.SkillID)
		r.emit(base)
		return
	}
	p.Mana -= sk.Cost

	switch sk.Kind {
	case character.SkillAttack:
		r.playerAttack(p, sk, base)
	case character.SkillHeal:
		target := r.allyTarget(p)
		if target == nil {
			base.Kind = AnimMiss
			base.Narrative = fmt.Sprintf("%s's %s finds no one to heal.", p.StudentID, sk.Name)
			r.emit(base)
			return
		}
		amount := HealAmount(p.Snapshot.Stats.Intelligence, sk.Heal)
		target.HP = clampHP(target.HP+amount, target.MaxHP)
		base.Kind = AnimHeal
		base.TargetID, base.TargetType, base.TargetName = target.ID, TargetParticipant, target.StudentID
		base.Value = amount
		base.TargetHP = target.HP
		base.Narrative = fmt.Sprintf("%s heals %s for %d.", p.StudentID, target.StudentID, amount)
		r.emit(base)
	default:
		// Defense and buff skills are cosmetic.
		target := r.allyTarget(p)
		if target == nil {
			target = p
		}
		base.Kind = AnimDefense
		if sk.Kind == character.SkillBuff {
			base.Kind = AnimBuff
		}
		base.TargetID, base.TargetType, base.TargetName = target.ID, TargetParticipant, target.StudentID
		base.TargetHP = target.HP
		base.Narrative = fmt.Sprintf("%s uses %s on %s.", p.StudentID, sk.Name, target.StudentID)
		r.emit(base)
	}
}

// allyTarget resolves a heal or support target, defaulting to the caster.
// Returns nil if the chosen ally is dead.
func (r *resolver) allyTarget(p *Participant) *Participant {
	if p.Action.TargetID == "" || p.Action.TargetID == p.ID {
		return p
	}
	t, ok := r.enc.Participant(p.Action.TargetID)
	if !ok || !t.Alive {
		return nil
	}
	return t
}

func (r *resolver) playerAttack(p *Participant, sk character.Skill, base Animation) {
	primary, ok := r.enc.Monster(p.Action.TargetID)
	if !ok || !primary.Alive {
		base.Kind = AnimMiss
		base.Narrative = fmt.Sprintf("%s's %s hits nothing.", p.StudentID, sk.Name)
		r.emit(base)
		return
	}
	victims := []*Monster{primary}
	if sk.Radius > 0 {
		victims = victims[:0]
		for _, m := range r.enc.Monsters {
			if m.Alive && m.Position.Manhattan(primary.Position) <= sk.Radius {
				victims = append(victims, m)
			}
		}
	}
	for _, m := range victims {
		dmg := AttackDamage(p.Snapshot.Stats.Force, sk.Damage, m.Defense)
		m.damage(dmg)
		a := base
		a.Kind = AnimAttack
		a.TargetID, a.TargetType, a.TargetName = m.ID, TargetMonster, m.Name
		a.Value = dmg
		a.TargetHP = m.HP
		a.Killed = !m.Alive
		a.Narrative = fmt.Sprintf("%s hits %s with %s for %d.", p.StudentID, m.Name, sk.Name, dmg)
		r.emit(a)
	}
}

func (r *resolver) monsterTurn(m *Monster) {
	target := r.weakestParticipant()
	if target == nil {
		return
	}
	for step := 0; step < MonsterStepsPerTurn && m.Position.Manhattan(target.Position) > MonsterMeleeRange; step++ {
		next, ok := grid.GreedyStep(r.enc.Map, m.Position, target.Position, r.enc.occupiedExcept(m.ID))
		if !ok {
			break
		}
		from := m.Position
		m.Position = next
		r.emit(Animation{
			Kind: AnimMove, ActorID: m.ID, ActorType: ActorMonster, ActorName: m.Name,
			From: &from, To: &next, TargetHP: m.HP,
			Narrative: fmt.Sprintf("%s advances to %s.", m.Name, next),
		})
	}
	if m.Position.Manhattan(target.Position) > MonsterMeleeRange || len(m.Skills) == 0 {
		return
	}

	sk := m.Skills[r.src.Intn(len(m.Skills))]
	victims := []*Participant{target}
	if sk.Target == bestiary.TargetAll {
		victims = r.enc.LivingParticipants()
	}
	for _, p := range victims {
		def := p.Snapshot.Stats.Defense
		if sk.Kind == bestiary.Magical {
			def = p.Snapshot.Stats.MagicDefense
		}
		dmg := AttackDamage(m.Attack, sk.Damage, def)
		p.damage(dmg)
		r.emit(Animation{
			Kind: AnimAttack, ActorID: m.ID, ActorType: ActorMonster, ActorName: m.Name,
			TargetID: p.ID, TargetType: TargetParticipant, TargetName: p.StudentID,
			SkillID: sk.ID, Value: dmg, TargetHP: p.HP, Killed: !p.Alive,
			Narrative: fmt.Sprintf("%s hits %s with %s for %d.", m.Name, p.StudentID, sk.Name, dmg),
		})
	}
}

// weakestParticipant picks the living participant with the lowest HP; ties go
// to the earliest joiner.
func (r *resolver) weakestParticipant() *Participant {
	var best *Participant
	for _, p := range r.enc.Participants {
		if p.Alive && (best == nil || p.HP < best.HP) {
			best = p
		}
	}
	return best
}
