package advisory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

type memStore struct {
	financials   map[uuid.UUID]Financials
	constraints  map[uuid.UUID]*Constraints
	mentors      map[Persona]Mentor
	templates    map[string]Template
	active       []Profile
	interactions []Interaction
	snapshots    []Snapshot

	failLoad      map[uuid.UUID]bool
	templateReads int
}

func newMemStore() *memStore {
	return &memStore{
		financials:  map[uuid.UUID]Financials{},
		constraints: map[uuid.UUID]*Constraints{},
		mentors:     map[Persona]Mentor{},
		templates:   map[string]Template{},
		failLoad:    map[uuid.UUID]bool{},
	}
}

func (s *memStore) addMentor(p Persona, name string) Mentor {
	m := Mentor{ID: uuid.New(), Name: name, Persona: p}
	s.mentors[p] = m
	return m
}

func (s *memStore) addTemplate(m Mentor, triggerType, body, ctaAction string, priority int) Template {
	t := Template{
		ID:           uuid.New(),
		MentorID:     m.ID,
		TriggerType:  triggerType,
		Body:         body,
		CTAText:      "Take a look",
		CTAAction:    ctaAction,
		Priority:     priority,
		PointsReward: 10,
	}
	s.templates[m.ID.String()+":"+triggerType] = t
	return t
}

func (s *memStore) addPlayer(f Financials) uuid.UUID {
	if f.Profile.PlayerID == uuid.Nil {
		f.Profile.PlayerID = uuid.New()
	}
	s.financials[f.Profile.PlayerID] = f
	s.active = append(s.active, f.Profile)
	return f.Profile.PlayerID
}

func (s *memStore) Profile(_ context.Context, playerID uuid.UUID) (Profile, error) {
	f, ok := s.financials[playerID]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return f.Profile, nil
}

func (s *memStore) LoadFinancials(_ context.Context, playerID uuid.UUID, _ time.Time) (Financials, error) {
	if s.failLoad[playerID] {
		return Financials{}, errors.New("connection reset")
	}
	f, ok := s.financials[playerID]
	if !ok {
		return Financials{}, ErrNotFound
	}
	return f, nil
}

func (s *memStore) ActiveConstraints(_ context.Context, playerID uuid.UUID) (*Constraints, error) {
	return s.constraints[playerID], nil
}

func (s *memStore) MentorByPersona(_ context.Context, p Persona) (Mentor, error) {
	m, ok := s.mentors[p]
	if !ok {
		return Mentor{}, ErrNotFound
	}
	return m, nil
}

func (s *memStore) Template(_ context.Context, mentorID uuid.UUID, triggerType string) (Template, error) {
	s.templateReads++
	t, ok := s.templates[mentorID.String()+":"+triggerType]
	if !ok {
		return Template{}, ErrNotFound
	}
	return t, nil
}

func (s *memStore) ActivePlayers(_ context.Context, _ time.Time) ([]Profile, error) {
	return s.active, nil
}

func (s *memStore) RecordInteraction(_ context.Context, in Interaction) (Interaction, error) {
	in.ID = uuid.New()
	s.interactions = append(s.interactions, in)
	return in, nil
}

func (s *memStore) RecordSnapshot(_ context.Context, snap Snapshot) error {
	s.snapshots = append(s.snapshots, snap)
	return nil
}

func (s *memStore) find(playerID, id uuid.UUID) (*Interaction, error) {
	for i := range s.interactions {
		if s.interactions[i].ID == id && s.interactions[i].PlayerID == playerID {
			return &s.interactions[i], nil
		}
	}
	return nil, ErrNotFound
}

func (s *memStore) MarkFollowed(_ context.Context, playerID, id uuid.UUID, fallbackPoints int, at time.Time) (Interaction, error) {
	in, err := s.find(playerID, id)
	if err != nil {
		return Interaction{}, err
	}
	if !in.ActionTaken {
		points := fallbackPoints
		if in.MessageID != nil {
			for _, t := range s.templates {
				if t.ID == *in.MessageID && t.PointsReward > 0 {
					points = t.PointsReward
				}
			}
		}
		in.ActionTaken = true
		in.ActionTakenAt = &at
		in.PointsEarned = points
		in.RelationshipScore += points
	}
	return *in, nil
}

func (s *memStore) MarkRead(_ context.Context, playerID, id uuid.UUID, at time.Time) (Interaction, error) {
	in, err := s.find(playerID, id)
	if err != nil {
		return Interaction{}, err
	}
	if in.ReadAt == nil {
		in.ReadAt = &at
	}
	return *in, nil
}

func (s *memStore) Interactions(_ context.Context, playerID uuid.UUID) ([]Interaction, error) {
	var out []Interaction
	for _, in := range s.interactions {
		if in.PlayerID == playerID {
			out = append(out, in)
		}
	}
	return out, nil
}
