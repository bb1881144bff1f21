package world

import (
	"context"
	"errors"
	"fmt"
	"log"
)

// Well-known ids for the seed world. RoomOrigin is also where new users
// arrive on first connect.
const (
	RoomOrigin = "room:origin"
	RoomGarden = "room:garden"
)

// Seed populates a store with a minimal starting world: two linked rooms, a
// takeable item, and an item carrying a local verb override. Each entity is
// created only if missing, so an interrupted earlier seed is healed on the
// next start and existing entities are never overwritten.
func Seed(ctx context.Context, s Store) error {
	entities := []Entity{
		{
			ID:   RoomOrigin,
			Kind: KindRoom,
			Name: "The Welcome Hall",
			Description: "A warm, candle-lit hall with a flagstone floor. " +
				"A battered noticeboard hangs by the door. An archway " +
				"leads north into a garden.",
			Exits:    map[string]string{"north": RoomGarden},
			Contents: []string{"thing:lantern", "thing:bell"},
		},
		{
			ID:   RoomGarden,
			Kind: KindRoom,
			Name: "The Walled Garden",
			Description: "Rosemary and mint crowd the beds of a small " +
				"walled garden. The hall lies back to the south.",
			Exits: map[string]string{"south": RoomOrigin},
		},
		{
			ID:          "thing:lantern",
			Kind:        KindThing,
			Name:        "brass lantern",
			Aliases:     []string{"lantern", "lamp"},
			Description: "A dented brass lantern. It still lights.",
			Location:    RoomOrigin,
		},
		{
			ID:          "thing:bell",
			Kind:        KindThing,
			Name:        "small bell",
			Aliases:     []string{"bell"},
			Description: "A small hand bell on a worn leather strap.",
			Location:    RoomOrigin,
			Verbs: map[string]string{
				"ring": "%a rings the small bell and a bright chime fills the room.",
			},
		},
	}

	created := 0
	for _, e := range entities {
		if _, err := s.Get(ctx, e.ID); err == nil {
			continue
		} else if !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("world: seed check %s: %w", e.ID, err)
		}
		if _, err := s.Create(ctx, e); err != nil {
			// Another process seeded this entity between our check and
			// the create.
			if errors.Is(err, ErrVersionConflict) {
				continue
			}
			return fmt.Errorf("world: seed %s: %w", e.ID, err)
		}
		created++
	}
	if created > 0 {
		log.Printf("world: seeded %d starting entities", created)
	}
	return nil
}
