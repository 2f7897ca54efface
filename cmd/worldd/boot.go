package main

import (
	"go.uber.org/zap"

	"github.com/caelmor/world/internal/ids"
	"github.com/caelmor/world/internal/sim"
	"github.com/caelmor/world/internal/world"
)

// verifyIdentifierNamespaces runs the debug-build namespace guard over the
// canonical identifier types before any wiring. Release builds elide it.
func verifyIdentifierNamespaces() {
	ids.VerifyNamespace(ids.EntityHandle(0))
	ids.VerifyNamespace(ids.SessionId(""))
	ids.VerifyNamespace(ids.PlayerId(""))
	ids.VerifyNamespace(ids.SaveId(""))
	ids.VerifyNamespace(ids.ZoneId(0))
	ids.VerifyNamespace(ids.ItemInstanceId(0))
	ids.VerifyNamespace(ids.NpcId(0))
	ids.VerifyNamespace(ids.QuestInstanceId(0))
}

// worldBoot builds the starting world: it seeds zone 1 with eight entities at
// health 100 so a connecting client has something to replicate.
func worldBoot(logger *zap.Logger) *world.World {
	w := world.New()
	zone := ids.ZoneId(1)
	for i := 0; i < 8; i++ {
		w.Spawn(zone, 100)
	}
	logger.Info("world seeded", zap.Uint32("zone", uint32(zone)), zap.Int("entities", 8))
	return w
}

// worldBootGate returns the eligibility gate chain head for the seeded world.
func worldBootGate(w *world.World) sim.EligibilityGate {
	return world.AliveGate{World: w}
}
