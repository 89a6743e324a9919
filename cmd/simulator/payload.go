package main

import (
	"encoding/json"
	"math/rand"
)

// sensorRange is the uniform range a simulated field is drawn from.
type sensorRange struct {
	key      string
	min, max float64
}

var sensorRanges = []sensorRange{
	{"weight", 100, 1000},          // kg
	{"windSpeed", 0, 20},           // m/s
	{"stability", 50, 100},         // %
	{"boomAngle", 0, 90},           // degrees
	{"swingSpeed", 0, 5},           // degrees/s
	{"energyConsumption", 10, 100}, // kW
}

// -----------------------------------------------------------------------------

type generator struct {
	rng      *rand.Rand
	badEvery int
	count    int
}

func newGenerator(rng *rand.Rand, badEvery int) *generator {
	return &generator{rng: rng, badEvery: badEvery}
}

// next returns the next payload. Every badEvery-th payload carries a textual
// weight so the relay's decode error path can be exercised against a live
// broker.
func (g *generator) next() ([]byte, bool) {
	g.count++
	doc := make(map[string]interface{}, len(sensorRanges))
	for _, r := range sensorRanges {
		doc[r.key] = r.min + g.rng.Float64()*(r.max-r.min)
	}

	bad := g.badEvery > 0 && g.count%g.badEvery == 0
	if bad {
		doc["weight"] = "unreadable"
	}

	payload, _ := json.Marshal(doc)
	return payload, bad
}
