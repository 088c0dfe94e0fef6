package storage

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/prasenjit/antbee/internal/models"
)

// positions hands out creation sequence numbers. Seeding from the clock keeps
// them increasing across restarts of the file and SQL stores.
var positions atomic.Int64

func init() {
	positions.Store(time.Now().UnixNano())
}

func nextPosition() int64 {
	return positions.Add(1)
}

// observePosition moves the sequence past a position loaded from disk
func observePosition(p int64) {
	for {
		cur := positions.Load()
		if p <= cur || positions.CompareAndSwap(cur, p) {
			return
		}
	}
}

func sortEndpoints(eps []*models.Endpoint) {
	sort.SliceStable(eps, func(i, j int) bool {
		return eps[i].Position < eps[j].Position
	})
}

func sortVariants(vs []*models.ResponseVariant) {
	sort.SliceStable(vs, func(i, j int) bool {
		return vs[i].Position < vs[j].Position
	})
}

func sortRules(rules []*models.Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority < rules[j].Priority
		}
		return rules[i].Position < rules[j].Position
	})
}

// pickEndpoint applies the active-first rule to candidates sorted by position
func pickEndpoint(candidates []*models.Endpoint) *models.Endpoint {
	for _, ep := range candidates {
		if ep.IsActive {
			return ep
		}
	}
	if len(candidates) > 0 {
		return candidates[0]
	}
	return nil
}

// duplicateRuleID reports the first rule ID that appears twice in rules
func duplicateRuleID(rules []*models.Rule) (string, bool) {
	seen := make(map[string]bool, len(rules))
	for _, r := range rules {
		if seen[r.ID] {
			return r.ID, true
		}
		seen[r.ID] = true
	}
	return "", false
}
