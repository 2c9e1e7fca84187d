package engine

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"

	"pilothouse-hq/ganymede/pkg/policy"
)

// scopeMatches reports whether a policy's scope covers the action. Global
// scope covers everything, algorithm scope matches on AlgoKey, and segment
// scope requires every selector key to be present with an equal value in
// the evaluation context's segment data.
func scopeMatches(p *policy.Policy, action *Action, evalCtx *Context) bool {
	switch p.Scope {
	case policy.ScopeGlobal:
		return true
	case policy.ScopeAlgorithm:
		return p.Selector["algo_key"] == action.AlgoKey
	case policy.ScopeSegment:
		for k, want := range p.Selector {
			got, ok := evalCtx.SegmentData[k]
			if !ok || got != want {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// inRollout reports whether the action falls inside the policy's rollout
// percentage. The bucket is derived from the action ID so the same action
// always lands in the same bucket under any policy with the same rollout.
func inRollout(p *policy.Policy, action *Action) bool {
	pct := p.Rollout()
	if pct >= 100 {
		return true
	}
	if pct <= 0 {
		return false
	}
	h := fnv.New32a()
	h.Write([]byte(action.ID))
	return int(h.Sum32()%100) < pct
}

// limitScopeKey derives the counting key for a policy's limits. Global
// policies share one bucket, algorithm policies count per algorithm, and
// segment policies count per matched segment value combination.
func limitScopeKey(p *policy.Policy, action *Action, evalCtx *Context) string {
	switch p.Scope {
	case policy.ScopeAlgorithm:
		return action.AlgoKey
	case policy.ScopeSegment:
		keys := make([]string, 0, len(p.Selector))
		for k := range p.Selector {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%s", k, evalCtx.SegmentData[k]))
		}
		return strings.Join(parts, ",")
	default:
		return "global"
	}
}
