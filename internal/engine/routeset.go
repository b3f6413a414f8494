package engine

import "eptun-session/internal/cidr"

// computeRouteSets implements the pure part of step 10: parsing, include/
// exclude deduplication, and the v6-exclude-drop rule (dropped when no v6
// include CIDR is present). It has no OS dependency so it can be exercised
// without a route backend.
func computeRouteSets(includeCidrs, excludeCidrs, dynamicExcludes, cnExcludes []string) (includes, excludes []cidr.Route, v6Dropped int) {
	includeSet := map[cidr.Route]bool{}
	for _, s := range includeCidrs {
		r, err := cidr.Parse(s)
		if err != nil {
			continue
		}
		if !includeSet[r] {
			includeSet[r] = true
			includes = append(includes, r)
		}
	}

	hasV6Include := false
	for _, r := range includes {
		if r.Family == cidr.FamilyV6 {
			hasV6Include = true
			break
		}
	}

	var allExcludeStrs []string
	allExcludeStrs = append(allExcludeStrs, excludeCidrs...)
	allExcludeStrs = append(allExcludeStrs, dynamicExcludes...)
	allExcludeStrs = append(allExcludeStrs, cnExcludes...)

	excludeSet := map[cidr.Route]bool{}
	for _, s := range allExcludeStrs {
		r, err := cidr.Parse(s)
		if err != nil {
			continue
		}
		if r.Family == cidr.FamilyV6 && !hasV6Include {
			v6Dropped++
			continue
		}
		if !excludeSet[r] {
			excludeSet[r] = true
			excludes = append(excludes, r)
		}
	}

	return includes, excludes, v6Dropped
}

// excludeMetric computes max(1, routeMetric-1), the metric used for exclude
// routes per spec.
func excludeMetric(routeMetric int) uint32 {
	m := routeMetric - 1
	if m < 1 {
		m = 1
	}
	return uint32(m)
}
