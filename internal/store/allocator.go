package store

import "sort"

// LeastLoaded picks the staff member with the fewest active tokens from a
// load snapshot keyed by username. Ties break to the lexicographically
// smallest username so the policy is reproducible. The choice is a greedy
// heuristic over a snapshot, not a reservation: concurrent bookings may both
// land on the same staff member and that is accepted.
func LeastLoaded(loads map[string]int) (string, error) {
	if len(loads) == 0 {
		return "", ErrNoStaffAvailable
	}

	usernames := make([]string, 0, len(loads))
	for username := range loads {
		usernames = append(usernames, username)
	}
	sort.Strings(usernames)

	best := usernames[0]
	for _, username := range usernames[1:] {
		if loads[username] < loads[best] {
			best = username
		}
	}
	return best, nil
}
