package domain

import "sort"

// LeaderboardEntry totals the completed sessions of one analyst.
type LeaderboardEntry struct {
	UserID  string  `json:"user_id"`
	Devices int     `json:"devices"`
	Minutes float64 `json:"minutes"`
	Locates int     `json:"locates"`
}

// Leaderboard aggregates completed sessions per user and ranks users by
// locates annotated, descending. Ties are ordered by user id.
func Leaderboard(records []SessionRecord) []LeaderboardEntry {
	byUser := make(map[string]*LeaderboardEntry)
	devices := make(map[string]map[string]struct{})

	for _, r := range records {
		e, ok := byUser[r.UserID]
		if !ok {
			e = &LeaderboardEntry{UserID: r.UserID}
			byUser[r.UserID] = e
			devices[r.UserID] = make(map[string]struct{})
		}
		devices[r.UserID][r.DeviceID] = struct{}{}
		e.Minutes += r.ElapsedSeconds / 60
		e.Locates += r.LocateCount
	}

	out := make([]LeaderboardEntry, 0, len(byUser))
	for user, e := range byUser {
		e.Devices = len(devices[user])
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Locates != out[j].Locates {
			return out[i].Locates > out[j].Locates
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}
