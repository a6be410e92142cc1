package routing

import (
	"math"
	"sort"
	"time"

	"dispatch/internal/domain"
)

const (
	// latenessPenaltyKm makes one minute past a window cost more than any
	// realistic detour.
	latenessPenaltyKm = 1000.0
	maxPasses         = 50
	epsilon           = 1e-9
)

type job struct {
	req      domain.DeliveryRequest
	pickedUp bool
}

type stop struct {
	job    int
	pickup bool
	loc    domain.Location
}

// legFunc returns the distance and travel minutes between two points.
type legFunc func(a, b domain.Location) (km, minutes float64)

type evaluation struct {
	distanceKm  float64
	minutes     float64
	lateMinutes float64
	lateJob     string
	etas        []time.Time
}

func (e evaluation) cost() float64 {
	return e.distanceKm + latenessPenaltyKm*e.lateMinutes
}

func buildStops(jobs []job) []stop {
	var stops []stop
	for i, j := range jobs {
		if !j.pickedUp {
			stops = append(stops, stop{job: i, pickup: true, loc: j.req.Pickup.Location})
		}
		stops = append(stops, stop{job: i, loc: j.req.Dropoff.Location})
	}
	return stops
}

// valid reports whether every delivery follows its pickup.
func valid(route []stop, jobs []job) bool {
	picked := make([]bool, len(jobs))
	for i, j := range jobs {
		picked[i] = j.pickedUp
	}
	for _, s := range route {
		if s.pickup {
			picked[s.job] = true
			continue
		}
		if !picked[s.job] {
			return false
		}
	}
	return true
}

// evaluate walks the route from start. A courier arriving before a
// delivery window opens waits for it.
func evaluate(start domain.Location, route []stop, jobs []job, leg legFunc, now time.Time) evaluation {
	var ev evaluation
	ev.etas = make([]time.Time, len(route))
	cur := start
	for i, s := range route {
		km, mins := leg(cur, s.loc)
		ev.distanceKm += km
		ev.minutes += mins
		cur = s.loc

		at := now.Add(time.Duration(ev.minutes * float64(time.Minute)))
		if w := jobs[s.job].req.Window; !s.pickup && w != nil {
			if at.Before(w.Start) {
				ev.minutes += w.Start.Sub(at).Minutes()
				at = w.Start
			}
			if !w.End.IsZero() && at.After(w.End) {
				late := at.Sub(w.End).Minutes()
				ev.lateMinutes += late
				if ev.lateJob == "" {
					ev.lateJob = jobs[s.job].req.ID
				}
			}
		}
		ev.etas[i] = at
	}
	return ev
}

// nearestNeighbor builds a route by always driving to the closest stop
// whose pickup has already been made.
func nearestNeighbor(start domain.Location, stops []stop, jobs []job, leg legFunc) []stop {
	remaining := append([]stop(nil), stops...)
	picked := make([]bool, len(jobs))
	for i, j := range jobs {
		picked[i] = j.pickedUp
	}

	route := make([]stop, 0, len(stops))
	cur := start
	for len(remaining) > 0 {
		best, bestKm := -1, math.Inf(1)
		for i, s := range remaining {
			if !s.pickup && !picked[s.job] {
				continue
			}
			if km, _ := leg(cur, s.loc); km < bestKm {
				best, bestKm = i, km
			}
		}
		s := remaining[best]
		if s.pickup {
			picked[s.job] = true
		}
		route = append(route, s)
		cur = s.loc
		remaining = append(remaining[:best], remaining[best+1:]...)
	}
	return route
}

// twoOpt reverses segments while that lowers the cost and keeps every
// delivery after its pickup.
func twoOpt(start domain.Location, route []stop, jobs []job, leg legFunc, now time.Time) []stop {
	best := append([]stop(nil), route...)
	bestCost := evaluate(start, best, jobs, leg, now).cost()

	for pass := 0; pass < maxPasses; pass++ {
		improved := false
		for i := 0; i < len(best)-1; i++ {
			for k := i + 1; k < len(best); k++ {
				cand := reverse(best, i, k)
				if !valid(cand, jobs) {
					continue
				}
				if c := evaluate(start, cand, jobs, leg, now).cost(); c < bestCost-epsilon {
					best, bestCost = cand, c
					improved = true
				}
			}
		}
		if !improved {
			break
		}
	}
	return best
}

func reverse(route []stop, i, k int) []stop {
	out := append([]stop(nil), route...)
	for l, r := i, k; l < r; l, r = l+1, r-1 {
		out[l], out[r] = out[r], out[l]
	}
	return out
}

// soloOrder serves one job at a time: jobs already on board first, then
// by delivery deadline.
func soloOrder(jobs []job) []stop {
	order := make([]int, len(jobs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ja, jb := jobs[order[a]], jobs[order[b]]
		if ja.pickedUp != jb.pickedUp {
			return ja.pickedUp
		}
		da, db := deadline(ja.req), deadline(jb.req)
		if !da.Equal(db) {
			return da.Before(db)
		}
		return ja.req.ID < jb.req.ID
	})

	var stops []stop
	for _, i := range order {
		j := jobs[i]
		if !j.pickedUp {
			stops = append(stops, stop{job: i, pickup: true, loc: j.req.Pickup.Location})
		}
		stops = append(stops, stop{job: i, loc: j.req.Dropoff.Location})
	}
	return stops
}

var noDeadline = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

func deadline(r domain.DeliveryRequest) time.Time {
	if r.Window == nil || r.Window.End.IsZero() {
		return noDeadline
	}
	return r.Window.End
}
