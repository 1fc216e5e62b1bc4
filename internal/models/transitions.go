package models

// forward holds the monotone transitions. The SKIPPED to PENDING requeue is
// handled separately because it is the only move that goes backwards.
var forward = map[Status][]Status{
	StatusPending: {StatusCalling, StatusSkipped, StatusCancelled},
	StatusCalling: {StatusServed, StatusSkipped, StatusCancelled},
}

// CanAdvance reports whether a token observed in status from may next be
// observed in status to. Repeating a status is allowed and an empty from
// means nothing is known yet. Reachability is checked rather than single
// steps, so PENDING may jump to SERVED when the CALLING update was missed.
func CanAdvance(from, to Status) bool {
	if from == "" || from == to {
		return true
	}
	if from == StatusSkipped && to == StatusPending {
		return true
	}
	seen := map[Status]bool{from: true}
	queue := []Status{from}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range forward[current] {
			if next == to {
				return true
			}
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}
