package cart

// mergeLogin folds the anonymous cart into the user's stored cart. Entries
// keep the position of their first insertion; on a shared key the user's
// line is kept and only the quantity accumulates.
func mergeLogin(user, anon []Line) []Line {
	merged := make([]Line, 0, len(user)+len(anon))
	index := make(map[LineKey]int, len(user)+len(anon))

	add := func(l Line, accumulate bool) {
		if i, ok := index[l.Key()]; ok {
			if accumulate {
				merged[i].Quantity += l.Quantity
			} else {
				merged[i] = l
			}
			return
		}
		index[l.Key()] = len(merged)
		merged = append(merged, l)
	}

	for _, l := range user {
		add(l, false)
	}
	for _, l := range anon {
		add(l, true)
	}
	return merged
}
