package retrieval

// Intersect2 keeps the ids present in both id-sorted inputs, summing
// counts.
func Intersect2(a, b []Candidate) []Candidate {
	out := make([]Candidate, 0, min(len(a), len(b)))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i].ID < b[j].ID:
			i++
		case a[i].ID > b[j].ID:
			j++
		default:
			out = append(out, Candidate{ID: a[i].ID, Count: a[i].Count + b[j].Count})
			i++
			j++
		}
	}
	return out
}

// Intersect3 keeps the ids present in all three id-sorted inputs, summing
// counts. Each cursor skips past ids below the current maximum.
func Intersect3(a, b, c []Candidate) []Candidate {
	out := make([]Candidate, 0, min(len(a), len(b), len(c)))
	i, j, k := 0, 0, 0
	for i < len(a) && j < len(b) && k < len(c) {
		target := max(a[i].ID, b[j].ID, c[k].ID)
		for i < len(a) && a[i].ID < target {
			i++
		}
		for j < len(b) && b[j].ID < target {
			j++
		}
		for k < len(c) && c[k].ID < target {
			k++
		}
		if i == len(a) || j == len(b) || k == len(c) {
			break
		}
		if a[i].ID == target && b[j].ID == target && c[k].ID == target {
			out = append(out, Candidate{ID: target, Count: a[i].Count + b[j].Count + c[k].Count})
			i++
			j++
			k++
		}
	}
	return out
}
