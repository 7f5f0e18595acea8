package sheets

import "sort"

// Merge outer-joins fresh into existing on (roll number, name). A non-blank
// fresh indicator wins over the existing one; date columns are the union of
// both tables and aggregates are recomputed from indicators only.
func Merge(existing, fresh Table) Table {
	rows := map[[2]string]*Row{}
	var order [][2]string
	dates := map[string]bool{}

	add := func(r Row, overwrite bool) {
		k := r.Key()
		cur, ok := rows[k]
		if !ok {
			cur = &Row{RollNo: r.RollNo, Name: r.Name, Marks: map[string]string{}}
			rows[k] = cur
			order = append(order, k)
		}
		for d, v := range r.Marks {
			if v == "" {
				continue
			}
			dates[d] = true
			if _, has := cur.Marks[d]; !has || overwrite {
				cur.Marks[d] = v
			}
		}
	}

	for _, d := range existing.Dates {
		dates[d] = true
	}
	for _, d := range fresh.Dates {
		dates[d] = true
	}
	for _, r := range existing.Rows {
		add(r, false)
	}
	for _, r := range fresh.Rows {
		add(r, true)
	}

	out := Table{}
	for d := range dates {
		out.Dates = append(out.Dates, d)
	}
	sort.Strings(out.Dates)

	sort.SliceStable(order, func(i, j int) bool {
		if order[i][0] != order[j][0] {
			return order[i][0] < order[j][0]
		}
		return order[i][1] < order[j][1]
	})
	for _, k := range order {
		r := rows[k]
		r.Recompute()
		out.Rows = append(out.Rows, *r)
	}
	return out
}
