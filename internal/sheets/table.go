package sheets

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// Fixed column headers of a mirror table.
const (
	ColRollNo  = "Roll No"
	ColName    = "Name"
	ColPresent = "Present"
	ColTotal   = "Total"
	ColPercent = "Attendance %"
)

// Indicator cell values.
const (
	MarkPresent = "✅"
	MarkAbsent  = "❌"
)

// Row is one student in a mirror table. Marks maps a date column to its
// indicator; missing or blank entries mean "no session recorded".
type Row struct {
	RollNo     string
	Name       string
	Marks      map[string]string
	Present    int
	Total      int
	Percentage float64
}

// Key is the identity a row is joined on.
func (r Row) Key() [2]string { return [2]string{r.RollNo, r.Name} }

// Recompute derives Present, Total and Percentage from the indicator cells.
func (r *Row) Recompute() {
	r.Present, r.Total = 0, 0
	for _, v := range r.Marks {
		switch strings.TrimSpace(v) {
		case MarkPresent:
			r.Present++
			r.Total++
		case MarkAbsent:
			r.Total++
		}
	}
	r.Percentage = Percent(r.Present, r.Total)
}

// Table is a subject's attendance grid: one date column per observed session day.
type Table struct {
	Dates []string
	Rows  []Row
}

// Percent returns part/whole*100 rounded half-to-even to one decimal, 0 when
// whole is 0.
func Percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	v := float64(part) / float64(whole) * 100
	return math.RoundToEven(v*10) / 10
}

func isFixed(col string) bool {
	switch col {
	case ColRollNo, ColName, ColPresent, ColTotal, ColPercent:
		return true
	}
	return false
}

// Parse reads a table from a header row followed by data rows. Columns other
// than the fixed ones are treated as date columns. Aggregates are recomputed.
func Parse(values [][]string) Table {
	if len(values) == 0 {
		return Table{}
	}
	header := values[0]
	rollIdx, nameIdx := -1, -1
	var dateCols []int
	var t Table
	for i, col := range header {
		col = strings.TrimSpace(col)
		switch {
		case col == ColRollNo:
			rollIdx = i
		case col == ColName:
			nameIdx = i
		case col == "" || isFixed(col):
		default:
			dateCols = append(dateCols, i)
			t.Dates = append(t.Dates, col)
		}
	}
	cell := func(row []string, i int) string {
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	for _, raw := range values[1:] {
		r := Row{RollNo: cell(raw, rollIdx), Name: cell(raw, nameIdx), Marks: map[string]string{}}
		if r.RollNo == "" && r.Name == "" {
			continue
		}
		for _, i := range dateCols {
			if v := cell(raw, i); v != "" {
				r.Marks[strings.TrimSpace(header[i])] = v
			}
		}
		r.Recompute()
		t.Rows = append(t.Rows, r)
	}
	sort.Strings(t.Dates)
	return t
}

// Encode renders the table as a header row plus one row per student.
func (t Table) Encode() [][]string {
	header := append([]string{ColRollNo, ColName}, t.Dates...)
	header = append(header, ColPresent, ColTotal, ColPercent)
	out := make([][]string, 0, len(t.Rows)+1)
	out = append(out, header)
	for _, r := range t.Rows {
		line := make([]string, 0, len(header))
		line = append(line, r.RollNo, r.Name)
		for _, d := range t.Dates {
			line = append(line, r.Marks[d])
		}
		line = append(line,
			strconv.Itoa(r.Present),
			strconv.Itoa(r.Total),
			strconv.FormatFloat(r.Percentage, 'f', 1, 64),
		)
		out = append(out, line)
	}
	return out
}

// Row returns the row for a roll number and name, if present.
func (t Table) Row(rollNo, name string) (Row, bool) {
	for _, r := range t.Rows {
		if r.RollNo == rollNo && r.Name == name {
			return r, true
		}
	}
	return Row{}, false
}

// Mark converts a stored status into its indicator.
func Mark(present bool) string {
	if present {
		return MarkPresent
	}
	return MarkAbsent
}
