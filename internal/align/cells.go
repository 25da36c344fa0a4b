package align

import "sort"

// Cell is one row's contribution to an alignment column.
type Cell struct {
	Row   int
	Width int
}

// Run is a maximal sequence of consecutive rows sharing an alignment column.
type Run struct {
	Col    int
	Text   string
	Layout string
	Cells  []Cell
}

// FirstRow is the index of the first member row.
func (r Run) FirstRow() int { return r.Cells[0].Row }

// LastRow is the index of the last member row.
func (r Run) LastRow() int { return r.Cells[len(r.Cells)-1].Row }

type cellKey struct {
	col    int
	text   string
	layout string
}

// aggregator chains context entries of consecutive rows. A run stays open
// only while every following row extends it.
type aggregator struct {
	open     map[cellKey]*Run
	finished []Run
}

func newAggregator() *aggregator {
	return &aggregator{open: make(map[cellKey]*Run)}
}

func (a *aggregator) add(row int, entry ContextEntry) {
	key := cellKey{col: entry.Col, text: entry.Text, layout: entry.Layout}
	cell := Cell{Row: row, Width: entry.Width}
	if run, ok := a.open[key]; ok {
		if run.LastRow() == row-1 {
			run.Cells = append(run.Cells, cell)
			return
		}
		a.flush(key)
	}
	a.open[key] = &Run{Col: entry.Col, Text: entry.Text, Layout: entry.Layout, Cells: []Cell{cell}}
}

// endRow flushes every run the row did not extend.
func (a *aggregator) endRow(row int) {
	for key, run := range a.open {
		if run.LastRow() != row {
			a.flush(key)
		}
	}
}

func (a *aggregator) flush(key cellKey) {
	a.finished = append(a.finished, *a.open[key])
	delete(a.open, key)
}

func (a *aggregator) runs() []Run {
	for key := range a.open {
		a.flush(key)
	}
	sort.Slice(a.finished, func(i, j int) bool {
		ri, rj := a.finished[i], a.finished[j]
		if ri.Col != rj.Col {
			return ri.Col < rj.Col
		}
		if ri.FirstRow() != rj.FirstRow() {
			return ri.FirstRow() < rj.FirstRow()
		}
		if ri.Text != rj.Text {
			return ri.Text < rj.Text
		}
		return ri.Layout < rj.Layout
	})
	return a.finished
}

// GroupCells turns per-row contexts into runs, ordered left to right and then
// top to bottom.
func GroupCells(contexts [][]ContextEntry) []Run {
	agg := newAggregator()
	for row, entries := range contexts {
		for _, entry := range entries {
			agg.add(row, entry)
		}
		agg.endRow(row)
	}
	return agg.runs()
}
