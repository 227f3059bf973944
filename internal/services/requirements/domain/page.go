package domain

// Reducer-style transitions over PageResult. Each returns a new value and
// leaves the receiver's backing slice untouched, so a result held by a cache
// entry is never mutated through an alias.

// WithRows returns a copy of p with rows replaced
func (p PageResult) WithRows(rows []Requirement) PageResult {
	out := p
	out.Rows = rows
	return out
}

// ApplyUpdate returns a copy of p with the matching row replaced by rec.
// When no row matches, p is returned unchanged (same backing array).
func (p PageResult) ApplyUpdate(rec Requirement) PageResult {
	idx := -1
	for i := range p.Rows {
		if p.Rows[i].ID == rec.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return p
	}
	rows := make([]Requirement, len(p.Rows))
	copy(rows, p.Rows)
	rows[idx] = rec
	return p.WithRows(rows)
}

// ApplyInsert returns a copy of p with rec prepended. The page keeps its
// length so offsets stay valid: when the page was full the trailing row is
// dropped and HasMore is set.
func (p PageResult) ApplyInsert(rec Requirement, pageSize int) PageResult {
	for i := range p.Rows {
		if p.Rows[i].ID == rec.ID {
			return p.ApplyUpdate(rec)
		}
	}
	rows := make([]Requirement, 0, len(p.Rows)+1)
	rows = append(rows, rec)
	rows = append(rows, p.Rows...)
	out := p
	if pageSize > 0 && len(rows) > pageSize {
		rows = rows[:pageSize]
		out.HasMore = true
	}
	if out.Total != nil {
		t := *out.Total + 1
		out.Total = &t
	}
	return out.WithRows(rows)
}

// ApplyDelete returns a copy of p without the matching row.
// When no row matches, p is returned unchanged.
func (p PageResult) ApplyDelete(id string) PageResult {
	idx := -1
	for i := range p.Rows {
		if p.Rows[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return p
	}
	rows := make([]Requirement, 0, len(p.Rows)-1)
	rows = append(rows, p.Rows[:idx]...)
	rows = append(rows, p.Rows[idx+1:]...)
	out := p
	if out.Total != nil {
		t := *out.Total - 1
		out.Total = &t
	}
	return out.WithRows(rows)
}
