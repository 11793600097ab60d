package quote

import "time"

// Patch holds the fields UpdateLineItem may change. Nil fields are left untouched.
type Patch struct {
	Description *string
	Quantity    *float64
	Price       *float64
	TVARate     *float64
}

// Recompute derives every line HT/total and the aggregate totals from the
// services, stores them on q and returns the totals. Calling it twice without
// a mutation in between yields identical values.
func Recompute(q *Quote) Totals {
	var t Totals
	for i := range q.Services {
		li := &q.Services[i]
		li.Quantity = sanitize(li.Quantity)
		li.Price = sanitize(li.Price)
		li.TVARate = sanitize(li.TVARate)
		li.HT = li.Quantity * li.Price
		tax := li.Tax()
		li.Total = li.HT + tax
		t.HT += li.HT
		t.TVA += tax
	}
	t.TTC = t.HT + t.TVA
	q.Totals = t
	return t
}

// AddLineItem appends a line with quantity 1, price 0 and the standard 20% rate.
// Its id is the creation timestamp in milliseconds, bumped until unique in q.
func AddLineItem(q *Quote, now time.Time) LineItem {
	id := now.UnixMilli()
	for q.index(id) >= 0 {
		id++
	}
	q.Services = append(q.Services, LineItem{ID: id, Quantity: 1, TVARate: 20})
	Recompute(q)
	return q.Services[len(q.Services)-1]
}

// UpdateLineItem applies p to the line with the given id. It reports false
// when no line has that id.
func UpdateLineItem(q *Quote, id int64, p Patch) bool {
	i := q.index(id)
	if i < 0 {
		return false
	}
	li := &q.Services[i]
	if p.Description != nil {
		li.Description = *p.Description
	}
	if p.Quantity != nil {
		li.Quantity = *p.Quantity
	}
	if p.Price != nil {
		li.Price = *p.Price
	}
	if p.TVARate != nil {
		li.TVARate = *p.TVARate
	}
	Recompute(q)
	return true
}

// RemoveLineItem deletes the line with the given id. Unknown ids are a no-op.
func RemoveLineItem(q *Quote, id int64) {
	if i := q.index(id); i >= 0 {
		q.Services = append(q.Services[:i], q.Services[i+1:]...)
	}
	Recompute(q)
}

func (q *Quote) index(id int64) int {
	for i := range q.Services {
		if q.Services[i].ID == id {
			return i
		}
	}
	return -1
}
