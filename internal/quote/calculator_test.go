package quote

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestRecompute_Example(t *testing.T) {
	q := Quote{Services: []LineItem{
		{ID: 1, Quantity: 2, Price: 50, TVARate: 20},
		{ID: 2, Quantity: 1, Price: 10, TVARate: 0},
	}}
	totals := Recompute(&q)

	assert.InDelta(t, 100, q.Services[0].HT, 1e-9)
	assert.InDelta(t, 20, q.Services[0].Tax(), 1e-9)
	assert.InDelta(t, 120, q.Services[0].Total, 1e-9)
	assert.InDelta(t, 10, q.Services[1].HT, 1e-9)
	assert.InDelta(t, 10, q.Services[1].Total, 1e-9)
	assert.InDelta(t, 110, totals.HT, 1e-9)
	assert.InDelta(t, 20, totals.TVA, 1e-9)
	assert.InDelta(t, 130, totals.TTC, 1e-9)
	assert.Equal(t, totals, q.Totals)
}

func TestRecompute_Empty(t *testing.T) {
	q := Quote{}
	assert.Equal(t, Totals{}, Recompute(&q))
}

func TestRecompute_Idempotent(t *testing.T) {
	q := Quote{Services: []LineItem{{ID: 1, Quantity: 3, Price: 19.99, TVARate: 5.5}}}
	first := Recompute(&q)
	second := Recompute(&q)
	assert.Equal(t, first, second)
}

func TestRecompute_NonNumericIsZero(t *testing.T) {
	q := Quote{Services: []LineItem{{ID: 1, Quantity: math.NaN(), Price: 10, TVARate: 20}}}
	totals := Recompute(&q)
	assert.Equal(t, Totals{}, totals)
	assert.Equal(t, 0.0, q.Services[0].Quantity)
}

func TestMutations_KeepInvariants(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	q := New(now)

	a := AddLineItem(&q, now)
	b := AddLineItem(&q, now)
	require.NotEqual(t, a.ID, b.ID, "ids must be unique within a quote")

	require.True(t, UpdateLineItem(&q, a.ID, Patch{Quantity: ptr(2.0), Price: ptr(50.0), TVARate: ptr(20.0)}))
	require.True(t, UpdateLineItem(&q, b.ID, Patch{Description: ptr("Déplacement"), Price: ptr(10.0), TVARate: ptr(0.0)}))
	assert.False(t, UpdateLineItem(&q, 42, Patch{Price: ptr(1.0)}))

	assertConsistent(t, q)
	assert.InDelta(t, 130, q.Totals.TTC, 1e-9)

	RemoveLineItem(&q, 42) // unknown id: no-op
	assert.Len(t, q.Services, 2)

	RemoveLineItem(&q, a.ID)
	assertConsistent(t, q)
	assert.InDelta(t, 10, q.Totals.TTC, 1e-9)

	RemoveLineItem(&q, b.ID)
	assert.Equal(t, Totals{}, q.Totals)
}

func assertConsistent(t *testing.T, q Quote) {
	t.Helper()
	var ht, tva float64
	for _, li := range q.Services {
		assert.InDelta(t, li.HT+li.HT*(li.TVARate/100), li.Total, 1e-9)
		ht += li.HT
		tva += li.Tax()
	}
	assert.InDelta(t, ht, q.Totals.HT, 1e-9)
	assert.InDelta(t, tva, q.Totals.TVA, 1e-9)
	assert.InDelta(t, ht+tva, q.Totals.TTC, 1e-9)
}

func TestLineItem_UnmarshalLenient(t *testing.T) {
	var items []LineItem
	body := `[{"id":1,"description":"a","quantity":"2","price":"12,5","tva":"20"},
	          {"id":2,"description":"b","quantity":"abc","price":3,"tvaRate":5.5}]`
	require.NoError(t, json.Unmarshal([]byte(body), &items))
	require.Len(t, items, 2)
	assert.Equal(t, 2.0, items[0].Quantity)
	assert.Equal(t, 12.5, items[0].Price)
	assert.Equal(t, 20.0, items[0].TVARate)
	assert.Equal(t, 0.0, items[1].Quantity)
	assert.Equal(t, 5.5, items[1].TVARate)
}

func TestNew(t *testing.T) {
	now := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	q := New(now)
	assert.Regexp(t, `^DEV-2025-\d{3}$`, q.Details.Number)
	assert.Equal(t, "2025-06-10", q.Details.Date)
	assert.Equal(t, "2025-06-17", q.Details.Validity)
	assert.Equal(t, "devis-"+q.Details.Number+".pdf", q.Filename())
}

func TestGenerateNumber(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	a, b := GenerateNumber(now), GenerateNumber(now)
	assert.Regexp(t, `^DEV-2025-[0-9A-F]{8}$`, a)
	assert.NotEqual(t, a, b)
}

func TestValidTVARate(t *testing.T) {
	for _, r := range []float64{0, 5.5, 10, 20} {
		assert.True(t, ValidTVARate(r), "rate %v", r)
	}
	assert.False(t, ValidTVARate(7))
}

func TestNumberAndFilenameOnValues(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.Regexp(t, `^devis-DEV-2025-\d{3}\.pdf$`, New(now).Filename())

	q := Quote{ID: "q1"}
	assert.Equal(t, "q1", q.Number())
	q.Details.Number = "DEV-2025-007"
	assert.Equal(t, "devis-DEV-2025-007.pdf", q.Filename())
	assert.Equal(t, "DEV-2025-007", func() Quote { return q }().Number())
}
