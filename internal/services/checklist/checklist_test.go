package checklist

import (
	"testing"
	"time"

	"incoming-inspector/internal/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// twoGroupCatalog: A 组两项（a1 为必检项），B 组一项。
func twoGroupCatalog() []model.ChecklistGroup {
	return []model.ChecklistGroup{
		{ID: "docs", Title: "Documentation", Items: []model.ChecklistItem{
			{Key: "a1", Label: "Certificate present", RequiredForAccept: true},
			{Key: "a2", Label: "Part number matches"},
		}},
		{ID: "physical", Title: "Physical Condition", Items: []model.ChecklistItem{
			{Key: "b1", Label: "No visible damage"},
		}},
	}
}

func TestComputeProgress_AllPass(t *testing.T) {
	st := NewState()
	for _, k := range []string{"a1", "a2", "b1"} {
		st.Set(k, model.Pass)
	}

	p := ComputeProgress(twoGroupCatalog(), st)
	assert.Equal(t, 3, p.Done)
	assert.Equal(t, 3, p.Total)
	assert.Equal(t, 3, p.OKCount)
	assert.Equal(t, 100, p.Percent)
	assert.True(t, p.AllOK)
	assert.True(t, p.AllDecided)

	d := Evaluate(p, "")
	assert.True(t, d.CanAccept)
	assert.False(t, d.CanQuarantine)
}

func TestComputeProgress_RequiredNA(t *testing.T) {
	st := NewState()
	st.Set("a1", model.NotApplicable)
	st.Set("a2", model.Pass)
	st.Set("b1", model.Pass)

	p := ComputeProgress(twoGroupCatalog(), st)
	assert.False(t, p.AllOK)
	assert.True(t, p.AllDecided)
	assert.True(t, p.RequiredPassed, "N/A satisfies required items")
	assert.Equal(t, 1, p.RequiredTotal)
	assert.Equal(t, 1, p.RequiredDone)

	assert.False(t, Evaluate(p, "").CanAccept)
	assert.False(t, Evaluate(p, "").CanQuarantine)
	assert.True(t, Evaluate(p, "seal broken").CanQuarantine)
}

func TestComputeProgress_EmptyCatalog(t *testing.T) {
	p := ComputeProgress(nil, NewState())
	assert.Equal(t, 0, p.Percent)
	assert.True(t, p.AllDecided)
	assert.True(t, p.AllOK)

	d := Evaluate(p, "long enough notes")
	assert.False(t, d.CanAccept, "an empty catalog must not allow acceptance")
	assert.False(t, d.CanQuarantine)
	assert.True(t, d.EmptyCatalog)
}

func TestComputeProgress_AllOKImpliesAllDecided(t *testing.T) {
	groups := twoGroupCatalog()
	keys := []string{"a1", "a2", "b1"}
	values := []model.ChecklistValue{model.Undecided, model.Pass, model.NotApplicable}

	// 穷举 3^3 种状态。
	for i := 0; i < 27; i++ {
		st := NewState()
		n := i
		for _, k := range keys {
			st.Set(k, values[n%3])
			n /= 3
		}
		p := ComputeProgress(groups, st)
		if p.AllOK {
			require.True(t, p.AllDecided, "state %d", i)
		}
		assert.LessOrEqual(t, p.OKCount, p.Done)
	}
}

func TestComputeProgress_SingleNAFlipsAllOK(t *testing.T) {
	groups := twoGroupCatalog()
	for _, naKey := range []string{"a1", "a2", "b1"} {
		st := NewState()
		for _, k := range []string{"a1", "a2", "b1"} {
			st.Set(k, model.Pass)
		}
		st.Set(naKey, model.NotApplicable)

		p := ComputeProgress(groups, st)
		assert.False(t, p.AllOK, naKey)
		assert.True(t, p.AllDecided, naKey)

		d := Evaluate(p, "12345")
		assert.False(t, d.CanAccept, naKey)
		assert.True(t, d.CanQuarantine, naKey)
	}
}

func TestComputeProgress_PercentRounds(t *testing.T) {
	st := NewState()
	st.Set("a1", model.Pass)
	p := ComputeProgress(twoGroupCatalog(), st)
	assert.Equal(t, 33, p.Percent)

	st.Set("a2", model.NotApplicable)
	p = ComputeProgress(twoGroupCatalog(), st)
	assert.Equal(t, 67, p.Percent)
	assert.False(t, p.AllDecided)
}

func TestState_UnknownKeyStoredButNotCounted(t *testing.T) {
	st := NewState()
	st.Set("ghost", model.Pass)
	assert.Equal(t, model.Pass, st.Get("ghost"))
	assert.Equal(t, 1, st.Len())

	p := ComputeProgress(twoGroupCatalog(), st)
	assert.Equal(t, 0, p.Done)
	assert.Equal(t, 0, p.OKCount)
}

func TestState_SetOverwritesAndUndecidedClears(t *testing.T) {
	st := NewState()
	st.Set("a1", model.Pass)
	st.Set("a1", model.NotApplicable)
	assert.Equal(t, model.NotApplicable, st.Get("a1"))

	snap := st.Snapshot()
	snap["a1"] = model.Pass
	assert.Equal(t, model.NotApplicable, st.Get("a1"), "snapshot must be a copy")

	st.Set("a1", model.Undecided)
	assert.Equal(t, model.Undecided, st.Get("a1"))
	assert.Zero(t, st.Len())
}

func TestEvaluate_NotesBoundary(t *testing.T) {
	p := Progress{Total: 3, Done: 3, OKCount: 2, AllDecided: true}

	tests := []struct {
		notes string
		want  bool
	}{
		{"", false},
		{"abcd", false},
		{"abcde", true},
		{"   abcd   ", false},
		{"  abcde ", true},
		{"ñandú", true},
	}
	for _, tt := range tests {
		t.Run(tt.notes, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(p, tt.notes).CanQuarantine)
		})
	}
}

func TestEvaluate_QuarantineNeedsAllDecided(t *testing.T) {
	p := Progress{Total: 3, Done: 2, OKCount: 1}
	assert.False(t, Evaluate(p, "plenty of notes").CanQuarantine)
}

func TestSession_ApplyCatalogResetsOnIdentityChange(t *testing.T) {
	s := NewSession("ses_1", "acme", model.Article{ID: 1, PartNumber: "PN"}, twoGroupCatalog(), "sum:doc", time.Unix(1700000000, 0))
	s.SetValue("a1", model.Pass)
	s.SetNotes("keep me")

	assert.False(t, s.ApplyCatalog(twoGroupCatalog(), "sum:doc"))
	assert.Equal(t, model.Pass, s.Value("a1"))

	other := []model.ChecklistGroup{{ID: "physical", Items: []model.ChecklistItem{{Key: "b1", Label: "x"}}}}
	assert.True(t, s.ApplyCatalog(other, "sum:nodoc"))
	assert.Equal(t, model.Undecided, s.Value("a1"))
	assert.Equal(t, "sum:nodoc", s.Identity())
	assert.Equal(t, 1, s.Evaluate().Progress.Total)
	assert.Equal(t, "keep me", s.Notes())
}

func TestSession_ItemsFollowCatalogOrder(t *testing.T) {
	s := NewSession("ses_1", "acme", model.Article{ID: 1, PartNumber: "PN"}, twoGroupCatalog(), "id", time.Now())
	s.SetValue("b1", model.NotApplicable)
	s.SetValue("a1", model.Pass)

	items := s.Items()
	require.Len(t, items, 3)
	assert.Equal(t, []string{"a1", "a2", "b1"}, []string{items[0].Key, items[1].Key, items[2].Key})
	assert.Equal(t, model.Pass, items[0].Value)
	assert.Equal(t, model.Undecided, items[1].Value)
	assert.Equal(t, model.NotApplicable, items[2].Value)
	assert.Equal(t, "physical", items[2].GroupID)
	assert.Equal(t, 2, items[2].Position)
}
