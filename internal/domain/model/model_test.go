package model

import (
	"encoding/json"
	"testing"

	"incoming-inspector/internal/platform/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChecklistValue(t *testing.T) {
	tests := []struct {
		in      string
		want    ChecklistValue
		wantErr bool
	}{
		{"pass", Pass, false},
		{"TRUE", Pass, false},
		{"NA", NotApplicable, false},
		{"n/a", NotApplicable, false},
		{"", Undecided, false},
		{"undecided", Undecided, false},
		{"fail", Undecided, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseChecklistValue(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChecklistValue_JSONAcceptsLegacyUnion(t *testing.T) {
	var state map[string]ChecklistValue
	require.NoError(t, json.Unmarshal([]byte(`{"a":true,"b":"NA","c":null,"d":"pass","e":false}`), &state))

	assert.Equal(t, Pass, state["a"])
	assert.Equal(t, NotApplicable, state["b"])
	assert.Equal(t, Undecided, state["c"])
	assert.Equal(t, Pass, state["d"])
	assert.Equal(t, Undecided, state["e"])

	raw, err := json.Marshal(map[string]ChecklistValue{"a": Pass, "b": NotApplicable, "c": Undecided})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"pass","b":"na","c":null}`, string(raw))

	var bad ChecklistValue
	assert.Error(t, json.Unmarshal([]byte(`"broken"`), &bad))
}

func TestArticleValidate(t *testing.T) {
	ok := &Article{ID: 12, PartNumber: "PN-100", Quantity: 2}
	assert.NoError(t, ok.Validate())

	cases := map[string]*Article{
		"nil":          nil,
		"zero id":      {PartNumber: "PN"},
		"missing pn":   {ID: 1, PartNumber: "  "},
		"negative qty": {ID: 1, PartNumber: "PN", Quantity: -1},
	}
	for name, a := range cases {
		t.Run(name, func(t *testing.T) {
			err := a.Validate()
			require.Error(t, err)
			assert.True(t, apperr.IsValidation(err))
		})
	}
}

func TestUserDisplayName(t *testing.T) {
	assert.Equal(t, "Ana Pérez", (&User{FirstName: "Ana", LastName: "Pérez"}).DisplayName())
	assert.Equal(t, "Ana", (&User{FirstName: "Ana"}).DisplayName())
	assert.Equal(t, "Pérez", (&User{LastName: "Pérez"}).DisplayName())
	var nilUser *User
	assert.Equal(t, "", nilUser.DisplayName())
}
