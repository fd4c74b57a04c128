package incoming

import (
	"errors"
	"testing"
	"time"

	"incoming-inspector/internal/domain/model"
	"incoming-inspector/internal/platform/apperr"
	"incoming-inspector/internal/services/checklist"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	acceptable = checklist.Decision{CanAccept: true}
	blocked    = checklist.Decision{CanAccept: false, CanQuarantine: true}
	inspector  = &model.User{FirstName: "Lucía", LastName: "Gómez "}
)

func TestFlow_OpenRequiresGate(t *testing.T) {
	f := NewFlow(time.Date(2026, 3, 4, 10, 0, 0, 0, time.Local))

	err := f.Open(blocked)
	require.ErrorIs(t, err, ErrAcceptNotAllowed)
	assert.Equal(t, StateIdle, f.State())

	require.NoError(t, f.Open(acceptable))
	assert.Equal(t, StateConfirmOpen, f.State())
	assert.Equal(t, "2026/03/04", f.IncomingDate().Format(model.IncomingDateLayout))

	err = f.Open(acceptable)
	assert.True(t, apperr.IsInvalidState(err), "double open must fail")
}

func TestFlow_BeginBuildsPayload(t *testing.T) {
	f := NewFlow(time.Date(2026, 3, 4, 10, 0, 0, 0, time.Local))
	require.NoError(t, f.Open(acceptable))
	require.NoError(t, f.SetIncomingDate(time.Date(2026, 2, 28, 0, 0, 0, 0, time.Local)))

	p, err := f.Begin(inspector, 42)
	require.NoError(t, err)
	assert.Equal(t, model.IncomingConfirmPayload{ArticleID: 42, Inspector: "Lucía Gómez", IncomingDate: "2026/02/28"}, p)
	assert.True(t, f.Pending())
	assert.Equal(t, StateSubmitting, f.State())

	_, err = f.Begin(inspector, 42)
	assert.True(t, apperr.IsInvalidState(err), "no second submit while pending")
}

func TestFlow_BeginWithoutUserIsNoop(t *testing.T) {
	f := NewFlow(time.Now())
	require.NoError(t, f.Open(acceptable))

	_, err := f.Begin(nil, 1)
	require.ErrorIs(t, err, ErrNoInspector)
	assert.Equal(t, StateConfirmOpen, f.State())
	assert.False(t, f.Pending())

	_, err = f.Begin(&model.User{FirstName: "  "}, 1)
	require.ErrorIs(t, err, ErrEmptyInspector)
	assert.Equal(t, StateConfirmOpen, f.State())
}

func TestFlow_FinishFailureReturnsToConfirmOpen(t *testing.T) {
	f := NewFlow(time.Now())
	require.NoError(t, f.Open(acceptable))
	_, err := f.Begin(inspector, 1)
	require.NoError(t, err)

	f.Finish(errors.New("backend down"))
	assert.Equal(t, StateConfirmOpen, f.State())
	assert.False(t, f.Pending())
	assert.Equal(t, "backend down", f.LastError())

	_, err = f.Begin(inspector, 1)
	require.NoError(t, err, "confirm must be retryable after failure")
	f.Finish(nil)
	assert.Equal(t, StateSuccess, f.State())
}

func TestFlow_CancelKeepsNothingPending(t *testing.T) {
	f := NewFlow(time.Now())
	require.NoError(t, f.Cancel(), "cancel from idle is a no-op")

	require.NoError(t, f.Open(acceptable))
	require.NoError(t, f.Cancel())
	assert.Equal(t, StateIdle, f.State())
	assert.True(t, f.IncomingDate().IsZero())

	err := f.SetIncomingDate(time.Now())
	assert.True(t, apperr.IsInvalidState(err))

	require.NoError(t, f.Open(acceptable))
	_, err = f.Begin(inspector, 1)
	require.NoError(t, err)
	assert.True(t, apperr.IsInvalidState(f.Cancel()), "in-flight confirm cannot be cancelled")
}

func TestRedirect(t *testing.T) {
	assert.Equal(t, "/acme/control_calidad/incoming", Redirect("acme"))
	assert.Equal(t, "/acme/control_calidad/incoming", Redirect("/acme/"))
}

func TestParseIncomingDate(t *testing.T) {
	for _, in := range []string{"2026/01/15", "2026-01-15"} {
		d, err := ParseIncomingDate(in)
		require.NoError(t, err, in)
		assert.Equal(t, "2026/01/15", d.Format(model.IncomingDateLayout))
	}
	_, err := ParseIncomingDate("15/01/2026")
	assert.True(t, apperr.IsValidation(err))
}
