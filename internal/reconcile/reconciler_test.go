package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"character-card-wizard/internal/models"
)

func task(id string, status models.TaskStatus, summary string) models.SubTask {
	return models.SubTask{StepID: id, Title: "task " + id, Type: models.TaskTypeLinkCrawl, Status: status, ResultSummary: summary}
}

func TestApplyIsIdempotent(t *testing.T) {
	snap := []models.SubTask{
		task("step_ref_0", models.StatusSuccess, "silver hair"),
		task("step_ref_1", models.StatusProcessing, ""),
	}

	once := New(nil)
	once.Apply(snap)

	twice := New(nil)
	first := twice.Apply(snap)
	second := twice.Apply(snap)

	assert.Equal(t, []string{"step_ref_0", "step_ref_1"}, first.Created)
	assert.False(t, second.Changed())
	assert.Equal(t, once.Entries(), twice.Entries())
	assert.Equal(t, 2, twice.Len())
}

func TestApplyKeepsFirstAppearanceOrder(t *testing.T) {
	r := New(nil)
	r.Apply([]models.SubTask{task("b", models.StatusProcessing, "")})
	r.Apply([]models.SubTask{task("a", models.StatusPending, ""), task("b", models.StatusSuccess, "x")})
	r.Apply([]models.SubTask{task("c", models.StatusPending, "")})
	r.Apply([]models.SubTask{task("a", models.StatusSuccess, "y"), task("c", models.StatusFailed, "boom")})

	var ids []string
	for _, e := range r.Entries() {
		ids = append(ids, e.StepID)
	}
	assert.Equal(t, []string{"b", "a", "c"}, ids)

	// b vanished from the last two snapshots but stays visible.
	e, ok := r.Entry("b")
	require.True(t, ok)
	assert.Equal(t, models.StatusSuccess, e.Status)
}

func TestSuccessInjectsReviewOnce(t *testing.T) {
	r := New(nil)
	r.Apply([]models.SubTask{task("s", models.StatusProcessing, "")})
	e, _ := r.Entry("s")
	assert.False(t, e.Editable)

	res := r.Apply([]models.SubTask{task("s", models.StatusSuccess, "first")})
	assert.Equal(t, []string{"s"}, res.Updated)
	e, _ = r.Entry("s")
	assert.True(t, e.Editable)
	assert.Equal(t, "first", e.EditText)

	res = r.Apply([]models.SubTask{task("s", models.StatusSuccess, "second")})
	assert.Empty(t, res.Updated)
	e, _ = r.Entry("s")
	assert.Equal(t, "first", e.EditText)
	assert.Equal(t, "second", e.Summary)
}

func TestCreatedAsSuccessIsEditable(t *testing.T) {
	r := New(nil)
	r.Apply([]models.SubTask{task("s", models.StatusSuccess, "done")})
	e, ok := r.Entry("s")
	require.True(t, ok)
	assert.True(t, e.Editable)
	assert.Equal(t, "done", e.EditText)
}

func TestUserEditsAreNotClobbered(t *testing.T) {
	r := New(nil)
	r.Apply([]models.SubTask{task("s", models.StatusSuccess, "remote text")})
	require.NoError(t, r.SetEditText("s", "my fix"))

	r.Apply([]models.SubTask{task("s", models.StatusProcessing, "")})
	r.Apply([]models.SubTask{task("s", models.StatusSuccess, "newer remote text")})

	e, _ := r.Entry("s")
	assert.Equal(t, "my fix", e.EditText)
}

func TestCreatedSuccessWithoutSummaryHasNoAffordance(t *testing.T) {
	r := New(nil)
	r.Apply([]models.SubTask{task("s", models.StatusSuccess, "")})
	e, _ := r.Entry("s")
	assert.False(t, e.Editable)

	r.Apply([]models.SubTask{task("s", models.StatusSuccess, "arrived later")})
	e, _ = r.Entry("s")
	assert.False(t, e.Editable)
	assert.Equal(t, "arrived later", e.Summary)

	r.Apply([]models.SubTask{task("t", models.StatusSuccess, "with text")})
	e, _ = r.Entry("t")
	assert.True(t, e.Editable)
	assert.Equal(t, "with text", e.EditText)
}

func TestEmptyEditIsRefilledOnNextSuccess(t *testing.T) {
	r := New(nil)
	r.Apply([]models.SubTask{task("s", models.StatusSuccess, "")})
	e, _ := r.Entry("s")
	assert.Equal(t, "", e.EditText)
	assert.False(t, e.Editable)

	r.Apply([]models.SubTask{task("s", models.StatusFailed, "")})
	r.Apply([]models.SubTask{task("s", models.StatusSuccess, "late summary")})
	e, _ = r.Entry("s")
	assert.Equal(t, "late summary", e.EditText)
}

func TestRegressionKeepsAffordance(t *testing.T) {
	r := New(nil)
	r.Apply([]models.SubTask{task("s", models.StatusSuccess, "kept")})

	assert.NotPanics(t, func() {
		r.Apply([]models.SubTask{task("s", models.StatusProcessing, "")})
	})

	e, _ := r.Entry("s")
	assert.Equal(t, models.StatusProcessing, e.Status)
	assert.True(t, e.Editable)
	assert.Equal(t, "kept", e.EditText)
}

func TestMissingStepIDIsSkipped(t *testing.T) {
	r := New(nil)
	res := r.Apply([]models.SubTask{
		{Title: "anonymous", Status: models.StatusProcessing},
		task("ok", models.StatusPending, ""),
	})
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, []string{"ok"}, res.Created)
	assert.Equal(t, 1, r.Len())
}

func TestDuplicateIDsWithinSnapshot(t *testing.T) {
	r := New(nil)
	res := r.Apply([]models.SubTask{
		task("d", models.StatusProcessing, ""),
		task("d", models.StatusSuccess, "x"),
	})
	assert.Equal(t, []string{"d"}, res.Created)
	assert.Equal(t, []string{"d"}, res.Updated)
	assert.Equal(t, 1, r.Len())
}

func TestToggleAndSaveState(t *testing.T) {
	r := New(nil)
	r.Apply([]models.SubTask{task("p", models.StatusProcessing, ""), task("s", models.StatusSuccess, "x")})

	open, err := r.ToggleEdit("p")
	require.NoError(t, err)
	assert.False(t, open)

	open, err = r.ToggleEdit("s")
	require.NoError(t, err)
	assert.True(t, open)

	require.NoError(t, r.SetSaveState("s", SaveBusy))
	e, _ := r.Entry("s")
	assert.Equal(t, SaveBusy, e.Save)

	_, err = r.ToggleEdit("missing")
	assert.ErrorIs(t, err, ErrUnknownTask)
	assert.ErrorIs(t, r.SetEditText("missing", "x"), ErrUnknownTask)
}

func TestReset(t *testing.T) {
	r := New(nil)
	r.Apply([]models.SubTask{task("a", models.StatusPending, "")})
	r.Reset()
	assert.Equal(t, 0, r.Len())
	_, ok := r.Entry("a")
	assert.False(t, ok)

	res := r.Apply([]models.SubTask{task("a", models.StatusPending, "")})
	assert.Equal(t, []string{"a"}, res.Created)
}
