package fakeremote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image/color"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"character-card-wizard/internal/models"
	"character-card-wizard/internal/remote"
)

func newClient(t *testing.T, opts Options) (*remote.Client, *Server) {
	t.Helper()
	srv := New(opts)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return remote.New(ts.URL+"/api/file", time.Second), srv
}

func submission(refs ...models.Reference) models.Submission {
	return models.Submission{Data: models.Character{CharacterName: "Frau", SourceWorkName: "Work", Reference: refs}}
}

func TestAnalysisProgressesOneTickPerPoll(t *testing.T) {
	c, _ := newClient(t, Options{FailTypes: []string{models.TaskTypeSearch}})
	ctx := context.Background()

	id, err := c.Submit(ctx, submission(
		models.Reference{ResourceType: models.ResourceURL, ReliabilityScore: 2, ResourceURL: "https://wiki.example/frau"},
		models.Reference{ResourceType: models.ResourceSearch, ReliabilityScore: 1},
	))
	require.NoError(t, err)

	want := [][]models.TaskStatus{
		{models.StatusProcessing, models.StatusPending},
		{models.StatusSuccess, models.StatusPending},
		{models.StatusSuccess, models.StatusProcessing},
		{models.StatusSuccess, models.StatusFailed},
	}
	var snap models.StatusSnapshot
	for i, statuses := range want {
		snap, err = c.Status(ctx, id)
		require.NoError(t, err)
		require.Len(t, snap.SubTasks, 2)
		for k, st := range statuses {
			assert.Equal(t, st, snap.SubTasks[k].Status, "tick %d task %d", i, k)
		}
		assert.Equal(t, i == len(want)-1, snap.IsFinished, "tick %d", i)
	}

	assert.Equal(t, "step_ref_0", snap.SubTasks[0].StepID)
	assert.Equal(t, models.TaskTypeLinkCrawl, snap.SubTasks[0].Type)
	assert.Equal(t, "Link reading: https://wiki.example/frau", snap.SubTasks[0].Title)
	assert.Equal(t, "Web search: Frau", snap.SubTasks[1].Title)
	assert.NotEmpty(t, snap.SubTasks[1].ResultSummary)
	assert.False(t, snap.HasFinal())
}

func TestGenerationProducesFinalArtifact(t *testing.T) {
	c, _ := newClient(t, Options{})
	ctx := context.Background()

	id, err := c.Submit(ctx, submission())
	require.NoError(t, err)
	snap, err := c.Status(ctx, id)
	require.NoError(t, err)
	require.True(t, snap.IsFinished)

	require.NoError(t, c.GenerateCard(ctx, id))
	snap, err = c.Status(ctx, id)
	require.NoError(t, err)
	require.True(t, snap.HasFinal())
	assert.True(t, snap.IsFinished)

	gen := snap.SubTasks[len(snap.SubTasks)-1]
	assert.Equal(t, GenerationStepID, gen.StepID)
	assert.Equal(t, models.StatusSuccess, gen.Status)

	var res models.FinalResult
	require.NoError(t, json.Unmarshal([]byte(*snap.FinalJSON), &res))
	var c2 map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.JSON), &c2))
	assert.Equal(t, "Frau", c2["name"])

	png, err := base64.StdEncoding.DecodeString(res.Image)
	require.NoError(t, err)
	img, err := imaging.Decode(bytes.NewReader(png))
	require.NoError(t, err)
	assert.Equal(t, CardWidth, img.Bounds().Dx())
	assert.Equal(t, CardHeight, img.Bounds().Dy())
}

func TestGenerationUsesUploadedPortrait(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "portrait.png")
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, imaging.New(20, 30, color.Black), imaging.PNG))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	c, _ := newClient(t, Options{})
	ctx := context.Background()
	name := "portrait.png"
	sub := submission(models.Reference{ResourceType: models.ResourceImage, ReliabilityScore: 4, ResourceURL: models.PendingUploadURL, FileName: &name})
	sub.Files = []string{path}

	id, err := c.Submit(ctx, sub)
	require.NoError(t, err)
	snap, err := c.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Image analysis: portrait.png", snap.SubTasks[0].Title)

	for !snap.IsFinished {
		snap, err = c.Status(ctx, id)
		require.NoError(t, err)
	}
	require.NoError(t, c.GenerateCard(ctx, id))
	snap, err = c.Status(ctx, id)
	require.NoError(t, err)
	require.True(t, snap.HasFinal())

	var res models.FinalResult
	require.NoError(t, json.Unmarshal([]byte(*snap.FinalJSON), &res))
	png, err := base64.StdEncoding.DecodeString(res.Image)
	require.NoError(t, err)
	img, err := imaging.Decode(bytes.NewReader(png))
	require.NoError(t, err)
	assert.Equal(t, CardWidth, img.Bounds().Dx())
	r, g, b, _ := img.At(CardWidth/2, CardHeight/2).RGBA()
	assert.Equal(t, [3]uint32{0, 0, 0}, [3]uint32{r, g, b})
}

func TestGenerationFailure(t *testing.T) {
	c, _ := newClient(t, Options{FailCard: true, FailReason: "model refused"})
	ctx := context.Background()

	id, err := c.Submit(ctx, submission())
	require.NoError(t, err)
	_, err = c.Status(ctx, id)
	require.NoError(t, err)
	require.NoError(t, c.GenerateCard(ctx, id))

	snap, err := c.Status(ctx, id)
	require.NoError(t, err)
	assert.True(t, snap.IsFinished)
	assert.False(t, snap.HasFinal())
	gen := snap.SubTasks[len(snap.SubTasks)-1]
	assert.Equal(t, models.StatusFailed, gen.Status)
	assert.Equal(t, "model refused", gen.ResultSummary)
}

func TestGenerateTwiceKeepsOneGenerationTask(t *testing.T) {
	c, _ := newClient(t, Options{OmitImage: true})
	ctx := context.Background()
	id, err := c.Submit(ctx, submission())
	require.NoError(t, err)

	require.NoError(t, c.GenerateCard(ctx, id))
	require.NoError(t, c.GenerateCard(ctx, id))
	snap, err := c.Status(ctx, id)
	require.NoError(t, err)
	require.Len(t, snap.SubTasks, 1)

	var res models.FinalResult
	require.NoError(t, json.Unmarshal([]byte(*snap.FinalJSON), &res))
	assert.Empty(t, res.Image)
}

func TestUpdateTaskResult(t *testing.T) {
	c, srv := newClient(t, Options{})
	ctx := context.Background()
	id, err := c.Submit(ctx, submission(models.Reference{ResourceType: models.ResourceSearch, ReliabilityScore: 1}))
	require.NoError(t, err)

	require.NoError(t, c.UpdateTaskResult(ctx, id, "step_ref_0", "corrected"))
	got, ok := srv.Summary(id, "step_ref_0")
	require.True(t, ok)
	assert.Equal(t, "corrected", got)

	err = c.UpdateTaskResult(ctx, id, "step_missing", "x")
	var se *remote.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.Code)
}

func TestUnknownProcess(t *testing.T) {
	c, _ := newClient(t, Options{})
	ctx := context.Background()

	_, err := c.Status(ctx, "nope")
	var se *remote.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.Code)

	err = c.GenerateCard(ctx, "nope")
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.Code)
}

func TestSubmitRejectsMissingName(t *testing.T) {
	c, srv := newClient(t, Options{})
	_, err := c.Submit(context.Background(), models.Submission{})
	var se *remote.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusInternalServerError, se.Code)
	assert.Equal(t, 0, srv.Jobs())
}

func TestHealthz(t *testing.T) {
	ts := httptest.NewServer(New(Options{}).Router())
	defer ts.Close()
	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
