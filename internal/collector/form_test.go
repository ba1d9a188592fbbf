package collector

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"character-card-wizard/internal/models"
)

func TestSplitAliases(t *testing.T) {
	cases := map[string][]string{
		"":                  {},
		"Frau":              {"Frau"},
		"Frau, フラウ，  F ,,": {"Frau", "フラウ", "F"},
		" , ，":              {},
	}
	for in, want := range cases {
		assert.Equal(t, want, SplitAliases(in), "input %q", in)
	}
}

func TestValidateDetails(t *testing.T) {
	f := NewForm()
	assert.ErrorIs(t, ValidateDetails(f), ErrMissingName)

	f.CharacterName = "Frau"
	assert.NoError(t, ValidateDetails(f))
}

func TestCheckFile(t *testing.T) {
	assert.NoError(t, CheckFile(models.ResourceImage, "a/b/photo.JPG", 100, 0))
	assert.NoError(t, CheckFile(models.ResourceFile, "notes.docx", 100, 0))

	assert.ErrorIs(t, CheckFile(models.ResourceImage, "notes.pdf", 100, 0), ErrUnsupportedFile)
	assert.ErrorIs(t, CheckFile(models.ResourceFile, "photo.png", 100, 0), ErrUnsupportedFile)
	assert.ErrorIs(t, CheckFile(models.ResourceFile, "noext", 100, 0), ErrUnsupportedFile)
	assert.ErrorIs(t, CheckFile(models.ResourceURL, "x.txt", 1, 0), ErrUnsupportedFile)

	assert.ErrorIs(t, CheckFile(models.ResourceFile, "big.pdf", MaxFileBytes+1, 0), ErrFileTooLarge)
	assert.NoError(t, CheckFile(models.ResourceFile, "big.pdf", MaxFileBytes, 0))
	assert.ErrorIs(t, CheckFile(models.ResourceFile, "small.pdf", 11, 10), ErrFileTooLarge)
}

func TestValidateReferences(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "setting.md")
	bad := filepath.Join(dir, "setting.exe")
	require.NoError(t, os.WriteFile(good, []byte("# notes"), 0o644))
	require.NoError(t, os.WriteFile(bad, []byte("MZ"), 0o644))

	f := NewForm()
	f.References = []ReferenceInput{
		{Type: models.ResourceFile, Reliability: models.ReliabilityHigh, FilePath: good},
		{Type: models.ResourceSearch, Reliability: models.ReliabilityLow},
	}
	assert.NoError(t, ValidateReferences(f, 0))

	f.References[0].FilePath = bad
	assert.ErrorIs(t, ValidateReferences(f, 0), ErrUnsupportedFile)

	f.References[0].FilePath = good
	f.References[1].Reliability = 9
	assert.ErrorIs(t, ValidateReferences(f, 0), ErrInvalidRef)

	f.References[1] = ReferenceInput{Type: "ftp", Reliability: 1}
	assert.ErrorIs(t, ValidateReferences(f, 0), ErrInvalidRef)
}

func TestBuildEncodesReferences(t *testing.T) {
	f := Form{
		CharacterName:     "Frau",
		CharacterAliases:  "フラウ，F",
		SourceWorkName:    "Work",
		SourceWorkAliases: "",
		UserRequirement:   "keep canon",
		References: []ReferenceInput{
			{Type: models.ResourceURL, Reliability: models.ReliabilityMedium, URL: " https://wiki.example/frau "},
			{Type: models.ResourceImage, Reliability: models.ReliabilityCertain, FilePath: "/tmp/art/front.png"},
			{Type: models.ResourceFile, Reliability: models.ReliabilityLow},
			{Type: models.ResourceSearch, Reliability: models.ReliabilityHigh, URL: "ignored"},
			{Type: models.ResourceFile, Reliability: models.ReliabilityHigh, FilePath: "/tmp/doc/bio.pdf"},
		},
	}

	sub := Build(f)
	assert.Equal(t, []string{"フラウ", "F"}, sub.Data.CharacterAliases)
	assert.Equal(t, []string{}, sub.Data.SourceWorkAliases)
	assert.Equal(t, []string{"/tmp/art/front.png", "/tmp/doc/bio.pdf"}, sub.Files)

	refs := sub.Data.Reference
	require.Len(t, refs, 5)

	assert.Equal(t, "https://wiki.example/frau", refs[0].ResourceURL)
	assert.Nil(t, refs[0].FileName)

	assert.Equal(t, models.PendingUploadURL, refs[1].ResourceURL)
	require.NotNil(t, refs[1].FileName)
	assert.Equal(t, "front.png", *refs[1].FileName)
	assert.Equal(t, models.ReliabilityCertain, refs[1].ReliabilityScore)

	assert.Equal(t, "", refs[2].ResourceURL)
	assert.Nil(t, refs[2].FileName)

	assert.Equal(t, "", refs[3].ResourceURL)

	assert.Equal(t, models.PendingUploadURL, refs[4].ResourceURL)
	assert.Equal(t, "bio.pdf", *refs[4].FileName)
}

func TestLoadDraft(t *testing.T) {
	path := filepath.Join(t.TempDir(), "draft.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
character_name: Frau
character_aliases: "フラウ, F"
source_work_name: Work
references:
  - type: url
    reliability: 3
    url: https://wiki.example/frau
  - type: search
`), 0o644))

	f, err := LoadDraft(path)
	require.NoError(t, err)
	assert.Equal(t, "Frau", f.CharacterName)
	require.Len(t, f.References, 2)
	assert.Equal(t, models.ReliabilityHigh, f.References[0].Reliability)
	assert.Equal(t, models.ReliabilityLow, f.References[1].Reliability)
	assert.NotEmpty(t, f.References[0].ID)
	assert.NotEqual(t, f.References[0].ID, f.References[1].ID)
}

func TestLoadDraftErrors(t *testing.T) {
	_, err := LoadDraft(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("references: [:"), 0o644))
	_, err = LoadDraft(path)
	assert.Error(t, err)
}

func TestNewFormHasOneReference(t *testing.T) {
	f := NewForm()
	require.Len(t, f.References, 1)
	assert.Equal(t, models.ResourceURL, f.References[0].Type)

	clone := f.Clone()
	clone.References[0].URL = "changed"
	assert.Empty(t, f.References[0].URL)
}
