// Package collector turns the wizard's input form into a submission payload.
package collector

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"character-card-wizard/internal/models"
)

// MaxFileBytes is the default per-file upload limit.
const MaxFileBytes int64 = 10 * 1024 * 1024

var (
	ErrMissingName     = errors.New("character name is required")
	ErrUnsupportedFile = errors.New("unsupported file type")
	ErrFileTooLarge    = errors.New("file too large")
	ErrInvalidRef      = errors.New("invalid reference")
)

var validate = validator.New()

// Extension allow-lists per file-bearing reference type.
var (
	ImageExtensions    = []string{"jpg", "jpeg", "png", "webp", "gif"}
	DocumentExtensions = []string{"txt", "pdf", "md", "xls", "xlsx", "docx"}
)

// ReferenceInput is one editable row of the reference list.
type ReferenceInput struct {
	ID          string              `yaml:"-"`
	Type        models.ResourceType `yaml:"type" validate:"oneof=url file image search"`
	Reliability models.Reliability  `yaml:"reliability" validate:"min=1,max=4"`
	URL         string              `yaml:"url,omitempty"`
	FilePath    string              `yaml:"file,omitempty"`
}

// NewReference returns a fresh row with the form defaults: a low-reliability link.
func NewReference() ReferenceInput {
	return ReferenceInput{ID: uuid.NewString(), Type: models.ResourceURL, Reliability: models.ReliabilityLow}
}

// Form is the raw wizard input. Alias fields hold the unsplit text the user typed.
type Form struct {
	CharacterName     string           `yaml:"character_name" validate:"required"`
	CharacterAliases  string           `yaml:"character_aliases"`
	SourceWorkName    string           `yaml:"source_work_name"`
	SourceWorkAliases string           `yaml:"source_work_aliases"`
	UserRequirement   string           `yaml:"user_requirement"`
	References        []ReferenceInput `yaml:"references" validate:"dive"`
}

// NewForm returns an empty form with one reference row.
func NewForm() Form {
	return Form{References: []ReferenceInput{NewReference()}}
}

// Clone returns a deep copy.
func (f Form) Clone() Form {
	out := f
	out.References = append([]ReferenceInput(nil), f.References...)
	return out
}

// ValidateDetails is the step-1 guard.
func ValidateDetails(f Form) error {
	if err := validate.Var(f.CharacterName, "required"); err != nil {
		return ErrMissingName
	}
	return nil
}

// ValidateReferences checks every row's type, reliability and selected file.
func ValidateReferences(f Form, maxBytes int64) error {
	for i, ref := range f.References {
		if err := validate.Struct(ref); err != nil {
			return fmt.Errorf("reference %d: %w: %v", i+1, ErrInvalidRef, err)
		}
		if !ref.Type.CarriesFile() || ref.FilePath == "" {
			continue
		}
		info, err := os.Stat(ref.FilePath)
		if err != nil {
			return fmt.Errorf("reference %d: stat file: %w", i+1, err)
		}
		if err := CheckFile(ref.Type, ref.FilePath, info.Size(), maxBytes); err != nil {
			return fmt.Errorf("reference %d: %w", i+1, err)
		}
	}
	return nil
}

// CheckFile enforces the extension allow-list for t and the size limit.
// A non-positive maxBytes uses MaxFileBytes.
func CheckFile(t models.ResourceType, path string, size, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = MaxFileBytes
	}
	var allowed []string
	switch t {
	case models.ResourceImage:
		allowed = ImageExtensions
	case models.ResourceFile:
		allowed = DocumentExtensions
	default:
		return fmt.Errorf("%w: %s references carry no file", ErrUnsupportedFile, t)
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if !contains(allowed, ext) {
		return fmt.Errorf("%w: %q, expected one of %s", ErrUnsupportedFile, filepath.Base(path), strings.Join(allowed, ", "))
	}
	if size > maxBytes {
		return fmt.Errorf("%w: %s exceeds %d MiB", ErrFileTooLarge, filepath.Base(path), maxBytes>>20)
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// SplitAliases splits on ASCII or full-width commas, trims, and drops empties.
func SplitAliases(text string) []string {
	out := []string{}
	for _, part := range strings.FieldsFunc(text, func(r rune) bool { return r == ',' || r == '，' }) {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Build encodes the form as the submit payload. File-bearing references with
// a file are marked PENDING_UPLOAD and their paths are returned in order.
func Build(f Form) models.Submission {
	refs := make([]models.Reference, 0, len(f.References))
	var files []string
	for _, in := range f.References {
		ref := models.Reference{ResourceType: in.Type, ReliabilityScore: in.Reliability}
		switch {
		case in.Type == models.ResourceURL:
			ref.ResourceURL = strings.TrimSpace(in.URL)
		case in.Type.CarriesFile() && in.FilePath != "":
			name := filepath.Base(in.FilePath)
			ref.ResourceURL = models.PendingUploadURL
			ref.FileName = &name
			files = append(files, in.FilePath)
		}
		refs = append(refs, ref)
	}
	return models.Submission{
		Data: models.Character{
			CharacterName:     f.CharacterName,
			CharacterAliases:  SplitAliases(f.CharacterAliases),
			SourceWorkName:    f.SourceWorkName,
			SourceWorkAliases: SplitAliases(f.SourceWorkAliases),
			UserRequirement:   f.UserRequirement,
			Reference:         refs,
		},
		Files: files,
	}
}

// LoadDraft reads a YAML form draft. Rows get fresh ids and missing
// reliabilities default to low.
func LoadDraft(path string) (Form, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Form{}, fmt.Errorf("read draft: %w", err)
	}
	var f Form
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Form{}, fmt.Errorf("parse draft: %w", err)
	}
	for i := range f.References {
		f.References[i].ID = uuid.NewString()
		if f.References[i].Type == "" {
			f.References[i].Type = models.ResourceURL
		}
		if f.References[i].Reliability == 0 {
			f.References[i].Reliability = models.ReliabilityLow
		}
	}
	if len(f.References) == 0 {
		f.References = []ReferenceInput{NewReference()}
	}
	return f, nil
}
