package export

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/disintegration/imaging"

	"character-card-wizard/internal/models"
)

// DefaultBaseName is used when the card JSON carries no usable name.
const DefaultBaseName = "character_card"

var (
	// ErrNoArtifact means no final result has been received yet.
	ErrNoArtifact = errors.New("no final artifact available")
	// ErrNoImage means the final result carries no image payload.
	ErrNoImage = errors.New("final artifact has no image data")
)

// Kind selects which file an export produces.
type Kind string

const (
	KindJSON  Kind = "json"
	KindImage Kind = "png"
)

// Artifact is one downloadable file held in memory.
type Artifact struct {
	Name        string
	ContentType string
	Body        []byte
}

// ParseFinalResult decodes the final_json string of a status snapshot.
func ParseFinalResult(raw string) (models.FinalResult, error) {
	var res models.FinalResult
	if strings.TrimSpace(raw) == "" {
		return res, ErrNoArtifact
	}
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return res, fmt.Errorf("decode final result: %w", err)
	}
	return res, nil
}

// BaseName derives the file base name from the card's `name` field.
func BaseName(cardJSON string) string {
	var card map[string]any
	if err := json.Unmarshal([]byte(cardJSON), &card); err != nil {
		return DefaultBaseName
	}
	name, ok := card["name"].(string)
	if !ok || name == "" {
		return DefaultBaseName
	}
	return SanitizeName(name)
}

// SanitizeName keeps ASCII letters and digits, `_`, `-`, `.` and CJK unified
// ideographs U+4E00..U+9FA5; every other rune becomes `_`.
func SanitizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '_' || r == '-' || r == '.':
			b.WriteRune(r)
		case r >= 0x4e00 && r <= 0x9fa5:
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Build produces the artifact of the requested kind from an in-memory result.
func Build(res models.FinalResult, kind Kind) (Artifact, error) {
	switch kind {
	case KindJSON:
		return JSONArtifact(res), nil
	case KindImage:
		return ImageArtifact(res)
	default:
		return Artifact{}, fmt.Errorf("unknown export kind %q", kind)
	}
}

// JSONArtifact writes the card JSON text verbatim.
func JSONArtifact(res models.FinalResult) Artifact {
	return Artifact{
		Name:        BaseName(res.JSON) + ".json",
		ContentType: "application/json",
		Body:        []byte(res.JSON),
	}
}

// ImageArtifact decodes the base64 card image and checks that it is a readable image.
func ImageArtifact(res models.FinalResult) (Artifact, error) {
	if strings.TrimSpace(res.Image) == "" {
		return Artifact{}, ErrNoImage
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(res.Image))
	if err != nil {
		return Artifact{}, fmt.Errorf("decode image payload: %w", err)
	}
	if _, err := imaging.Decode(bytes.NewReader(data)); err != nil {
		return Artifact{}, fmt.Errorf("decode image: %w", err)
	}
	return Artifact{
		Name:        BaseName(res.JSON) + ".png",
		ContentType: "image/png",
		Body:        data,
	}, nil
}
