package models

// ResourceType enumerates reference kinds accepted by the submit endpoint.
type ResourceType string

const (
	ResourceURL    ResourceType = "url"
	ResourceFile   ResourceType = "file"
	ResourceImage  ResourceType = "image"
	ResourceSearch ResourceType = "search"
)

// ResourceTypes lists the reference kinds in display order.
var ResourceTypes = []ResourceType{ResourceURL, ResourceFile, ResourceImage, ResourceSearch}

// CarriesFile reports whether references of this type upload a file part.
func (t ResourceType) CarriesFile() bool {
	return t == ResourceFile || t == ResourceImage
}

// Reliability is the ordered confidence scale, encoded 1..4 on the wire.
type Reliability int

const (
	ReliabilityLow Reliability = iota + 1
	ReliabilityMedium
	ReliabilityHigh
	ReliabilityCertain
)

func (r Reliability) String() string {
	switch r {
	case ReliabilityLow:
		return "low"
	case ReliabilityMedium:
		return "medium"
	case ReliabilityHigh:
		return "high"
	case ReliabilityCertain:
		return "certain"
	default:
		return "unknown"
	}
}

// PendingUploadURL marks a file-bearing reference whose bytes travel as a multipart part.
const PendingUploadURL = "PENDING_UPLOAD"

// Reference is one entry of the submission reference list.
type Reference struct {
	ResourceType     ResourceType `json:"resource_type"`
	ReliabilityScore Reliability  `json:"reliability_score"`
	ResourceURL      string       `json:"resource_url"`
	FileName         *string      `json:"file_name"`
}

// Character is the JSON `data` part of a submission.
type Character struct {
	CharacterName     string      `json:"character_name"`
	CharacterAliases  []string    `json:"character_aliases"`
	SourceWorkName    string      `json:"source_work_name"`
	SourceWorkAliases []string    `json:"source_work_aliases"`
	UserRequirement   string      `json:"user_requirement"`
	Reference         []Reference `json:"reference"`
}

// Submission pairs the payload with the local files uploaded alongside it,
// ordered to match the PENDING_UPLOAD references.
type Submission struct {
	Data  Character
	Files []string
}
