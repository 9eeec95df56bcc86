package notebook

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/JakeFAU/resona/internal/drive"
)

// Methodology is the research method recorded on a notebook.
type Methodology string

// Accepted methodologies.
const (
	MethodologyInPerson Methodology = "In-person research"
	MethodologyRemote   Methodology = "Remote research"
)

// Valid reports whether m is one of the accepted methodologies.
func (m Methodology) Valid() bool {
	return m == MethodologyInPerson || m == MethodologyRemote
}

// Researchers accepts either a JSON array or a comma separated string.
type Researchers []string

// UnmarshalJSON implements json.Unmarshaler.
func (r *Researchers) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*r = cleanNames(list)
		return nil
	}
	var joined string
	if err := json.Unmarshal(data, &joined); err != nil {
		return fmt.Errorf("researchers must be a string or a list of strings")
	}
	*r = cleanNames(strings.Split(joined, ","))
	return nil
}

func cleanNames(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// CreateRequest is the body of POST /api/notebook/create.
type CreateRequest struct {
	ProjectName  string      `json:"projectName"`
	Date         string      `json:"date"`
	Researchers  Researchers `json:"researchers"`
	UserCohorts  string      `json:"userCohorts"`
	Methodology  Methodology `json:"methodology"`
	AudioFileIDs []string    `json:"audioFileIds"`
	AccessToken  string      `json:"accessToken"`
	// ParentFolderID optionally overrides the configured parent folder. A
	// folder URL is accepted as well.
	ParentFolderID string `json:"parentFolderId,omitempty"`
}

// Validate checks presence of every required field. It runs before any
// operation record exists.
func (r CreateRequest) Validate() error {
	if strings.TrimSpace(r.ProjectName) == "" ||
		strings.TrimSpace(r.Date) == "" ||
		len(r.Researchers) == 0 ||
		strings.TrimSpace(r.UserCohorts) == "" ||
		r.Methodology == "" {
		return &ValidationError{Message: "All fields are required"}
	}
	if len(r.AudioFileIDs) == 0 {
		return &ValidationError{Message: "At least one audio file is required"}
	}
	if strings.TrimSpace(r.AccessToken) == "" {
		return &ValidationError{Message: "Access token is required"}
	}
	if !r.Methodology.Valid() {
		return &ValidationError{Message: "Research methodology is invalid"}
	}
	if r.ParentFolderID != "" && drive.ExtractFolderID(r.ParentFolderID) == "" {
		return &ValidationError{Message: "Parent folder ID is invalid"}
	}
	return nil
}
