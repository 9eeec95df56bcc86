package notebook

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResearchersAcceptsListOrString(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want Researchers
	}{
		{`["Ana", " Ben "]`, Researchers{"Ana", "Ben"}},
		{`"Ana, Ben,,"`, Researchers{"Ana", "Ben"}},
		{`""`, Researchers{}},
	}
	for _, tc := range tests {
		var got Researchers
		require.NoError(t, json.Unmarshal([]byte(tc.in), &got), tc.in)
		require.Equal(t, tc.want, got, tc.in)
	}

	var bad Researchers
	require.Error(t, json.Unmarshal([]byte(`42`), &bad))
}

func TestCreateRequestValidate(t *testing.T) {
	t.Parallel()
	base := validRequest([]string{"x.mp3"})
	tests := []struct {
		name   string
		mutate func(*CreateRequest)
		want   string
	}{
		{"valid", func(*CreateRequest) {}, ""},
		{"no project", func(r *CreateRequest) { r.ProjectName = "" }, "All fields are required"},
		{"no researchers", func(r *CreateRequest) { r.Researchers = nil }, "All fields are required"},
		{"no methodology", func(r *CreateRequest) { r.Methodology = "" }, "All fields are required"},
		{"no audio", func(r *CreateRequest) { r.AudioFileIDs = nil }, "At least one audio file is required"},
		{"no token", func(r *CreateRequest) { r.AccessToken = "" }, "Access token is required"},
		{"bad methodology", func(r *CreateRequest) { r.Methodology = "Survey" }, "Research methodology is invalid"},
		{"folder url", func(r *CreateRequest) { r.ParentFolderID = "https://drive.google.com/drive/folders/abc123" }, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := base
			tc.mutate(&req)
			err := req.Validate()
			if tc.want == "" {
				require.NoError(t, err)
				return
			}
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			require.Equal(t, tc.want, ve.Message)
		})
	}
}
