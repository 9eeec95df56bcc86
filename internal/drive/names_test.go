package drive

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractFolderID(t *testing.T) {
	t.Parallel()
	cases := []struct{ in, want string }{
		{in: "https://drive.google.com/drive/folders/1MPvOKrcZGnw9lxUp4tb4SlOqTSQWPhbj", want: "1MPvOKrcZGnw9lxUp4tb4SlOqTSQWPhbj"},
		{in: "https://drive.google.com/drive/u/0/folders/abc_DEF-123?usp=sharing", want: "abc_DEF-123"},
		{in: "https://drive.google.com/open?id=xyz789", want: "xyz789"},
		{in: "  1MPvOKrcZGnw9lxUp4tb4SlOqTSQWPhbj  ", want: "1MPvOKrcZGnw9lxUp4tb4SlOqTSQWPhbj"},
		{in: "", want: ""},
		{in: "https://example.com/nothing", want: ""},
		{in: "not a folder id!", want: ""},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, ExtractFolderID(tc.in), tc.in)
	}
}

func TestMimeTypeFor(t *testing.T) {
	t.Parallel()
	require.Equal(t, "audio/mpeg", MimeTypeFor("a.MP3"))
	require.Equal(t, "audio/wav", MimeTypeFor("a.wav"))
	require.Equal(t, "audio/mp4", MimeTypeFor("a.m4a"))
	require.Equal(t, "audio/webm", MimeTypeFor("a.webm"))
	require.Equal(t, "audio/mpeg", MimeTypeFor("a.bin"))
	require.True(t, IsAudioName("x.flac"))
	require.False(t, IsAudioName("notes.txt"))
}
