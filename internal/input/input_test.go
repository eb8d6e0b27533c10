package input

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byteowlz/pagemd/internal/errs"
)

func TestDetect(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "page.html", []byte("<p>x</p>"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/abs/notes", []byte("x"), 0644))
	require.NoError(t, afero.WriteFile(fs, "README", []byte("x"), 0644))

	tests := []struct {
		name string
		arg  string
		want Kind
	}{
		{"absent", "", KindStdin},
		{"dash", "-", KindStdin},
		{"https", "https://example.com", KindURL},
		{"http", "http://example.com/page", KindURL},
		{"scheme wins over existing file", "https://page.html", KindURL},
		{"existing relative file", "page.html", KindLocalFile},
		{"existing absolute file", "/abs/notes", KindLocalFile},
		{"existing file without dot", "README", KindLocalFile},
		{"bare domain", "example.com", KindURL},
		{"missing dotted name guessed as url", "archive.tar", KindURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Detect(fs, tt.arg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetect_Unresolvable(t *testing.T) {
	fs := afero.NewMemMapFs()

	for _, arg := range []string{"nodot", "/missing/file.html", "/etc/nothing"} {
		_, err := Detect(fs, arg)
		require.Error(t, err, arg)
		assert.ErrorIs(t, err, errs.ErrUnresolvableInput)
		assert.Contains(t, err.Error(), arg)
	}
}

func TestNormalizeURL(t *testing.T) {
	assert.Equal(t, "https://example.com", NormalizeURL("example.com"))
	assert.Equal(t, "http://example.com", NormalizeURL("http://example.com"))
	assert.Equal(t, "https://example.com/a", NormalizeURL("https://example.com/a"))
}
