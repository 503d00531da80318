package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapLoader(files map[string]string) Loader {
	return func(ctx context.Context, p string) ([]byte, error) {
		s, ok := files[p]
		if !ok {
			return nil, fmt.Errorf("file not found: %s", p)
		}
		return []byte(s), nil
	}
}

func TestHasImports(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   bool
	}{
		{"none", "rect 50 2 100 4 \"blue\"", false},
		{"import", "import \"badge.dsh\"\nbadge 90 5", true},
		{"include", "include \"footer.dsh\"", true},
		{"padded", "  import  \"x.dsh\"  ", true},
		{"comment", "// import \"x.dsh\"", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasImports([]byte(tt.source)))
		})
	}
}

func TestExpandImportOnce(t *testing.T) {
	files := map[string]string{
		"theme/main.dsh": "import \"lib/badge.dsh\"\nimport \"lib/badge.dsh\"\nbadge 90 5",
		"theme/lib/badge.dsh": "// a corner badge\ndef badge X Y\n\tcircle X Y 2 \"steelblue\"\nedef\ntrailing text",
	}
	out, err := NewImportResolver(mapLoader(files)).Expand(context.Background(), []byte(files["theme/main.dsh"]), "theme/main.dsh")
	require.NoError(t, err)

	s := string(out)
	assert.Equal(t, 1, strings.Count(s, "def badge X Y"))
	assert.NotContains(t, s, "import")
	assert.NotContains(t, s, "corner badge")
	assert.NotContains(t, s, "trailing text")
	assert.Contains(t, s, "badge 90 5")
}

func TestExpandInclude(t *testing.T) {
	files := map[string]string{
		"main.dsh":         "include \"parts/footer.dsh\"\nrect 50 2 100 4",
		"parts/footer.dsh": "include \"logo.dsh\"\ntext \"ACME\" 2 2 1",
		"parts/logo.dsh":   "circle 98 2 1",
	}
	out, err := LoadTheme(context.Background(), mapLoader(files), "main.dsh")
	require.NoError(t, err)
	assert.Equal(t, "circle 98 2 1\ntext \"ACME\" 2 2 1\nrect 50 2 100 4\n", string(out))
}

func TestExpandErrors(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
	}{
		{"missing", map[string]string{"main.dsh": "include \"gone.dsh\""}},
		{"no def", map[string]string{"main.dsh": "import \"x.dsh\"", "x.dsh": "circle 1 1 1"}},
		{"unclosed", map[string]string{"main.dsh": "import \"x.dsh\"", "x.dsh": "def f\ncircle 1 1 1"}},
		{"nested", map[string]string{"main.dsh": "import \"x.dsh\"", "x.dsh": "def f\ndef g\nedef"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadTheme(context.Background(), mapLoader(tt.files), "main.dsh")
			assert.Error(t, err)
		})
	}
}

func TestExpandCycle(t *testing.T) {
	files := map[string]string{
		"a.dsh": "include \"b.dsh\"",
		"b.dsh": "include \"a.dsh\"",
	}
	_, err := LoadTheme(context.Background(), mapLoader(files), "a.dsh")
	assert.ErrorIs(t, err, ErrIncludeCycle)
}

func TestLoadThemeWithoutImports(t *testing.T) {
	files := map[string]string{"plain.dsh": "rect 50 2 100 4"}
	out, err := LoadTheme(context.Background(), mapLoader(files), "plain.dsh")
	require.NoError(t, err)
	assert.Equal(t, "rect 50 2 100 4", string(out))

	out, err = LoadTheme(context.Background(), mapLoader(files), "")
	require.NoError(t, err)
	assert.Nil(t, out)
}
