package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"report.pdf", "report.pdf"},
		{"../../etc/passwd", "_.._etc_passwd"},
		{`a<b>c:d"e|f?g*h\i`, "a_b_c_d_e_f_g_h_i"},
		{"tab\there", "tab_here"},
		{"   ", "file"},
		{"..", "file"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeFilename(tt.in), tt.in)
	}
}

func TestSanitizeFilenameTruncates(t *testing.T) {
	long := strings.Repeat("x", 300) + ".tar"
	got := SanitizeFilename(long)
	assert.Equal(t, MaxFilenameLength, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, "....tar"), got)

	multi := strings.Repeat("ü", 250)
	got = SanitizeFilename(multi)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, MaxFilenameLength, utf8.RuneCountInString(got))
}

func TestGetUniqueFilename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photo.jpg")
	assert.Equal(t, path, GetUniqueFilename(path))

	require.NoError(t, os.WriteFile(path, nil, 0o644))
	assert.Equal(t, filepath.Join(dir, "photo (1).jpg"), GetUniqueFilename(path))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "photo (1).jpg"), nil, 0o644))
	assert.Equal(t, filepath.Join(dir, "photo (2).jpg"), GetUniqueFilename(path))
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "512 B", FormatSize(512))
	assert.Equal(t, "1.50 KB", FormatSize(1536))
	assert.Equal(t, "2.00 GB", FormatSize(2<<30))
	assert.Equal(t, "1.00 MB/s", FormatSpeed(1<<20))
	assert.Equal(t, "1m 5s", FormatTimeDuration(65*time.Second))
	assert.Equal(t, "250ms", FormatTimeDuration(250*time.Millisecond))
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 100.0, Percent(0, 0))
	assert.Equal(t, 50.0, Percent(5, 10))
	assert.Equal(t, 100.0, Percent(11, 10))
	assert.Equal(t, 0.0, Percent(-1, 10))
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", TruncateString("short", 10))
	assert.Equal(t, "report...", TruncateString("report-final.pdf", 9))
	assert.Equal(t, "ab", TruncateString("abcdef", 2))
	assert.Equal(t, "żółw", TruncateString("żółw", 4))
}
