package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClean_StripsControlChars(t *testing.T) {
	out := Clean("hello\x00wor\r\nld\ttab", 0)
	assert.Equal(t, "helloworldtab", out)
}

func TestClean_CapsLength(t *testing.T) {
	out := Clean("abcdefgh", 4)
	assert.Equal(t, "abcd", out)
}

func TestClean_Idempotent(t *testing.T) {
	for _, in := range []string{"  hi\x00there  ", "abcdefgh", "plain"} {
		once := Clean(in, 5)
		twice := Clean(once, 5)
		assert.Equal(t, once, twice)
	}
}

func TestCheck_RejectsDangerousPatterns(t *testing.T) {
	cases := []string{
		`<script>alert(1)</script>`,
		`javascript:alert(1)`,
		`vbscript:msgbox(1)`,
		`<img onerror=alert(1)>`,
		`eval(maliciousCode)`,
		`exec("rm -rf /")`,
		`system("ls")`,
		`shell_exec("ls")`,
		`passthru("ls")`,
		`proc_open("ls", [], $p)`,
	}
	for _, c := range cases {
		assert.ErrorIs(t, Check(c), ErrInputRejected, c)
	}
}

func TestCheck_AllowsPlainText(t *testing.T) {
	assert.NoError(t, Check("A friendly blog-writing assistant."))
}

func TestSanitize_RejectsAfterClean(t *testing.T) {
	_, err := Sanitize("<script>bad()</script>", 255)
	require.Error(t, err)
}

func TestSanitize_ReturnsCleanedValue(t *testing.T) {
	out, err := Sanitize("  Writer role  \x00", 255)
	require.NoError(t, err)
	assert.Equal(t, "Writer role", out)
}
