package format

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestANSIHTML_Colors(t *testing.T) {
	f := ANSIHTML{}
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain text", "hello world", "hello world"},
		{"escapes html", "<b>&\"x\"", "&lt;b&gt;&amp;&#34;x&#34;"},
		{"red then reset", "\x1b[31mred\x1b[0m ok", `<span style="color: #aa0000">red</span> ok`},
		{"bold green", "\x1b[1;32mgo", `<span style="font-weight: bold; color: #00aa00">go</span>`},
		{"bright bg", "\x1b[101mX\x1b[m", `<span style="background-color: #ff5555">X</span>`},
		{"256 colour", "\x1b[38;5;196mZ", `<span style="color: #ff0000">Z</span>`},
		{"truecolour", "\x1b[38;2;1;2;3mT", `<span style="color: #010203">T</span>`},
		{"grey ramp", "\x1b[48;5;232mG", `<span style="background-color: #080808">G</span>`},
		{"style change", "\x1b[31ma\x1b[32mb", `<span style="color: #aa0000">a</span><span style="color: #00aa00">b</span>`},
		{"cursor moves dropped", "\x1b[2K\x1b[1Gdone", "done"},
		{"osc title dropped", "\x1b]0;title\x07after", "after"},
		{"reset without text", "\x1b[31m\x1b[0m", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, f.Format(tc.in))
		})
	}
}

func TestPlain_Strips(t *testing.T) {
	got := Plain{}.Format("\x1b[1;31m[+]\x1b[0m found\tsub.example.com\r")
	assert.Equal(t, "[+] found\tsub.example.com", got)
}

func TestFormatters_NeverEmitRecordDelimiter(t *testing.T) {
	inputs := []string{
		"a\n\nb",
		"\r\n\r\n",
		"\x1b[31m\n\x1b[0m\n",
		"progress\r50%\r100%\n",
		"\x1b]8;;http://x\x1b\\link\n\n\x1b]8;;\x1b\\",
		"\x1b[",
		"\x1b",
		string([]byte{0x00, 0x0a, 0x0b, 0x0c, 0x0d, 0x1b, 0x0a, 0x0a}),
	}
	for _, f := range []Formatter{ANSIHTML{}, Plain{}} {
		for _, in := range inputs {
			out := f.Format(in)
			assert.NotContains(t, out, "\n", "input %q", in)
			assert.NotContains(t, out, "\r", "input %q", in)
		}
	}
}

func TestFormatters_Deterministic(t *testing.T) {
	in := "\x1b[33mwarn\x1b[0m <x>"
	f := ANSIHTML{}
	first := f.Format(in)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, f.Format(in))
	}
}

func TestNew(t *testing.T) {
	f, err := New(KindHTML)
	require.NoError(t, err)
	assert.IsType(t, ANSIHTML{}, f)

	f, err = New("")
	require.NoError(t, err)
	assert.IsType(t, ANSIHTML{}, f)

	f, err = New(KindPlain)
	require.NoError(t, err)
	assert.IsType(t, Plain{}, f)

	_, err = New("markdown")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "markdown"))
}

func TestFormatterFunc(t *testing.T) {
	var f Formatter = FormatterFunc(strings.ToUpper)
	assert.Equal(t, "ABC", f.Format("abc"))
}

func TestANSIHTML_ManySGRParams(t *testing.T) {
	in := "\x1b[" + strings.Repeat("1;", 64) + "31mX\x1b[0m"
	assert.Equal(t, `<span style="font-weight: bold; color: #aa0000">X</span>`, ANSIHTML{}.Format(in))
}

func TestANSIHTML_NonSGRCSIDropped(t *testing.T) {
	f := ANSIHTML{}
	assert.Equal(t, "a", f.Format("\x1b[?25la"))
	assert.Equal(t, "b", f.Format("\x1b[1 qb"))
	assert.Equal(t, "c", f.Format("\x1bPq#0;2;0;0;0\x1b\\c"))
}

func TestANSIHTML_UnicodeText(t *testing.T) {
	assert.Equal(t, `<span style="color: #00aa00">✔ 완료</span>`, ANSIHTML{}.Format("\x1b[32m✔ 완료\x1b[0m"))
}

func TestPlain_DropsC1Controls(t *testing.T) {
	assert.Equal(t, "ab", Plain{}.Format("a\u0085b\x7f"))
}
