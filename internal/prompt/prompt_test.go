package prompt

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/charmbracelet/huh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineConfirm(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"y", "y\n", true},
		{"yes", "yes\n", true},
		{"uppercase", "YES\n", true},
		{"padded", "  y  \n", true},
		{"no", "n\n", false},
		{"empty", "\n", false},
		{"other", "sure\n", false},
		{"eof", "", false},
		{"no trailing newline", "y", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			p := NewLine(strings.NewReader(tt.input), &out)

			got, err := p.Confirm("Install postgres?")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, out.String(), "Install postgres? [y/N]: ")
		})
	}
}

func TestLineConfirm_Sequential(t *testing.T) {
	p := NewLine(strings.NewReader("y\nn\n"), &bytes.Buffer{})

	first, err := p.Confirm("one?")
	require.NoError(t, err)
	second, err := p.Confirm("two?")
	require.NoError(t, err)
	third, err := p.Confirm("three?")
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)
	assert.False(t, third, "exhausted input answers no")
}

func TestFormConfirm(t *testing.T) {
	orig := runForm
	t.Cleanup(func() { runForm = orig })

	runForm = func(*huh.Form) error { return nil }
	got, err := Form{}.Confirm("Install ollama?")
	require.NoError(t, err)
	assert.False(t, got, "untouched form keeps the zero answer")

	runForm = func(*huh.Form) error { return huh.ErrUserAborted }
	_, err = Form{}.Confirm("Install ollama?")
	assert.True(t, errors.Is(err, ErrAborted))

	runForm = func(*huh.Form) error { return errors.New("tty gone") }
	_, err = Form{}.Confirm("Install ollama?")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrAborted))
}

func TestAuto(t *testing.T) {
	var out bytes.Buffer
	got, err := Auto{Answer: true, Out: &out}.Confirm("Did postgres install successfully?")
	require.NoError(t, err)
	assert.True(t, got)
	assert.Contains(t, out.String(), "[auto: yes]")

	got, err = Auto{}.Confirm("anything")
	require.NoError(t, err)
	assert.False(t, got)
}

func TestNew(t *testing.T) {
	p, err := New(StyleLine)
	require.NoError(t, err)
	assert.IsType(t, &Line{}, p)

	p, err = New(StyleForm)
	require.NoError(t, err)
	assert.IsType(t, Form{}, p)

	_, err = New("fancy")
	assert.Error(t, err)
}
