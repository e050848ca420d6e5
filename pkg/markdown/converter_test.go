package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToTelegramHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain", "hello", "hello"},
		{"scoreboard line", "__alice__ — *3* Ls", "<b>alice</b> — <i>3</i> Ls"},
		{"multiple lines", "__a__ — *1* Ls\n__b__ — *0* Ls", "<b>a</b> — <i>1</i> Ls\n<b>b</b> — <i>0</i> Ls"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToTelegramHTML(tt.in))
		})
	}
}

func TestEscape(t *testing.T) {
	assert.Equal(t, `snake\_case\_name`, Escape("snake_case_name"))
	assert.Equal(t, "<b>snake_case</b> — <i>2</i> Ls",
		ToTelegramHTML("__"+Escape("snake_case")+"__ — *2* Ls"))
	assert.Equal(t, "a &lt;b&gt; &amp; c", ToTelegramHTML(Escape("a <b> & c")))
	assert.Equal(t, "<b>*star*</b> — <i>1</i> Ls",
		ToTelegramHTML("__"+Escape("*star*")+"__ — *1* Ls"))
}
