package format

import (
	"fmt"
	"strings"
)

type style struct {
	bold      bool
	italic    bool
	underline bool
	fg        string
	bg        string
}

func (s style) zero() bool { return s == style{} }

func (s style) css() string {
	parts := make([]string, 0, 5)
	if s.bold {
		parts = append(parts, "font-weight: bold")
	}
	if s.italic {
		parts = append(parts, "font-style: italic")
	}
	if s.underline {
		parts = append(parts, "text-decoration: underline")
	}
	if s.fg != "" {
		parts = append(parts, "color: "+s.fg)
	}
	if s.bg != "" {
		parts = append(parts, "background-color: "+s.bg)
	}
	return strings.Join(parts, "; ")
}

var palette = [16]string{
	"#000000", "#aa0000", "#00aa00", "#aa5500", "#0000aa", "#aa00aa", "#00aaaa", "#aaaaaa",
	"#555555", "#ff5555", "#55ff55", "#ffff55", "#5555ff", "#ff55ff", "#55ffff", "#ffffff",
}

var cubeLevels = [6]int{0, 95, 135, 175, 215, 255}

func color256(n int) string {
	switch {
	case n < 0 || n > 255:
		return ""
	case n < 16:
		return palette[n]
	case n < 232:
		n -= 16
		return rgb(cubeLevels[n/36], cubeLevels[(n/6)%6], cubeLevels[n%6])
	default:
		g := 8 + (n-232)*10
		return rgb(g, g, g)
	}
}

func rgb(r, g, b int) string {
	clamp := func(v int) int {
		if v < 0 {
			return 0
		}
		if v > 255 {
			return 255
		}
		return v
	}
	return fmt.Sprintf("#%02x%02x%02x", clamp(r), clamp(g), clamp(b))
}

// apply folds one SGR parameter list into s.
func (s style) apply(params []int) style {
	for i := 0; i < len(params); i++ {
		p := params[i]
		switch {
		case p == 0:
			s = style{}
		case p == 1:
			s.bold = true
		case p == 3:
			s.italic = true
		case p == 4:
			s.underline = true
		case p == 22:
			s.bold = false
		case p == 23:
			s.italic = false
		case p == 24:
			s.underline = false
		case p >= 30 && p <= 37:
			s.fg = palette[p-30]
		case p == 39:
			s.fg = ""
		case p >= 40 && p <= 47:
			s.bg = palette[p-40]
		case p == 49:
			s.bg = ""
		case p >= 90 && p <= 97:
			s.fg = palette[p-90+8]
		case p >= 100 && p <= 107:
			s.bg = palette[p-100+8]
		case p == 38 || p == 48:
			c, used := extendedColor(params[i+1:])
			i += used
			if p == 38 {
				s.fg = c
			} else {
				s.bg = c
			}
		}
	}
	return s
}

// extendedColor decodes "5;n" or "2;r;g;b" and reports how many params it consumed.
func extendedColor(rest []int) (string, int) {
	if len(rest) == 0 {
		return "", 0
	}
	switch rest[0] {
	case 5:
		if len(rest) < 2 {
			return "", len(rest)
		}
		return color256(rest[1]), 2
	case 2:
		if len(rest) < 4 {
			return "", len(rest)
		}
		return rgb(rest[1], rest[2], rest[3]), 4
	default:
		return "", 1
	}
}
