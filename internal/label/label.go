// Package label renders small TSPL programs, mainly the built-in test label.
package label

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

type Schema struct {
	WidthMM   float64                `json:"width_mm"`
	HeightMM  float64                `json:"height_mm"`
	GapMM     float64                `json:"gap_mm"`
	Copies    int                    `json:"copies"`
	Elements  []Element              `json:"elements"`
	Variables map[string]VariableDef `json:"variables"`
}

type Element struct {
	Type string `json:"type"`
	X    int    `json:"x"`
	Y    int    `json:"y"`

	Content  string `json:"content,omitempty"`
	Font     string `json:"font,omitempty"`
	Rotation int    `json:"rotation,omitempty"`
	XScale   int    `json:"x_scale,omitempty"`
	YScale   int    `json:"y_scale,omitempty"`

	Symbology string `json:"symbology,omitempty"`
	Height    int    `json:"height,omitempty"`
	Narrow    int    `json:"narrow,omitempty"`
	Wide      int    `json:"wide,omitempty"`

	Level     string `json:"level,omitempty"`
	CellWidth int    `json:"cell_width,omitempty"`

	XEnd      int `json:"x_end,omitempty"`
	YEnd      int `json:"y_end,omitempty"`
	Width     int `json:"width,omitempty"`
	Thickness int `json:"thickness,omitempty"`
}

type VariableDef struct {
	Required bool   `json:"required"`
	Default  string `json:"default"`
}

var placeholder = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Render produces the TSPL program for schema with variables substituted.
func Render(schema *Schema, variables map[string]string) ([]byte, error) {
	for name, def := range schema.Variables {
		if variables[name] == "" && def.Required && def.Default == "" {
			return nil, fmt.Errorf("required variable '%s' is missing", name)
		}
	}

	copies := schema.Copies
	if copies <= 0 {
		copies = 1
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SIZE %s mm,%s mm\n", mm(schema.WidthMM), mm(schema.HeightMM))
	fmt.Fprintf(&sb, "GAP %s mm,0 mm\n", mm(schema.GapMM))
	sb.WriteString("DIRECTION 1\n")
	sb.WriteString("REFERENCE 0,0\n")
	sb.WriteString("CLS\n")

	for i := range schema.Elements {
		cmd, err := element(&schema.Elements[i], func(s string) string { return substitute(s, variables, schema) })
		if err != nil {
			return nil, fmt.Errorf("error generating %s element: %w", schema.Elements[i].Type, err)
		}
		sb.WriteString(cmd)
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "PRINT %d,1\n", copies)
	return []byte(sb.String()), nil
}

func element(e *Element, content func(string) string) (string, error) {
	switch e.Type {
	case "text":
		return fmt.Sprintf(`TEXT %d,%d,"%s",%d,%d,%d,"%s"`,
			e.X, e.Y, or(e.Font, "0"), e.Rotation, orInt(e.XScale, 1), orInt(e.YScale, 1), escape(content(e.Content))), nil
	case "barcode":
		narrow := orInt(e.Narrow, 2)
		return fmt.Sprintf(`BARCODE %d,%d,"%s",%d,1,%d,%d,%d,"%s"`,
			e.X, e.Y, or(e.Symbology, "128"), orInt(e.Height, 80), e.Rotation, narrow, orInt(e.Wide, 2), escape(content(e.Content))), nil
	case "qrcode":
		return fmt.Sprintf(`QRCODE %d,%d,%s,%d,A,%d,"%s"`,
			e.X, e.Y, or(e.Level, "L"), orInt(e.CellWidth, 4), e.Rotation, escape(content(e.Content))), nil
	case "box":
		return fmt.Sprintf("BOX %d,%d,%d,%d,%d", e.X, e.Y, e.XEnd, e.YEnd, orInt(e.Thickness, 1)), nil
	case "line":
		return fmt.Sprintf("BAR %d,%d,%d,%d", e.X, e.Y, e.Width, orInt(e.Thickness, 1)), nil
	default:
		return "", fmt.Errorf("unsupported element type: %s", e.Type)
	}
}

func substitute(s string, variables map[string]string, schema *Schema) string {
	return placeholder.ReplaceAllStringFunc(s, func(m string) string {
		name := placeholder.FindStringSubmatch(m)[1]
		if v := variables[name]; v != "" {
			return v
		}
		return schema.Variables[name].Default
	})
}

func escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", "")
	return s
}

func mm(v float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
}

func or(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func orInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

// TestSchema is the 100x45 mm calibration label: a title, the time it was
// rendered and a QR code carrying the same text.
func TestSchema() *Schema {
	return &Schema{
		WidthMM:  100,
		HeightMM: 45,
		GapMM:    2,
		Elements: []Element{
			{Type: "text", X: 20, Y: 20, XScale: 2, YScale: 2, Content: "{{title}}"},
			{Type: "text", X: 20, Y: 90, Content: "{{printed_at}}"},
			{Type: "text", X: 20, Y: 130, Content: "{{transport}}"},
			{Type: "box", X: 10, Y: 10, XEnd: 780, YEnd: 340, Thickness: 2},
			{Type: "qrcode", X: 600, Y: 150, Content: "{{title}} {{printed_at}}"},
		},
		Variables: map[string]VariableDef{
			"title":      {Default: "TESTE DE IMPRESSAO"},
			"printed_at": {Required: true},
			"transport":  {},
		},
	}
}

// TestLabel renders the calibration label for the given transport.
func TestLabel(title, transport string, now time.Time) []byte {
	out, err := Render(TestSchema(), map[string]string{
		"title":      title,
		"printed_at": now.Format("02/01/2006 15:04:05"),
		"transport":  transport,
	})
	if err != nil {
		panic(err)
	}
	return out
}
