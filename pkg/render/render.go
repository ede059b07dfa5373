// Package render styles chat output for the terminal.
package render

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/pravin-sarule/jurinex-dev-sub002/pkg/chat"
	"github.com/pravin-sarule/jurinex-dev-sub002/pkg/logger"
)

var (
	codeFenceRegex = regexp.MustCompile("(?s)```([\\w+-]*)[ \\t]*\\n(.*?)```")
	headingRegex   = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)
)

// Palette, carried over from the amber/mint terminal theme
var (
	ColorAmber  = lipgloss.Color("#FFB000")
	ColorMint   = lipgloss.Color("#00FF87")
	ColorGold   = lipgloss.Color("#FFD700")
	ColorTomato = lipgloss.Color("#FF6347")
	ColorOrange = lipgloss.Color("#FFA500")
	ColorDim    = lipgloss.Color("#888888")
	ColorBorder = lipgloss.Color("#555555")
	ColorSky    = lipgloss.Color("#00BFFF")
)

// Renderer turns chat content into styled terminal text. With color off it
// emits plain text and no escape sequences.
type Renderer struct {
	width int
	color bool

	statusStyle   lipgloss.Style
	thinkingStyle lipgloss.Style
	errorStyle    lipgloss.Style
	headerStyle   lipgloss.Style
	questionStyle lipgloss.Style
	citationStyle lipgloss.Style
	mutedStyle    lipgloss.Style

	chromaFormatter chroma.Formatter
	chromaStyle     *chroma.Style
}

// New creates a renderer for output written to w
func New(w io.Writer, width int, color bool) *Renderer {
	if width <= 0 {
		width = 80
	}

	lr := lipgloss.NewRenderer(w)
	formatter := formatters.Get("terminal16m")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	return &Renderer{
		width: width,
		color: color,

		statusStyle: lr.NewStyle().
			Foreground(ColorSky).
			Italic(true),

		thinkingStyle: lr.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 1).
			Foreground(ColorDim).
			Italic(true),

		errorStyle: lr.NewStyle().
			Bold(true).
			Foreground(ColorTomato),

		headerStyle: lr.NewStyle().
			Bold(true).
			Foreground(ColorOrange),

		questionStyle: lr.NewStyle().
			Bold(true).
			Foreground(ColorAmber),

		citationStyle: lr.NewStyle().
			Foreground(ColorMint),

		mutedStyle: lr.NewStyle().
			Foreground(ColorDim),

		chromaFormatter: formatter,
		chromaStyle:     styles.Get("monokai"),
	}
}

// DetectColor reports whether w is a terminal that understands colors
func DetectColor(w io.Writer) bool {
	return lipgloss.NewRenderer(w).ColorProfile() != termenv.Ascii
}

func (r *Renderer) style(s lipgloss.Style, text string) string {
	if !r.color {
		return text
	}
	return s.Render(text)
}

// Status renders a progress line such as "searching: Searching documents"
func (r *Renderer) Status(status, message string) string {
	text := message
	switch {
	case status != "" && message != "":
		text = fmt.Sprintf("%s: %s", status, message)
	case message == "":
		text = status
	}
	return r.style(r.statusStyle, "… "+text)
}

// Thinking renders the model's reasoning in a dim box
func (r *Renderer) Thinking(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	if !r.color {
		return "Thinking:\n" + text
	}
	return r.thinkingStyle.Width(r.width - 2).Render(text)
}

// Error renders the error banner
func (r *Renderer) Error(msg string) string {
	return r.style(r.errorStyle, "Error: "+msg)
}

func (r *Renderer) Question(q string) string {
	return r.style(r.questionStyle, "> "+q)
}

func (r *Renderer) Muted(text string) string {
	return r.style(r.mutedStyle, text)
}

// Answer styles markdown headings and highlights fenced code blocks
func (r *Renderer) Answer(text string) string {
	var b strings.Builder

	last := 0
	for _, m := range codeFenceRegex.FindAllStringSubmatchIndex(text, -1) {
		b.WriteString(r.prose(text[last:m[0]]))
		b.WriteString(r.CodeBlock(text[m[4]:m[5]], text[m[2]:m[3]]))
		last = m[1]
	}
	b.WriteString(r.prose(text[last:]))

	return b.String()
}

func (r *Renderer) prose(text string) string {
	if !r.color || text == "" {
		return text
	}

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if m := headingRegex.FindStringSubmatch(line); m != nil {
			lines[i] = r.headerStyle.Render(m[2])
		}
	}
	return strings.Join(lines, "\n")
}

// CodeBlock highlights code with chroma. Without color, or when the code
// cannot be tokenised, it is returned as is.
func (r *Renderer) CodeBlock(code, language string) string {
	if !r.color || code == "" {
		return code
	}

	var lexer chroma.Lexer
	if language != "" {
		lexer = lexers.Get(language)
	}
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		logger.WithComponent("render").Debug("failed to tokenise %s code: %v", language, err)
		return code
	}

	var buf strings.Builder
	if err := r.chromaFormatter.Format(&buf, r.chromaStyle, iterator); err != nil {
		logger.WithComponent("render").Debug("failed to format code: %v", err)
		return code
	}
	return buf.String()
}

// Citations renders a numbered source list. link, when set, supplies a
// viewer URL for each citation.
func (r *Renderer) Citations(citations []chat.Citation, link func(chat.Citation) string) string {
	if len(citations) == 0 {
		return ""
	}

	lines := []string{r.style(r.headerStyle, "Sources")}
	for i, c := range citations {
		name := c.FileName
		if name == "" {
			name = c.FileID
		}
		if name == "" {
			name = c.ChunkID
		}

		line := fmt.Sprintf("[%d] %s", i+1, name)
		if c.Page > 0 {
			line += fmt.Sprintf(", p. %d", c.Page)
		}
		if link != nil {
			if u := link(c); u != "" {
				line += " " + r.Muted(u)
			}
		}
		lines = append(lines, r.style(r.citationStyle, line))
	}
	return strings.Join(lines, "\n")
}

// HistoryEntry renders one stored exchange for the history listing
func (r *Renderer) HistoryEntry(msg *chat.Message) string {
	header := r.Question(msg.Question)
	if msg.IsSecretPrompt {
		header += r.Muted(" (analysis)")
	}

	meta := msg.ID
	if !msg.Timestamp.IsZero() {
		meta += "  " + msg.Timestamp.Local().Format("2006-01-02 15:04")
	}

	return strings.Join([]string{header, r.Muted(meta), r.Answer(msg.Response)}, "\n")
}
