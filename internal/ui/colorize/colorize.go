package colorize

import (
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"

	"lift/internal/disasm"
)

// EnvNoColor disables every colouring function when set.
const EnvNoColor = "LIFT_NO_COLOR"

const reset = "\033[0m"

func Enabled() bool {
	return os.Getenv(EnvNoColor) == ""
}

// lexerCandidates lists assembly lexers per preset family, best first.
func lexerCandidates(arch string) []string {
	arch = strings.ToLower(arch)
	switch {
	case strings.HasPrefix(arch, "x86"):
		return []string{"nasm", "gas"}
	case strings.HasPrefix(arch, "aarch64"), strings.HasPrefix(arch, "arm"):
		return []string{"armasm", "gas", "nasm"}
	}
	return []string{"gas", "GAS", "nasm"}
}

func getAssemblyLexer(arch string) chroma.Lexer {
	for _, name := range lexerCandidates(arch) {
		if lexer := lexers.Get(name); lexer != nil {
			return lexer
		}
	}
	return nil
}

func getDisasmStyle() *chroma.Style {
	for _, name := range []string{"lift-dark", "dracula", "monokai"} {
		if style := styles.Get(name); style != nil {
			return style
		}
	}
	return styles.Fallback
}

func getTerminalFormatter() chroma.Formatter {
	for _, name := range []string{"terminal16m", "terminal256"} {
		if formatter := formatters.Get(name); formatter != nil {
			return formatter
		}
	}
	return formatters.Fallback
}

// Assembly highlights assembly text for the given preset. On any failure
// the text is returned unchanged.
func Assembly(code, arch string) string {
	if !Enabled() || code == "" {
		return code
	}
	lexer := getAssemblyLexer(arch)
	if lexer == nil {
		return code
	}
	_ = LiftDark

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}
	tokens := iterator.Tokens()
	// some lexers force a trailing newline
	if n := len(tokens); n > 0 && !strings.HasSuffix(code, "\n") {
		tokens[n-1].Value = strings.TrimSuffix(tokens[n-1].Value, "\n")
	}
	var buf strings.Builder
	if err := getTerminalFormatter().Format(&buf, getDisasmStyle(), chroma.Literator(tokens...)); err != nil {
		return code
	}
	return buf.String()
}

func rgb(r, g, b int, s string) string {
	return fmt.Sprintf("\033[38;2;%d;%d;%dm%s%s", r, g, b, s, reset)
}

// Address renders an address column in gray.
func Address(s string) string {
	if !Enabled() {
		return s
	}
	return rgb(79, 79, 79, s)
}

// InstructionLine renders "addr  text" with a gray address and highlighted
// assembly.
func InstructionLine(addr, text, arch string) string {
	return Address(addr) + "  " + Assembly(text, arch)
}

// Label renders a symbol label line.
func Label(name string) string {
	if !Enabled() {
		return name + ":"
	}
	return rgb(255, 215, 0, name) + ":"
}

// Comment renders a trailing listing comment.
func Comment(s string) string {
	if !Enabled() {
		return s
	}
	return rgb(106, 153, 85, s)
}

// Opcode renders a pcode opcode name, coloured by category.
func Opcode(op disasm.Opcode) string {
	name := op.String()
	if !Enabled() {
		return name
	}
	switch {
	case op == disasm.CALLOTHER:
		return rgb(106, 153, 85, name)
	case op.IsBranch():
		return rgb(255, 95, 135, name)
	case op == disasm.LOAD || op == disasm.STORE:
		return rgb(234, 205, 83, name)
	case op.IsCompare():
		return rgb(197, 134, 192, name)
	case op.IsArithmetic(), op.IsLogical():
		return rgb(220, 220, 170, name)
	case op.IsCast():
		return rgb(156, 220, 254, name)
	}
	return name
}

// Varnode renders a varnode in the listing operand form space[offset:size].
func Varnode(v disasm.Varnode) string {
	s := fmt.Sprintf("%s[0x%x:%d]", v.Space, v.Offset, v.Size)
	if !Enabled() {
		return s
	}
	if v.Space == "const" {
		return rgb(255, 95, 135, s)
	}
	return rgb(124, 156, 157, s)
}

// PcodeLine renders one micro-operation as "out = OP in0, in1".
func PcodeLine(p disasm.PcodeInstruction) string {
	var sb strings.Builder
	if p.Out != nil {
		sb.WriteString(Varnode(*p.Out))
		sb.WriteString(" = ")
	}
	sb.WriteString(Opcode(p.Opcode))
	for i, v := range p.Vars {
		if i == 0 {
			sb.WriteByte(' ')
		} else {
			sb.WriteString(", ")
		}
		sb.WriteString(Varnode(v))
	}
	return sb.String()
}

// StripANSI removes ANSI escape sequences.
func StripANSI(s string) string {
	var result strings.Builder
	inEscape := false
	for _, r := range s {
		switch {
		case r == '\x1b':
			inEscape = true
		case inEscape:
			if r == 'm' {
				inEscape = false
			}
		default:
			result.WriteRune(r)
		}
	}
	return result.String()
}
