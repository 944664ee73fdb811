package parser

import (
	"io"
	"strings"

	"github.com/dgallion1/figweave/internal/doctree"
)

// DefaultMaxDepth bounds group and environment nesting in LaTeX sources.
const DefaultMaxDepth = 64

// LaTeXParser handles .tex files. It never fails on malformed markup:
// unmatched closers are ignored, unclosed groups run to the end of input and
// nesting beyond MaxDepth is kept as plain text.
type LaTeXParser struct {
	MaxDepth int
}

func (p *LaTeXParser) Parse(r io.Reader, filename string) (*doctree.DocTree, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return p.ParseString(string(src), filename), nil
}

// ParseString parses LaTeX source already held in memory.
func (p *LaTeXParser) ParseString(src, filename string) *doctree.DocTree {
	maxDepth := p.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	title := baseTitle(filename)
	body := src
	if i := strings.Index(src, `\begin{document}`); i >= 0 {
		if t := preambleTitle(src[:i], maxDepth); t != "" {
			title = t
		}
		body = src[i+len(`\begin{document}`):]
	}
	if i := strings.Index(body, `\end{document}`); i >= 0 {
		body = body[:i]
	}

	return &doctree.DocTree{
		Title:    title,
		Children: parseTeX(body, 0, maxDepth),
	}
}

func preambleTitle(preamble string, maxDepth int) string {
	root := &doctree.Other{Body: parseTeX(preamble, 0, maxDepth)}
	n, ok := doctree.Find(root, func(n doctree.Node) bool {
		o, ok := n.(*doctree.Other)
		return ok && o.Name == "title"
	}).(*doctree.Other)
	if !ok {
		return ""
	}
	if a, ok := doctree.LastRequired(n.Args); ok {
		return strings.Join(strings.Fields(doctree.TextContent(a.Nodes)), " ")
	}
	return ""
}

// Section levels; a section nests everything up to the next one at the same
// or a shallower level.
var sectionLevels = map[string]int{
	"part":          0,
	"chapter":       1,
	"section":       2,
	"subsection":    3,
	"subsubsection": 4,
	"paragraph":     5,
	"subparagraph":  6,
}

var figureEnvs = map[string]bool{
	"figure":     true,
	"figure*":    true,
	"wrapfigure": true,
	"SCfigure":   true,
}

var graphicsCommands = map[string]string{
	"includegraphics": "[[{",
	"epsfig":          "{",
	"psfig":           "{",
	"epsfbox":         "[{",
}

// Environments whose body is kept verbatim in a childless node.
var rawEnvs = map[string]bool{
	"equation": true, "equation*": true,
	"align": true, "align*": true,
	"alignat": true, "alignat*": true,
	"flalign": true, "flalign*": true,
	"eqnarray": true, "eqnarray*": true,
	"gather": true, "gather*": true,
	"multline": true, "multline*": true,
	"displaymath": true, "math": true,
	"verbatim": true, "verbatim*": true, "Verbatim": true,
	"lstlisting": true, "minted": true, "comment": true,
}

var envArgShapes = map[string]string{
	"figure":          "[",
	"figure*":         "[",
	"table":           "[",
	"table*":          "[",
	"wrapfigure":      "[{[{",
	"SCfigure":        "[[",
	"subfigure":       "[[[{",
	"minipage":        "[[[{",
	"tabular":         "[{",
	"tabular*":        "{[{",
	"tabularx":        "{{",
	"itemize":         "[",
	"enumerate":       "[",
	"multicols":       "{",
	"thebibliography": "{",
}

type argShape struct {
	shape    string // '[' optional, '{' required
	meta     bool   // arguments carry no walkable content
	lastOnly bool   // only the last required argument is content
}

var commandShapes = map[string]argShape{
	"label":               {shape: "{", meta: true},
	"ref":                 {shape: "{", meta: true},
	"eqref":               {shape: "{", meta: true},
	"pageref":             {shape: "{", meta: true},
	"autoref":             {shape: "{", meta: true},
	"cref":                {shape: "{", meta: true},
	"Cref":                {shape: "{", meta: true},
	"cite":                {shape: "[[{", meta: true},
	"citep":               {shape: "[[{", meta: true},
	"citet":               {shape: "[[{", meta: true},
	"citealp":             {shape: "[[{", meta: true},
	"nocite":              {shape: "{", meta: true},
	"usepackage":          {shape: "[{", meta: true},
	"RequirePackage":      {shape: "[{", meta: true},
	"documentclass":       {shape: "[{", meta: true},
	"input":               {shape: "{", meta: true},
	"include":             {shape: "{", meta: true},
	"includeonly":         {shape: "{", meta: true},
	"bibliography":        {shape: "{", meta: true},
	"bibliographystyle":   {shape: "{", meta: true},
	"newcommand":          {shape: "{[[{", meta: true},
	"renewcommand":        {shape: "{[[{", meta: true},
	"providecommand":      {shape: "{[[{", meta: true},
	"newenvironment":      {shape: "{[[{{", meta: true},
	"renewenvironment":    {shape: "{[[{{", meta: true},
	"newtheorem":          {shape: "{[{[", meta: true},
	"DeclareMathOperator": {shape: "{{", meta: true},
	"setlength":           {shape: "{{", meta: true},
	"addtolength":         {shape: "{{", meta: true},
	"setcounter":          {shape: "{{", meta: true},
	"vspace":              {shape: "{", meta: true},
	"hspace":              {shape: "{", meta: true},
	"graphicspath":        {shape: "{", meta: true},
	"pagestyle":           {shape: "{", meta: true},
	"thispagestyle":       {shape: "{", meta: true},
	"url":                 {shape: "{", meta: true},
	"href":                {shape: "{{", lastOnly: true},
	"hyperref":            {shape: "[{"},
	"caption":             {shape: "[{"},
	"footnote":            {shape: "[{"},
	"item":                {shape: "["},
	"title":               {shape: "[{"},
	"author":              {shape: "[{"},
}

// texParser is a single-pass recursive-descent reader over one source string.
type texParser struct {
	src      string
	pos      int
	depth    int
	maxDepth int
	envs     []string // open environments, innermost last
	text     strings.Builder
	out      []doctree.Node
}

type terminator struct {
	group bool   // closes on '}'
	env   string // closes on \end{env}
}

func parseTeX(src string, depth, maxDepth int) []doctree.Node {
	if depth > maxDepth {
		return []doctree.Node{&doctree.Text{Content: src}}
	}
	p := &texParser{src: src, depth: depth, maxDepth: maxDepth}
	return p.parseNodes(terminator{})
}

// parseNodes reads nodes until term is satisfied or the input ends.
func (p *texParser) parseNodes(term terminator) []doctree.Node {
	savedOut, savedText := p.out, p.text.String()
	p.out = nil
	p.text.Reset()
	defer func() {
		p.out = savedOut
		p.text.Reset()
		p.text.WriteString(savedText)
	}()

	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch c {
		case '%':
			p.skipComment()
		case '}':
			p.pos++
			if term.group {
				return p.finish()
			}
		case '{':
			p.pos++
			p.flush()
			if p.depth >= p.maxDepth {
				p.out = append(p.out, &doctree.Text{Content: p.captureGroup()})
				continue
			}
			p.depth++
			inner := p.parseNodes(terminator{group: true})
			p.depth--
			p.out = append(p.out, inner...)
		case '$':
			p.dollar()
		case '~':
			p.pos++
			p.text.WriteByte(' ')
		case '\\':
			if done := p.backslash(term); done {
				return p.finish()
			}
		default:
			p.pos++
			p.text.WriteByte(c)
		}
	}
	return p.finish()
}

func (p *texParser) flush() {
	if p.text.Len() > 0 {
		p.out = append(p.out, &doctree.Text{Content: p.text.String()})
		p.text.Reset()
	}
}

func (p *texParser) finish() []doctree.Node {
	p.flush()
	return nestSections(p.out)
}

func (p *texParser) skipComment() {
	for p.pos < len(p.src) && p.src[p.pos] != '\n' {
		p.pos++
	}
	if p.pos < len(p.src) {
		p.pos++
	}
}

// dollar handles $$..$$ as display math and keeps $..$ in the text run.
func (p *texParser) dollar() {
	if strings.HasPrefix(p.src[p.pos:], "$$") {
		p.flush()
		p.pos += 2
		raw := p.captureUntil("$$")
		p.out = append(p.out, &doctree.Other{Name: "displaymath", Args: []doctree.Arg{{Raw: raw}}})
		return
	}
	end := p.pos + 1
	for end < len(p.src) && p.src[end] != '$' {
		if p.src[end] == '\\' {
			end++
		}
		end++
	}
	if end >= len(p.src) {
		p.pos++
		p.text.WriteByte('$')
		return
	}
	p.text.WriteString(p.src[p.pos : end+1])
	p.pos = end + 1
}

// backslash consumes one control sequence. It reports whether term was
// satisfied by a matching \end.
func (p *texParser) backslash(term terminator) bool {
	start := p.pos
	p.pos++
	if p.pos >= len(p.src) {
		p.text.WriteByte('\\')
		return false
	}

	c := p.src[p.pos]
	if !isLetter(c) {
		p.pos++
		switch c {
		case '[':
			p.flush()
			p.out = append(p.out, &doctree.Other{Name: "displaymath", Args: []doctree.Arg{{Raw: p.captureUntil(`\]`)}}})
		case '(':
			p.flush()
			p.out = append(p.out, &doctree.Other{Name: "math", Args: []doctree.Arg{{Raw: p.captureUntil(`\)`)}}})
		case '\\':
			p.text.WriteString(`\\`)
			if p.peek() == '[' {
				p.pos++
				p.captureBracket()
			}
		default:
			p.text.WriteByte('\\')
			p.text.WriteByte(c)
		}
		return false
	}

	name := p.readName()
	switch name {
	case "begin":
		p.beginEnv()
		return false
	case "end":
		env := p.readEnvName()
		if term.env != "" && env == term.env {
			return true
		}
		if p.isOpen(env) {
			p.pos = start
			return true
		}
		return false
	case "verb":
		p.flush()
		p.verb()
		return false
	case "def", "gdef", "edef":
		p.flush()
		p.def(name)
		return false
	}

	if level, ok := sectionLevels[name]; ok {
		p.flush()
		star := p.star()
		shape := "[{"
		if star {
			shape = "{"
		}
		args := p.readArgs(shape)
		sec := &doctree.Section{Name: name, Level: level}
		if a, ok := doctree.LastRequired(args); ok {
			sec.Title = doctree.TextContent(a.Nodes)
		}
		p.out = append(p.out, sec)
		return false
	}

	if shape, ok := graphicsCommands[name]; ok {
		p.flush()
		p.star()
		p.out = append(p.out, &doctree.Graphics{Directive: name, Args: p.readArgs(shape)})
		return false
	}

	p.flush()
	cs, known := commandShapes[name]
	var args []doctree.Arg
	if known {
		p.star()
		args = p.readArgs(cs.shape)
	} else {
		args = p.readAdjacentGroups()
	}
	node := &doctree.Other{Name: name, Args: args}
	switch {
	case cs.meta:
	case cs.lastOnly:
		if a, ok := doctree.LastRequired(args); ok {
			node.Body = a.Nodes
		}
	default:
		for _, a := range doctree.RequiredArgs(args) {
			node.Body = append(node.Body, a.Nodes...)
		}
	}
	p.out = append(p.out, node)
	return false
}

func (p *texParser) beginEnv() {
	p.flush()
	name := p.readEnvName()
	if name == "" {
		return
	}

	if rawEnvs[name] {
		raw := p.captureUntil(`\end{` + name + `}`)
		p.out = append(p.out, &doctree.Other{Name: name, Args: []doctree.Arg{{Raw: raw}}})
		return
	}

	shape, ok := envArgShapes[name]
	var args []doctree.Arg
	if ok {
		args = p.readArgs(shape)
	} else if p.peek() == '[' {
		args = p.readArgs("[")
	}

	var body []doctree.Node
	if p.depth >= p.maxDepth {
		body = []doctree.Node{&doctree.Text{Content: p.captureEnv(name)}}
	} else {
		p.depth++
		p.envs = append(p.envs, name)
		body = p.parseNodes(terminator{env: name})
		p.envs = p.envs[:len(p.envs)-1]
		p.depth--
	}

	if figureEnvs[name] {
		p.out = append(p.out, &doctree.Figure{Env: name, Body: body})
		return
	}
	p.out = append(p.out, &doctree.Other{Name: name, Args: args, Body: body})
}

func (p *texParser) isOpen(env string) bool {
	for _, e := range p.envs {
		if e == env {
			return true
		}
	}
	return false
}

func (p *texParser) verb() {
	p.star()
	if p.pos >= len(p.src) {
		return
	}
	delim := p.src[p.pos]
	p.pos++
	end := strings.IndexByte(p.src[p.pos:], delim)
	if end < 0 {
		end = len(p.src) - p.pos
	}
	raw := p.src[p.pos : p.pos+end]
	p.pos = min(p.pos+end+1, len(p.src))
	p.out = append(p.out, &doctree.Other{Name: "verb", Args: []doctree.Arg{{Raw: raw}}})
}

// def reads \def\name<params>{body} as a metadata node.
func (p *texParser) def(name string) {
	start := p.pos
	for p.pos < len(p.src) && p.src[p.pos] != '{' && p.src[p.pos] != '\n' {
		p.pos++
	}
	args := []doctree.Arg{{Optional: true, Raw: strings.TrimSpace(p.src[start:p.pos])}}
	if p.peek() == '{' {
		p.pos++
		args = append(args, doctree.Arg{Raw: p.captureGroup()})
	}
	p.out = append(p.out, &doctree.Other{Name: name, Args: args})
}

func (p *texParser) readName() string {
	start := p.pos
	for p.pos < len(p.src) && isLetter(p.src[p.pos]) {
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *texParser) readEnvName() string {
	save := p.pos
	p.skipSpaces()
	if p.peek() != '{' {
		p.pos = save
		return ""
	}
	p.pos++
	return strings.TrimSpace(p.captureGroup())
}

func (p *texParser) star() bool {
	if p.peek() == '*' {
		p.pos++
		return true
	}
	return false
}

func (p *texParser) peek() byte {
	if p.pos < len(p.src) {
		return p.src[p.pos]
	}
	return 0
}

// skipSpaces skips blanks and at most one line break.
func (p *texParser) skipSpaces() {
	newline := false
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\r':
		case '\n':
			if newline {
				return
			}
			newline = true
		default:
			return
		}
		p.pos++
	}
}

// readArgs reads arguments following shape. Absent optional arguments are
// skipped; reading stops at the first absent required argument.
func (p *texParser) readArgs(shape string) []doctree.Arg {
	var args []doctree.Arg
	for i := 0; i < len(shape); i++ {
		save := p.pos
		p.skipSpaces()
		switch {
		case shape[i] == '[' && p.peek() == '[':
			p.pos++
			args = append(args, p.newArg(true, p.captureBracket()))
		case shape[i] == '{' && p.peek() == '{':
			p.pos++
			args = append(args, p.newArg(false, p.captureGroup()))
		case shape[i] == '[':
			p.pos = save
		default:
			p.pos = save
			return args
		}
	}
	return args
}

// readAdjacentGroups reads {..} arguments written directly after an unknown
// command.
func (p *texParser) readAdjacentGroups() []doctree.Arg {
	var args []doctree.Arg
	for p.peek() == '{' {
		p.pos++
		args = append(args, p.newArg(false, p.captureGroup()))
	}
	return args
}

func (p *texParser) newArg(optional bool, raw string) doctree.Arg {
	return doctree.Arg{Optional: optional, Raw: raw, Nodes: parseTeX(raw, p.depth+1, p.maxDepth)}
}

// captureGroup returns the raw text up to the '}' closing a group whose '{'
// was already consumed. An unclosed group runs to the end of input.
func (p *texParser) captureGroup() string {
	start, depth := p.pos, 1
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case '\\':
			p.pos++
		case '%':
			p.skipComment()
			continue
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				raw := p.src[start:p.pos]
				p.pos++
				return raw
			}
		}
		p.pos++
	}
	p.pos = len(p.src)
	return p.src[start:]
}

// captureBracket returns the raw text up to the ']' closing an optional
// argument, ignoring brackets nested in braces.
func (p *texParser) captureBracket() string {
	start, braces, brackets := p.pos, 0, 1
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case '\\':
			p.pos++
		case '%':
			p.skipComment()
			continue
		case '{':
			braces++
		case '}':
			if braces > 0 {
				braces--
			}
		case '[':
			if braces == 0 {
				brackets++
			}
		case ']':
			if braces == 0 {
				brackets--
				if brackets == 0 {
					raw := p.src[start:p.pos]
					p.pos++
					return raw
				}
			}
		}
		p.pos++
	}
	p.pos = len(p.src)
	return p.src[start:]
}

func (p *texParser) captureUntil(closer string) string {
	i := strings.Index(p.src[p.pos:], closer)
	if i < 0 {
		raw := p.src[p.pos:]
		p.pos = len(p.src)
		return raw
	}
	raw := p.src[p.pos : p.pos+i]
	p.pos += i + len(closer)
	return raw
}

// captureEnv returns the raw body of env up to its matching \end, counting
// nested environments of the same name.
func (p *texParser) captureEnv(env string) string {
	begin, end := `\begin{`+env+`}`, `\end{`+env+`}`
	start, depth := p.pos, 1
	for p.pos < len(p.src) {
		rest := p.src[p.pos:]
		switch {
		case strings.HasPrefix(rest, begin):
			depth++
			p.pos += len(begin)
		case strings.HasPrefix(rest, end):
			depth--
			if depth == 0 {
				raw := p.src[start:p.pos]
				p.pos += len(end)
				return raw
			}
			p.pos += len(end)
		default:
			p.pos++
		}
	}
	return p.src[start:]
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// nestSections moves the nodes following each section into its body, using
// a stack of open sections ordered by level.
func nestSections(nodes []doctree.Node) []doctree.Node {
	hasSection := false
	for _, n := range nodes {
		if n.Kind() == doctree.KindSection {
			hasSection = true
			break
		}
	}
	if !hasSection {
		return nodes
	}

	var out []doctree.Node
	var stack []*doctree.Section
	for _, n := range nodes {
		if sec, ok := n.(*doctree.Section); ok {
			for len(stack) > 0 && stack[len(stack)-1].Level >= sec.Level {
				stack = stack[:len(stack)-1]
			}
			if len(stack) == 0 {
				out = append(out, sec)
			} else {
				top := stack[len(stack)-1]
				top.Body = append(top.Body, sec)
			}
			stack = append(stack, sec)
			continue
		}
		if len(stack) == 0 {
			out = append(out, n)
		} else {
			top := stack[len(stack)-1]
			top.Body = append(top.Body, n)
		}
	}
	return out
}
