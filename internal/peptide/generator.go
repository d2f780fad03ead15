package peptide

// Generator lazily enumerates the peptides described by a Pattern. It walks
// the Cartesian product of the per-position alternatives in position order,
// with the first position varying slowest, and extracts every contiguous
// window of the target length from each expansion (expansion order, then
// window-start order).
//
// A Generator is single-pass: once drained it does not restart. Callers that
// need repeated access should Collect the output.
type Generator struct {
	pattern   Pattern
	windowLen int

	indices []int  // odometer over alternative choices
	buf     []byte // current expansion
	winIdx  int    // next window start within buf
	done    bool
}

// NewGenerator creates a generator for the given pattern. windowLen is the
// desired peptide length; zero means emit full-length expansions unwindowed.
// A windowLen longer than the pattern yields no peptides.
func NewGenerator(p Pattern, windowLen int) (*Generator, error) {
	if windowLen < 0 {
		return nil, &ConfigurationError{Message: "window length must not be negative"}
	}
	if windowLen == 0 {
		windowLen = p.Len()
	}

	g := &Generator{
		pattern:   p,
		windowLen: windowLen,
		indices:   make([]int, p.Len()),
		buf:       make([]byte, p.Len()),
	}

	if p.Len() == 0 || p.Width() == 0 || windowLen > p.Len() {
		g.done = true
		return g, nil
	}

	g.render()
	return g, nil
}

// Next returns the next peptide. ok is false once the generator is drained.
func (g *Generator) Next() (peptide string, ok bool) {
	for !g.done {
		if g.winIdx+g.windowLen <= len(g.buf) {
			w := string(g.buf[g.winIdx : g.winIdx+g.windowLen])
			g.winIdx++
			return w, true
		}
		g.advance()
	}
	return "", false
}

// Collect drains the generator into a slice.
func (g *Generator) Collect() []string {
	var out []string
	for p, ok := g.Next(); ok; p, ok = g.Next() {
		out = append(out, p)
	}
	return out
}

// render materializes the expansion selected by the current odometer state.
func (g *Generator) render() {
	for i, alt := range g.indices {
		g.buf[i] = g.pattern[i][alt]
	}
	g.winIdx = 0
}

// advance steps the odometer to the next expansion, incrementing the last
// position fastest so the first position varies slowest.
func (g *Generator) advance() {
	for i := len(g.indices) - 1; i >= 0; i-- {
		g.indices[i]++
		if g.indices[i] < len(g.pattern[i]) {
			g.render()
			return
		}
		g.indices[i] = 0
	}
	g.done = true
}

// Expand is a convenience wrapper that parses a bracket pattern and returns
// all peptides of the given window length.
func Expand(pattern string, windowLen int) ([]string, error) {
	p, err := ParsePattern(pattern)
	if err != nil {
		return nil, err
	}
	g, err := NewGenerator(p, windowLen)
	if err != nil {
		return nil, err
	}
	return g.Collect(), nil
}
