package xsd

// maxMatchSteps bounds the backtracking the matcher does on pathological
// content models, on top of stepsPerChild for every child. A match that
// runs out of steps fails with Mismatch.Exhausted set.
const (
	maxMatchSteps = 1 << 20
	stepsPerChild = 8
)

// MatchResult is the outcome of matching one particle against a run of
// child elements.
type MatchResult struct {
	Consumed int
	OK       bool
}

// Match reports how many children, starting at start, particle p consumes
// under the preferred (greedy, declaration order) interpretation.
func Match(p *Particle, children []QName, start int) MatchResult {
	if p == nil || start < 0 || start > len(children) {
		return MatchResult{}
	}
	m := newMatcher(children)
	var end int
	ok := m.repeat(p, start, 0, func(pos int) bool {
		end = pos
		return true
	})
	if !ok {
		return MatchResult{}
	}
	return MatchResult{Consumed: end - start, OK: true}
}

// ContentMatch is the outcome of matching a whole child list.
type ContentMatch struct {
	OK bool
	// Bindings holds the element declaration each child was matched to.
	// When the match fails it holds a best-effort binding by name, or nil
	// for children no particle of the content model declares.
	Bindings []*ElementDecl
	Mismatch *Mismatch
}

// Mismatch locates where a failed match could get no further.
type Mismatch struct {
	// Index is the first child that could not be consumed, or
	// len(children) when required content is missing at the end.
	// It is -1 when the match was Exhausted.
	Index int
	// Exhausted is set when the step budget ran out before the content
	// model accepted or rejected the children.
	Exhausted bool
	// Expected lists the element particles that were tried at Index.
	Expected []*Particle
	// Missing is the first required particle among Expected, set when
	// Index is at the end of the children.
	Missing *Particle
}

// ExpectedNames returns the distinct local names in Expected.
func (mm *Mismatch) ExpectedNames() []string {
	var names []string
	seen := make(map[QName]bool)
	for _, p := range mm.Expected {
		if seen[p.Element.Name] {
			continue
		}
		seen[p.Element.Name] = true
		names = append(names, p.Element.Name.Local)
	}
	return names
}

// MatchAll matches p against the complete child list.
func MatchAll(p *Particle, children []QName) ContentMatch {
	if p == nil {
		if len(children) == 0 {
			return ContentMatch{OK: true, Bindings: []*ElementDecl{}}
		}
		return ContentMatch{
			Bindings: make([]*ElementDecl, len(children)),
			Mismatch: &Mismatch{Index: 0},
		}
	}

	m := newMatcher(children)
	ok := m.repeat(p, 0, 0, func(pos int) bool {
		m.reach(pos, nil)
		return pos == len(children)
	})
	if ok {
		return ContentMatch{OK: true, Bindings: m.bind}
	}
	if m.exhausted {
		return ContentMatch{
			Bindings: bindByName(p, children),
			Mismatch: &Mismatch{Index: -1, Exhausted: true},
		}
	}

	mm := &Mismatch{Index: m.high, Expected: m.expected}
	if mm.Index == len(children) {
		for _, e := range mm.Expected {
			if e.Min > 0 {
				mm.Missing = e
				break
			}
		}
		if mm.Missing == nil && len(mm.Expected) > 0 {
			mm.Missing = mm.Expected[0]
		}
	}
	return ContentMatch{Bindings: bindByName(p, children), Mismatch: mm}
}

type matcher struct {
	children []QName
	bind     []*ElementDecl
	steps    int
	budget   int

	exhausted bool

	// high is the furthest child index any attempt reached and expected
	// the element particles tried there.
	high     int
	expected []*Particle
}

func newMatcher(children []QName) *matcher {
	return &matcher{
		children: children,
		bind:     make([]*ElementDecl, len(children)),
		budget:   maxMatchSteps + stepsPerChild*len(children),
	}
}

// step charges one unit of work and reports whether the budget allows it.
func (m *matcher) step() bool {
	m.steps++
	if m.steps > m.budget {
		m.exhausted = true
		return false
	}
	return true
}

func (m *matcher) reach(pos int, p *Particle) {
	if pos > m.high {
		m.high = pos
		m.expected = nil
	}
	if pos < m.high || p == nil {
		return
	}
	for _, e := range m.expected {
		if e == p {
			return
		}
	}
	m.expected = append(m.expected, p)
}

// repeat matches further occurrences of p after count have been matched,
// preferring more occurrences, and calls k with each end position until k
// accepts one.
func (m *matcher) repeat(p *Particle, pos, count int, k func(int) bool) bool {
	if p.Kind == ElementParticle {
		return m.run(p, pos, count, k)
	}
	if p.Max == Unbounded || count < p.Max {
		matched := m.once(p, pos, func(end int) bool {
			if end == pos {
				// An empty occurrence can stand in for every remaining
				// required one; more empty occurrences add nothing.
				return count < p.Min && k(end)
			}
			return m.repeat(p, end, count+1, k)
		})
		if matched {
			return true
		}
	}
	if count >= p.Min {
		return k(pos)
	}
	return false
}

// run matches the longest run of children named by element particle p,
// after count occurrences, and then offers k the end positions from the
// longest run down to the shortest one p.Min allows. The run is matched
// in a loop so that long sibling lists do not deepen the recursion.
func (m *matcher) run(p *Particle, pos, count int, k func(int) bool) bool {
	end := pos
	for p.Max == Unbounded || count+end-pos < p.Max {
		m.reach(end, p)
		if end >= len(m.children) || m.children[end] != p.Element.Name {
			break
		}
		// Continuations only rebind children at or after the end they
		// are given, so binding the whole run up front is enough.
		m.bind[end] = p.Element
		end++
	}
	for ; end >= pos && count+end-pos >= p.Min; end-- {
		if !m.step() {
			return false
		}
		if k(end) {
			return true
		}
	}
	return false
}

// once matches exactly one occurrence of the group particle p.
func (m *matcher) once(p *Particle, pos int, k func(int) bool) bool {
	if !m.step() {
		return false
	}
	switch p.Kind {
	case SequenceParticle:
		return m.sequence(p.Children, 0, pos, k)
	case ChoiceParticle:
		for _, c := range p.Children {
			if m.repeat(c, pos, 0, k) {
				return true
			}
		}
		return false
	case AllParticle:
		return m.all(p, pos, k)
	}
	return false
}

func (m *matcher) sequence(ps []*Particle, i, pos int, k func(int) bool) bool {
	if i == len(ps) {
		return k(pos)
	}
	return m.repeat(ps[i], pos, 0, func(end int) bool {
		return m.sequence(ps, i+1, end, k)
	})
}

// all consumes children in any order, each member at most Max times, until
// no member accepts the next child, and then checks every member's Min.
func (m *matcher) all(p *Particle, pos int, k func(int) bool) bool {
	counts := make([]int, len(p.Children))
	for pos < len(m.children) {
		progressed := false
		for i, c := range p.Children {
			if c.Kind != ElementParticle || c.Element.Name != m.children[pos] {
				continue
			}
			if c.Max != Unbounded && counts[i] >= c.Max {
				continue
			}
			counts[i]++
			m.bind[pos] = c.Element
			pos++
			progressed = true
			break
		}
		if !progressed {
			break
		}
	}
	for i, c := range p.Children {
		if c.Max == Unbounded || counts[i] < c.Max {
			m.reach(pos, c)
		}
	}
	for i, c := range p.Children {
		if counts[i] < c.Min {
			return false
		}
	}
	return k(pos)
}

// bindByName binds each child to the first element particle of p, in
// declaration order, with the same name.
func bindByName(p *Particle, children []QName) []*ElementDecl {
	decls := make(map[QName]*ElementDecl)
	var walk func(*Particle)
	walk = func(p *Particle) {
		if p.Kind == ElementParticle {
			if _, ok := decls[p.Element.Name]; !ok {
				decls[p.Element.Name] = p.Element
			}
			return
		}
		for _, c := range p.Children {
			walk(c)
		}
	}
	walk(p)

	out := make([]*ElementDecl, len(children))
	for i, name := range children {
		out[i] = decls[name]
	}
	return out
}
