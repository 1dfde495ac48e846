package livemap

type Mode int

const (
	ModeWaiting Mode = iota
	ModeReady
	ModeFallback
)

func (m Mode) String() string {
	switch m {
	case ModeWaiting:
		return "waiting"
	case ModeReady:
		return "ready"
	case ModeFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// Gate decides whether markers may be touched. The map provider and the data
// source report readiness independently and reconciliation only runs once
// both have. Fallback is terminal: once the provider has failed nothing moves
// the gate back to ready for the rest of the session.
//
// Gate is not safe for concurrent use, the owning Session serialises access.
type Gate struct {
	providerReady bool
	sourceReady   bool
	fallback      bool
	cause         string

	listeners []func(from Mode, to Mode)
}

func NewGate() *Gate {
	return &Gate{}
}

func (g *Gate) Mode() Mode {
	switch {
	case g.fallback:
		return ModeFallback
	case g.providerReady && g.sourceReady:
		return ModeReady
	default:
		return ModeWaiting
	}
}

func (g *Gate) CanReconcile() bool {
	return g.Mode() == ModeReady
}

func (g *Gate) Fallback() bool {
	return g.fallback
}

func (g *Gate) ProviderReady() bool {
	return g.providerReady
}

func (g *Gate) SourceReady() bool {
	return g.sourceReady
}

// Cause is the human readable reason fallback was entered.
func (g *Gate) Cause() string {
	return g.cause
}

// OnChange registers fn to run after every mode transition.
func (g *Gate) OnChange(fn func(from Mode, to Mode)) {
	g.listeners = append(g.listeners, fn)
}

func (g *Gate) MarkProviderReady() {
	g.transition(func() { g.providerReady = true })
}

func (g *Gate) MarkSourceReady() {
	g.transition(func() { g.sourceReady = true })
}

// EnterFallback switches to fallback mode and reports whether this call
// caused the switch. The first cause is kept.
func (g *Gate) EnterFallback(cause string) bool {
	if g.fallback {
		return false
	}

	g.transition(func() {
		g.fallback = true
		g.cause = cause
	})

	return true
}

func (g *Gate) transition(change func()) {
	from := g.Mode()
	change()
	to := g.Mode()

	if from == to {
		return
	}

	for _, listener := range g.listeners {
		listener(from, to)
	}
}
