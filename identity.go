package redisession

// identityGuard tracks which session identifiers were minted by this
// execution. Identifiers in the set were never read from an incoming request,
// so no record can exist for them yet and they are trusted without a store
// lookup. The set lives and dies with one Handler and is never persisted.
type identityGuard struct {
	fresh map[string]struct{}
}

func newIdentityGuard() *identityGuard {
	return &identityGuard{fresh: make(map[string]struct{})}
}

// recordGenerated marks id as minted in-process.
func (g *identityGuard) recordGenerated(id string) {
	g.fresh[id] = struct{}{}
}

// isNew reports whether id was minted by this execution.
func (g *identityGuard) isNew(id string) bool {
	_, ok := g.fresh[id]
	return ok
}
