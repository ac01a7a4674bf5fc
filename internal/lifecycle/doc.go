// Package lifecycle sequences runtime startup into bootstrap, post-config
// and ready phases.
//
// Within post-config, hooks registered with a priority of zero or more run
// before unprioritised hooks, and negative priorities run after them. The
// entity bootstrap loader registers unprioritised, so a hook at priority 0
// sees the cache unseeded and a hook at -1 sees it seeded.
package lifecycle
