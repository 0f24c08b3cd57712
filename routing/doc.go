// Package routing computes the next-node set for a just-executed node.
// Route is a pure function: the decision carries next node ids, the
// satisfied and unsatisfied edge sets, and any variable updates the
// transition manager should apply; nothing is mutated here.
package routing
