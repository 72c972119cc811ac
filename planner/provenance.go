package planner

import "github.com/brane-run/brane/wir"

// applyProvenance updates prov (frame-variable index -> dataset/
// intermediate-result reference name) by scanning instrs for the two
// patterns the planner needs to see through statically: a dataset literal
// stored directly into a variable (`let d := dataset("D");` lowers to
// PushConst(DataRef)+StoreVar), and one variable copied into another
// (`let e := d;` lowers to PushVar+StoreVar). Any other value stored into a
// variable clears its provenance: the planner can no longer say which
// dataset, if any, that slot holds, and simply won't constrain candidate
// locations by it (spec.md §4.7 step 1 only requires intersecting with
// datasets the planner actually knows about).
//
// This is a deliberate simplification of full reaching-definitions
// dataflow: it tracks only direct assignment chains, not values threaded
// through arithmetic, array/class construction, or calls. A Node input
// built from anything more complex than a stored dataset reference plans
// with no location constraint from that input, which is always sound (it
// just forgoes a possible optimization/transfer-avoidance opportunity, it
// never mis-plans).
func applyProvenance(instrs []wir.Instr, prov map[int]string) {
	for i := 0; i < len(instrs); i++ {
		in := instrs[i]
		switch in.Op {
		case wir.OpPushConst:
			if i+1 < len(instrs) && instrs[i+1].Op == wir.OpStoreVar {
				storeVar := instrs[i+1].Var
				if in.Const.Ref != "" {
					prov[storeVar] = in.Const.Ref
				} else {
					delete(prov, storeVar)
				}
				i++
			}
		case wir.OpPushVar:
			if i+1 < len(instrs) && instrs[i+1].Op == wir.OpStoreVar {
				storeVar := instrs[i+1].Var
				if name, ok := prov[in.Var]; ok {
					prov[storeVar] = name
				} else {
					delete(prov, storeVar)
				}
				i++
			}
		case wir.OpStoreVar:
			// Reached only when not preceded by a recognized pattern
			// above (e.g. a computed expression's result); the stored
			// value's provenance is unknown.
			delete(prov, in.Var)
		}
	}
}
