package back

import (
	"github.com/managarm/lewis/compiler/ir"
	"tlog.app/go/errors"
)

// constructionState is pass 2's scratch space: where every operand and
// result sits on the program counter axis, keyed by the pointer
// identity of the slot (*ir.ValueUse) or value (*ir.Value) it belongs
// to, so lookups are exact regardless of how many instructions a value
// threads through.
type constructionState struct {
	usePC    map[*ir.ValueUse]ProgramCounter
	originPC map[*ir.Value]ProgramCounter

	valueCompound map[*ir.Value]*LiveCompound
}

// buildCompounds is pass 2: given a function whose pseudo-moves have
// already been inserted by insertPseudoMoves, it produces one
// LiveCompound per independent register-allocation unit - almost
// always one per surviving Value, except DataFlowPhis, whose compound
// also absorbs the interval contributed by each incoming edge's
// predecessor copy, per spec §4.2.3.
func buildCompounds(fn *ir.Function, st *buildState) ([]*LiveCompound, error) {
	cs := &constructionState{
		usePC:         map[*ir.ValueUse]ProgramCounter{},
		originPC:      map[*ir.Value]ProgramCounter{},
		valueCompound: map[*ir.Value]*LiveCompound{},
	}

	var generic []*ir.Value

	var dataFlowPhis []*ir.PhiNode

	for _, block := range fn.Blocks {
		for _, phi := range block.Phis {
			v := phi.Result.Value()
			if v == nil {
				return nil, errors.New("block %v: phi with unbound result", block.Name)
			}

			cs.originPC[v] = BeforeBlockPC(block)

			switch phi.Kind {
			case ir.ArgumentPhi:
				generic = append(generic, v)
			case ir.DataFlowPhi:
				dataFlowPhis = append(dataFlowPhis, phi)
			}
		}

		for _, inst := range block.Instructions() {
			for _, u := range inst.Uses() {
				cs.usePC[u] = AtInstPC(block, inst)
			}

			for _, res := range inst.Results() {
				v := res.Value()
				if v == nil {
					continue
				}

				if _, isEdgeCopy := st.edgeCopy[v]; isEdgeCopy {
					continue
				}

				cs.originPC[v] = AfterInstPC(block, inst)
				generic = append(generic, v)
			}
		}

		if block.Branch != nil {
			for _, u := range block.Branch.Uses() {
				cs.usePC[u] = AfterBlockPC(block)
			}
		}
	}

	compounds := make([]*LiveCompound, 0, len(generic)+len(dataFlowPhis)+len(st.clobbers))

	for _, v := range generic {
		c, err := cs.buildSingleton(v, st)
		if err != nil {
			return nil, err
		}

		compounds = append(compounds, c)
	}

	for _, phi := range dataFlowPhis {
		c, err := cs.buildPhiCompound(phi, st)
		if err != nil {
			return nil, errors.Wrap(err, "phi in %v", phi.Block.Name)
		}

		compounds = append(compounds, c)
	}

	for _, pair := range st.penalties {
		a, b := cs.valueCompound[pair[0]], cs.valueCompound[pair[1]]
		if a != nil && b != nil && a != b {
			AddPenalty(a, b)
		}
	}

	compounds = append(compounds, st.clobbers...)

	return compounds, nil
}

// finalPC scans v's remaining use-list for the latest program point it
// is read from. Uses that originate from a DataFlowEdge's Alias are
// never recorded in usePC (they are not reached by the Instruction- or
// Branch-rooted walk above), so they are excluded automatically, per
// spec §4.2.3's note that their lifetime comes from the end-of-block
// pseudo-move instead.
func (cs *constructionState) finalPC(v *ir.Value, origin ProgramCounter) ProgramCounter {
	final := origin

	for _, u := range v.Uses() {
		pc, ok := cs.usePC[u]
		if !ok {
			continue
		}

		if Less(final, pc) {
			final = pc
		}
	}

	return final
}

func (cs *constructionState) buildSingleton(v *ir.Value, st *buildState) (*LiveCompound, error) {
	origin, ok := cs.originPC[v]
	if !ok {
		return nil, errors.New("value has no recorded origin")
	}

	mask, pinned := st.pinned[v]
	if !pinned {
		mask = gprMask()
	}

	c := NewCompound(mask)
	c.AddInterval(&LiveInterval{
		Origin:      origin,
		Final:       cs.finalPC(v, origin),
		Value:       v,
		Equivalence: v,
	})

	cs.valueCompound[v] = c

	return c, nil
}

// buildPhiCompound implements the cross-block compound construction
// for a merge point: the phi's own interval, plus one interval per
// incoming edge contributed by the predecessor's outgoing pseudo-move,
// all sharing a single compound so no move is needed when every
// contributor already lands in the chosen register.
func (cs *constructionState) buildPhiCompound(phi *ir.PhiNode, st *buildState) (*LiveCompound, error) {
	v := phi.Result.Value()
	if v == nil {
		return nil, errors.New("unbound result")
	}

	origin := cs.originPC[v]

	c := NewCompound(gprMask())
	c.AddInterval(&LiveInterval{
		Origin:      origin,
		Final:       cs.finalPC(v, origin),
		Value:       v,
		Equivalence: v,
	})

	cs.valueCompound[v] = c

	for _, e := range phi.Sink.Edges() {
		copy := e.Alias.Value()

		info, ok := st.edgeCopy[copy]
		if !ok {
			return nil, errors.New("incoming edge from %v has no recorded predecessor copy", e.Source.Name)
		}

		c.AddInterval(&LiveInterval{
			Origin:      AfterInstPC(info.block, info.pseudo),
			Final:       AfterBlockPC(info.block),
			Value:       copy,
			Equivalence: v,
		})

		cs.valueCompound[copy] = c
	}

	return c, nil
}
