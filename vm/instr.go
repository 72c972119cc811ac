package vm

import (
	"fmt"

	"github.com/brane-run/brane/wir"
)

// execInstrs runs a Linear edge's instruction sequence against the current
// frame and value stack (spec.md §4.8: "executes arithmetic/logical
// micro-ops on the value stack. Purely local, cannot fail except
// type-checked-away errors").
func (r *run) execInstrs(instrs []wir.Instr) error {
	for _, in := range instrs {
		switch in.Op {
		case wir.OpPushConst:
			r.push(in.Const)
		case wir.OpPushVar:
			v, err := r.readVar(in.Var)
			if err != nil {
				return err
			}
			r.push(v)
		case wir.OpStoreVar:
			v, err := r.pop()
			if err != nil {
				return err
			}
			r.curFrame().Vars[in.Var] = &v
		case wir.OpDeclareVar:
			r.curFrame().Vars[in.Var] = nil
		case wir.OpPop:
			if _, err := r.pop(); err != nil {
				return err
			}
		case wir.OpDup:
			if len(r.stack) == 0 {
				return ErrStackUnderflow
			}
			r.push(r.stack[len(r.stack)-1])
		case wir.OpBinOp:
			if err := r.execBinOp(in.Arith); err != nil {
				return err
			}
		case wir.OpUnOp:
			if err := r.execUnOp(in.Arith); err != nil {
				return err
			}
		case wir.OpMakeArray:
			if len(r.stack) < in.N {
				return ErrStackUnderflow
			}
			elems := append([]wir.Value(nil), r.stack[len(r.stack)-in.N:]...)
			r.stack = r.stack[:len(r.stack)-in.N]
			var elemTy wir.DataType = wir.AnyTy()
			if len(elems) > 0 {
				elemTy = elems[0].Type
			}
			r.push(wir.Value{Type: wir.Array(elemTy), Payload: elems})
		case wir.OpProject:
			recv, err := r.pop()
			if err != nil {
				return err
			}
			fields, ok := recv.Payload.(map[string]wir.Value)
			if !ok {
				return fmt.Errorf("%w: Project receiver is not a class instance", ErrTypeMismatch)
			}
			field, ok := fields[in.Field]
			if !ok {
				return fmt.Errorf("vm: class instance has no field %q", in.Field)
			}
			r.push(field)
		case wir.OpPushFunc:
			r.push(wir.IntValue(int64(in.Func)))
		case wir.OpPushArgc:
			r.push(wir.IntValue(int64(in.N)))
		case wir.OpNewClass:
			if len(r.stack) < in.N {
				return ErrStackUnderflow
			}
			values := r.stack[len(r.stack)-in.N:]
			r.stack = r.stack[:len(r.stack)-in.N]
			fields := make(map[string]wir.Value, in.N)
			if cls := findClass(r.vm.wf.Sym.Classes, in.Class); cls != nil {
				for i, f := range cls.Fields {
					if i < len(values) {
						fields[f.Name] = values[i]
					}
				}
			}
			r.push(wir.Value{Type: wir.Class(in.Class), Payload: fields})
		case wir.OpIndex:
			idxVal, err := r.pop()
			if err != nil {
				return err
			}
			arrVal, err := r.pop()
			if err != nil {
				return err
			}
			i, ok := idxVal.Payload.(int64)
			if !ok {
				return fmt.Errorf("%w: array index is not Int", ErrTypeMismatch)
			}
			elems, ok := arrVal.Payload.([]wir.Value)
			if !ok {
				return fmt.Errorf("%w: Index operand is not an array", ErrTypeMismatch)
			}
			if i < 0 || int(i) >= len(elems) {
				return fmt.Errorf("vm: array index %d out of range (len=%d)", i, len(elems))
			}
			r.push(elems[i])
		case wir.OpLen:
			arrVal, err := r.pop()
			if err != nil {
				return err
			}
			elems, ok := arrVal.Payload.([]wir.Value)
			if !ok {
				return fmt.Errorf("%w: Len operand is not an array", ErrTypeMismatch)
			}
			r.push(wir.IntValue(int64(len(elems))))
		default:
			return fmt.Errorf("vm: unknown instruction opcode %v", in.Op)
		}
	}
	return nil
}

func (r *run) readVar(def int) (wir.Value, error) {
	vars := r.curFrame().Vars
	if def < 0 || def >= len(vars) || vars[def] == nil {
		return wir.Value{}, fmt.Errorf("vm: variable %d read before assignment", def)
	}
	return *vars[def], nil
}

func findClass(classes []wir.ClassDef, name string) *wir.ClassDef {
	for i := range classes {
		if classes[i].Name == name {
			return &classes[i]
		}
	}
	return nil
}

func (r *run) execBinOp(op wir.Arith) error {
	rhs, err := r.pop()
	if err != nil {
		return err
	}
	lhs, err := r.pop()
	if err != nil {
		return err
	}
	switch op {
	case wir.And:
		lb, lok := lhs.Payload.(bool)
		rb, rok := rhs.Payload.(bool)
		if !lok || !rok {
			return fmt.Errorf("%w: && requires Bool operands", ErrTypeMismatch)
		}
		r.push(wir.BoolValue(lb && rb))
		return nil
	case wir.Or:
		lb, lok := lhs.Payload.(bool)
		rb, rok := rhs.Payload.(bool)
		if !lok || !rok {
			return fmt.Errorf("%w: || requires Bool operands", ErrTypeMismatch)
		}
		r.push(wir.BoolValue(lb || rb))
		return nil
	case wir.Eq, wir.Neq:
		eq := valuesEqual(lhs, rhs)
		if op == wir.Neq {
			eq = !eq
		}
		r.push(wir.BoolValue(eq))
		return nil
	}

	if ls, lok := lhs.Payload.(string); lok {
		rs, rok := rhs.Payload.(string)
		if !rok {
			return fmt.Errorf("%w: mismatched operand types for %s", ErrTypeMismatch, op)
		}
		switch op {
		case wir.Add:
			r.push(wir.StringValue(ls + rs))
			return nil
		case wir.Lt:
			r.push(wir.BoolValue(ls < rs))
			return nil
		case wir.Lte:
			r.push(wir.BoolValue(ls <= rs))
			return nil
		case wir.Gt:
			r.push(wir.BoolValue(ls > rs))
			return nil
		case wir.Gte:
			r.push(wir.BoolValue(ls >= rs))
			return nil
		default:
			return fmt.Errorf("%w: operator %s does not apply to String", ErrTypeMismatch, op)
		}
	}

	lf, lIsReal, lok := numeric(lhs)
	rf, rIsReal, rok := numeric(rhs)
	if !lok || !rok {
		return fmt.Errorf("%w: operator %s requires numeric operands", ErrTypeMismatch, op)
	}
	isReal := lIsReal || rIsReal

	switch op {
	case wir.Add, wir.Sub, wir.Mul, wir.Div, wir.Mod:
		var result float64
		switch op {
		case wir.Add:
			result = lf + rf
		case wir.Sub:
			result = lf - rf
		case wir.Mul:
			result = lf * rf
		case wir.Div:
			if rf == 0 {
				return fmt.Errorf("vm: division by zero")
			}
			result = lf / rf
		case wir.Mod:
			if !isReal {
				li, ri := int64(lf), int64(rf)
				if ri == 0 {
					return fmt.Errorf("vm: modulo by zero")
				}
				r.push(wir.IntValue(li % ri))
				return nil
			}
			return fmt.Errorf("%w: %% requires Int operands", ErrTypeMismatch)
		}
		if isReal {
			r.push(wir.RealValue(result))
		} else {
			r.push(wir.IntValue(int64(result)))
		}
		return nil
	case wir.Lt:
		r.push(wir.BoolValue(lf < rf))
	case wir.Lte:
		r.push(wir.BoolValue(lf <= rf))
	case wir.Gt:
		r.push(wir.BoolValue(lf > rf))
	case wir.Gte:
		r.push(wir.BoolValue(lf >= rf))
	default:
		return fmt.Errorf("vm: unsupported binary operator %s", op)
	}
	return nil
}

func (r *run) execUnOp(op wir.Arith) error {
	v, err := r.pop()
	if err != nil {
		return err
	}
	switch op {
	case wir.Not:
		b, ok := v.Payload.(bool)
		if !ok {
			return fmt.Errorf("%w: ! requires a Bool operand", ErrTypeMismatch)
		}
		r.push(wir.BoolValue(!b))
	case wir.Neg:
		f, isReal, ok := numeric(v)
		if !ok {
			return fmt.Errorf("%w: neg requires a numeric operand", ErrTypeMismatch)
		}
		if isReal {
			r.push(wir.RealValue(-f))
		} else {
			r.push(wir.IntValue(-int64(f)))
		}
	default:
		return fmt.Errorf("vm: unsupported unary operator %s", op)
	}
	return nil
}

func numeric(v wir.Value) (value float64, isReal, ok bool) {
	switch n := v.Payload.(type) {
	case int64:
		return float64(n), false, true
	case float64:
		return n, true, true
	default:
		return 0, false, false
	}
}

// valuesEqual implements == for every comparable payload kind. Array and
// Class payloads (slices/maps) are not Go-comparable; two such values are
// never considered equal rather than panicking on a bare ==.
func valuesEqual(a, b wir.Value) bool {
	if af, _, aok := numeric(a); aok {
		if bf, _, bok := numeric(b); bok {
			return af == bf
		}
		return false
	}
	switch av := a.Payload.(type) {
	case bool:
		bv, ok := b.Payload.(bool)
		return ok && av == bv
	case string:
		bv, ok := b.Payload.(string)
		return ok && av == bv
	case nil:
		return b.Payload == nil
	default:
		return false
	}
}
