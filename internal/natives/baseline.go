package natives

import (
	"fmt"
	"math"
	"os"

	"jvmgo/internal/env"
)

// RegisterBaseline installs the native set named in spec.md §6, plus the
// supplemental entries ferrugo's native_functions.rs carries that the
// distilled spec omitted (SPEC_FULL.md §4.G): Object.<init>, Math.max/min/
// floor/ceil, and StringBuilder.<init>.
func RegisterBaseline(r *Registry) {
	registerPrintStream(r)
	registerString(r)
	registerStringBuilder(r)
	registerMath(r)
	registerObject(r)
}

func registerObject(r *Registry) {
	r.Register("java/lang/Object", "<init>", "()V", func(e *env.Env, args []uint64) (uint64, error) {
		return 0, nil
	})
}

func registerPrintStream(r *Registry) {
	print := func(e *env.Env, s string, newline bool) (uint64, error) {
		if newline {
			fmt.Fprintln(os.Stdout, s)
		} else {
			fmt.Fprint(os.Stdout, s)
		}
		return 0, nil
	}

	r.Register("java/io/PrintStream", "println", "(I)V", func(e *env.Env, args []uint64) (uint64, error) {
		return print(e, fmt.Sprintf("%d", int32(args[1])), true)
	})
	r.Register("java/io/PrintStream", "println", "(D)V", func(e *env.Env, args []uint64) (uint64, error) {
		return print(e, formatDouble(math.Float64frombits(args[1])), true)
	})
	r.Register("java/io/PrintStream", "println", "(Z)V", func(e *env.Env, args []uint64) (uint64, error) {
		return print(e, fmt.Sprintf("%t", args[1] != 0), true)
	})
	r.Register("java/io/PrintStream", "println", "(Ljava/lang/String;)V", func(e *env.Env, args []uint64) (uint64, error) {
		s, err := stringFromRef(e, args[1])
		if err != nil {
			return 0, err
		}
		return print(e, s, true)
	})
	r.Register("java/io/PrintStream", "print", "(Ljava/lang/String;)V", func(e *env.Env, args []uint64) (uint64, error) {
		s, err := stringFromRef(e, args[1])
		if err != nil {
			return 0, err
		}
		return print(e, s, false)
	})
}

func registerString(r *Registry) {
	r.Register("java/lang/String", "valueOf", "(I)Ljava/lang/String;", func(e *env.Env, args []uint64) (uint64, error) {
		return e.Heap.NewString(fmt.Sprintf("%d", int32(args[0])), e.Area)
	})
}

func registerStringBuilder(r *Registry) {
	r.Register("java/lang/StringBuilder", "<init>", "()V", func(e *env.Env, args []uint64) (uint64, error) {
		obj, ok := e.Heap.GetObject(args[0])
		if !ok {
			return 0, fmt.Errorf("natives: StringBuilder.<init> receiver is not an object")
		}
		ref, err := e.Heap.NewString("", e.Area)
		if err != nil {
			return 0, err
		}
		obj.Slots[0] = ref // slot 0: the accumulated-text backing String
		return 0, nil
	})
	r.Register("java/lang/StringBuilder", "append", "(I)Ljava/lang/StringBuilder;", func(e *env.Env, args []uint64) (uint64, error) {
		return appendToBuilder(e, args[0], fmt.Sprintf("%d", int32(args[1])))
	})
	r.Register("java/lang/StringBuilder", "append", "(Ljava/lang/String;)Ljava/lang/StringBuilder;", func(e *env.Env, args []uint64) (uint64, error) {
		s, err := stringFromRef(e, args[1])
		if err != nil {
			return 0, err
		}
		return appendToBuilder(e, args[0], s)
	})
	r.Register("java/lang/StringBuilder", "toString", "()Ljava/lang/String;", func(e *env.Env, args []uint64) (uint64, error) {
		obj, ok := e.Heap.GetObject(args[0])
		if !ok {
			return 0, fmt.Errorf("natives: StringBuilder.toString receiver is not an object")
		}
		return obj.Slots[0], nil
	})
}

func appendToBuilder(e *env.Env, builderRef uint64, text string) (uint64, error) {
	obj, ok := e.Heap.GetObject(builderRef)
	if !ok {
		return 0, fmt.Errorf("natives: StringBuilder.append receiver is not an object")
	}
	existing, err := stringFromRef(e, obj.Slots[0])
	if err != nil {
		return 0, err
	}
	ref, err := e.Heap.NewString(existing+text, e.Area)
	if err != nil {
		return 0, err
	}
	obj.Slots[0] = ref
	return builderRef, nil
}

func registerMath(r *Registry) {
	unary := func(name string, fn func(float64) float64) {
		r.Register("java/lang/Math", name, "(D)D", func(e *env.Env, args []uint64) (uint64, error) {
			v := math.Float64frombits(args[0])
			return math.Float64bits(fn(v)), nil
		})
	}
	unary("sin", math.Sin)
	unary("cos", math.Cos)
	unary("tan", math.Tan)
	unary("sqrt", math.Sqrt)
	unary("abs", math.Abs)
	unary("floor", math.Floor)
	unary("ceil", math.Ceil)

	r.Register("java/lang/Math", "pow", "(DD)D", func(e *env.Env, args []uint64) (uint64, error) {
		base := math.Float64frombits(args[0])
		exp := math.Float64frombits(args[1])
		return math.Float64bits(math.Pow(base, exp)), nil
	})
	r.Register("java/lang/Math", "random", "()D", func(e *env.Env, args []uint64) (uint64, error) {
		return math.Float64bits(pseudoRandom()), nil
	})
	r.Register("java/lang/Math", "max", "(II)I", func(e *env.Env, args []uint64) (uint64, error) {
		a, b := int32(args[0]), int32(args[1])
		if a > b {
			return uint64(uint32(a)), nil
		}
		return uint64(uint32(b)), nil
	})
	r.Register("java/lang/Math", "min", "(II)I", func(e *env.Env, args []uint64) (uint64, error) {
		a, b := int32(args[0]), int32(args[1])
		if a < b {
			return uint64(uint32(a)), nil
		}
		return uint64(uint32(b)), nil
	})
}

func stringFromRef(e *env.Env, ref uint64) (string, error) {
	obj, ok := e.Heap.GetObject(ref)
	if !ok {
		return "", fmt.Errorf("natives: expected a java/lang/String object")
	}
	arr, ok := e.Heap.GetArray(obj.Slots[0])
	if !ok {
		return "", fmt.Errorf("natives: String's backing array is missing")
	}
	return arr.StringValue(), nil
}

func formatDouble(v float64) string {
	if v == math.Trunc(v) && !math.IsInf(v, 0) {
		return fmt.Sprintf("%.1f", v)
	}
	return fmt.Sprintf("%g", v)
}

var randState uint64 = 0x2545F4914F6CDD1D

// pseudoRandom is a minimal, dependency-free PRNG standing in for
// java.lang.Math.random's contract (a pseudo-random double in [0,1)); the
// core makes no guarantee of matching the JDK's exact algorithm.
func pseudoRandom() float64 {
	randState ^= randState << 13
	randState ^= randState >> 7
	randState ^= randState << 17
	return float64(randState>>11) / (1 << 53)
}
