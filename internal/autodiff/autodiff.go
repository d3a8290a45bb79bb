// Package autodiff implements scalar reverse-mode automatic differentiation.
//
// Every operation on a Value records its inputs and the local derivative of the
// output with respect to each input. Backward walks the recorded graph in reverse
// topological order and accumulates gradients with the chain rule.
//
// Usage:
//
//	x := autodiff.New(2.0)
//	y := autodiff.Mul(x, x) // y = x²
//	autodiff.Backward(y)
//	fmt.Println(x.Grad) // dy/dx = 2x = 4.0
//
// Values are cheap to build but the graph holds every intermediate result, so a
// graph should be dropped once Backward has run.
package autodiff

import "math"

// Value is a scalar node of the computation graph.
type Value struct {
	Data float64
	Grad float64

	children   []*Value
	localGrads []float64
}

// New creates a leaf value.
func New(data float64) *Value {
	return &Value{Data: data}
}

func node(data float64, children []*Value, localGrads []float64) *Value {
	return &Value{Data: data, children: children, localGrads: localGrads}
}

// Add returns a + b.
func Add(a, b *Value) *Value {
	return node(a.Data+b.Data, []*Value{a, b}, []float64{1, 1})
}

// Sub returns a - b.
func Sub(a, b *Value) *Value {
	return node(a.Data-b.Data, []*Value{a, b}, []float64{1, -1})
}

// Mul returns a * b.
func Mul(a, b *Value) *Value {
	return node(a.Data*b.Data, []*Value{a, b}, []float64{b.Data, a.Data})
}

// Scale returns a * c for a constant c.
func Scale(a *Value, c float64) *Value {
	return node(a.Data*c, []*Value{a}, []float64{c})
}

// Shift returns a + c for a constant c.
func Shift(a *Value, c float64) *Value {
	return node(a.Data+c, []*Value{a}, []float64{1})
}

// Neg returns -a.
func Neg(a *Value) *Value {
	return Scale(a, -1)
}

// Pow returns a^p for a constant exponent p.
func Pow(a *Value, p float64) *Value {
	return node(math.Pow(a.Data, p), []*Value{a}, []float64{p * math.Pow(a.Data, p-1)})
}

// Div returns a / b.
func Div(a, b *Value) *Value {
	return Mul(a, Pow(b, -1))
}

// Log returns the natural logarithm of a.
func Log(a *Value) *Value {
	return node(math.Log(a.Data), []*Value{a}, []float64{1 / a.Data})
}

// Exp returns e^a.
func Exp(a *Value) *Value {
	e := math.Exp(a.Data)
	return node(e, []*Value{a}, []float64{e})
}

// ReLU returns max(0, a).
func ReLU(a *Value) *Value {
	if a.Data > 0 {
		return node(a.Data, []*Value{a}, []float64{1})
	}
	return node(0, []*Value{a}, []float64{0})
}

// Sum adds all values in one node, which keeps the graph shallow compared with
// a chain of Add calls.
func Sum(values []*Value) *Value {
	total := 0.0
	grads := make([]float64, len(values))
	for i, v := range values {
		total += v.Data
		grads[i] = 1
	}
	children := append([]*Value(nil), values...)
	return node(total, children, grads)
}

// Dot returns the inner product of a and b, which must have the same length.
func Dot(a, b []*Value) *Value {
	total := 0.0
	children := make([]*Value, 0, 2*len(a))
	grads := make([]float64, 0, 2*len(a))
	for i := range a {
		total += a[i].Data * b[i].Data
		children = append(children, a[i], b[i])
		grads = append(grads, b[i].Data, a[i].Data)
	}
	return node(total, children, grads)
}

// Backward computes d(out)/d(v) for every v reachable from out.
//
// Gradients of all reachable nodes are reset first, so calling Backward twice on
// the same graph gives the same result.
func Backward(out *Value) {
	topo := topoSort(out)
	for _, v := range topo {
		v.Grad = 0
	}
	out.Grad = 1
	for i := len(topo) - 1; i >= 0; i-- {
		v := topo[i]
		for j, child := range v.children {
			child.Grad += v.localGrads[j] * v.Grad
		}
	}
}

// topoSort returns the nodes reachable from root with every node placed after
// all of its children. The walk is iterative: deep graphs must not overflow the stack.
func topoSort(root *Value) []*Value {
	type frame struct {
		v    *Value
		next int
	}
	var topo []*Value
	visited := map[*Value]bool{root: true}
	stack := []frame{{v: root}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next < len(top.v.children) {
			child := top.v.children[top.next]
			top.next++
			if !visited[child] {
				visited[child] = true
				stack = append(stack, frame{v: child})
			}
			continue
		}
		topo = append(topo, top.v)
		stack = stack[:len(stack)-1]
	}
	return topo
}
