package graph

import (
	"fmt"
	"strings"

	"github.com/gomlx/exceptions"
)

// Statement is one step of a sequential program: a data movement (Copy) or the
// execution of a compute set (Execute).
type Statement interface {
	// StatementString is a one-line description used in program dumps.
	StatementString() string
}

// Copy moves the data viewed by Source into the storage viewed by Target.
// Source and Target must view the same number of elements of the same type;
// they may live on different tiles.
type Copy struct {
	Source, Target *Tensor
}

// NewCopy builds a Copy statement, checking element counts and types match.
func NewCopy(source, target *Tensor) *Copy {
	source.graph.assertSameGraph(target)
	if source.DType() != target.DType() {
		exceptions.Panicf("graph.NewCopy: incompatible element types %s and %s",
			source.DType(), target.DType())
	}
	if source.Size() != target.Size() {
		exceptions.Panicf("graph.NewCopy: incompatible sizes %s and %s",
			source.Shape(), target.Shape())
	}
	return &Copy{Source: source, Target: target}
}

// StatementString implements Statement.
func (c *Copy) StatementString() string {
	return fmt.Sprintf("Copy(%s -> %s)", c.Source.Shape(), c.Target.Shape())
}

// Execute schedules one execution of a compute set. Every vertex of the set must
// already be placed on a tile.
type Execute struct {
	ComputeSet *ComputeSet
}

// NewExecute builds an Execute statement for the compute set.
func NewExecute(cs *ComputeSet) *Execute {
	for _, v := range cs.vertices {
		if v.tile < 0 {
			exceptions.Panicf("graph.NewExecute(%q): vertex %q has no tile mapping", cs.name, v.name)
		}
	}
	return &Execute{ComputeSet: cs}
}

// StatementString implements Statement.
func (e *Execute) StatementString() string {
	return fmt.Sprintf("Execute(%q, %d vertices)", e.ComputeSet.name, len(e.ComputeSet.vertices))
}

// Program is an ordered sequence of statements. Statements execute strictly in
// emission order on the device; parallelism only happens inside one compute set.
type Program struct {
	statements []Statement
}

// NewProgram creates an empty sequential program.
func NewProgram() *Program {
	return &Program{}
}

// Add appends statements to the program, returning the program to allow chaining.
func (p *Program) Add(statements ...Statement) *Program {
	p.statements = append(p.statements, statements...)
	return p
}

// Statements of the program, in execution order.
func (p *Program) Statements() []Statement { return p.statements }

// String dumps the program, one statement per line.
func (p *Program) String() string {
	lines := make([]string, 0, len(p.statements)+1)
	lines = append(lines, fmt.Sprintf("Program (%d statements):", len(p.statements)))
	for _, s := range p.statements {
		lines = append(lines, "\t"+s.StatementString())
	}
	return strings.Join(lines, "\n")
}
