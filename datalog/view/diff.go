package view

import (
	"fmt"

	"github.com/wbrown/janus-incremental/datalog"
)

// DiffKind classifies one change to a view's result set
type DiffKind int

const (
	// Added marks a tuple present now and absent before
	Added DiffKind = iota + 1
	// Removed marks a tuple absent now and present before
	Removed
	// Modified marks a tuple whose key is stable but whose payload changed.
	// Result tuples have no key/payload split, so evaluation never
	// produces it.
	Modified
)

func (k DiffKind) String() string {
	switch k {
	case Added:
		return "Added"
	case Removed:
		return "Removed"
	case Modified:
		return "Modified"
	}
	return fmt.Sprintf("DiffKind(%d)", int(k))
}

// Diff is one change between two consecutive evaluations
type Diff struct {
	Datum datalog.Record
	Kind  DiffKind
}

func (d Diff) String() string {
	return d.Kind.String() + " " + d.Datum.String()
}
