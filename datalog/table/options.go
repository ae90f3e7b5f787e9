package table

import (
	"github.com/wbrown/janus-incremental/datalog/annotations"
	"github.com/wbrown/janus-incremental/datalog/storage"
)

type options struct {
	name    string
	store   storage.Store
	handler annotations.Handler
}

// Option configures a Table at creation
type Option func(*options)

// WithName names the table in errors, annotations and rendering
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithStore backs the table with a specific store instead of a fresh
// in-memory B-tree
func WithStore(s storage.Store) Option {
	return func(o *options) { o.store = s }
}

// WithHandler receives table/asserted and table/retracted events
func WithHandler(h annotations.Handler) Option {
	return func(o *options) { o.handler = h }
}
