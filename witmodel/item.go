package witmodel

// WorldItem is an import or export of a world. The set of implementations
// is closed: *InterfaceItem, *FunctionItem and *TypeItem. Consumers dispatch
// with Accept so that every variant must be handled.
type WorldItem interface {
	Accept(key string, v ItemVisitor) error
	isWorldItem()
}

// ItemVisitor handles each WorldItem variant.
type ItemVisitor interface {
	VisitInterface(key string, item *InterfaceItem) error
	VisitFunction(key string, item *FunctionItem) error
	VisitType(key string, item *TypeItem) error
}

// InterfaceItem is an interface imported or exported by a world.
type InterfaceItem struct {
	Interface *Interface
}

func (it *InterfaceItem) Accept(key string, v ItemVisitor) error { return v.VisitInterface(key, it) }
func (*InterfaceItem) isWorldItem() {}

// FunctionItem is a function imported or exported directly by a world.
type FunctionItem struct {
	Function *Function
}

func (it *FunctionItem) Accept(key string, v ItemVisitor) error { return v.VisitFunction(key, it) }
func (*FunctionItem) isWorldItem() {}

// TypeItem is a type brought into a world's scope.
type TypeItem struct {
	Type TypeID
}

func (it *TypeItem) Accept(key string, v ItemVisitor) error { return v.VisitType(key, it) }
func (*TypeItem) isWorldItem() {}

// WorldEntry is one keyed world import or export.
type WorldEntry struct {
	Key  string
	Item WorldItem
}

// Walk visits entries in order and stops at the first error.
func Walk(entries []WorldEntry, v ItemVisitor) error {
	for _, e := range entries {
		if err := e.Item.Accept(e.Key, v); err != nil {
			return err
		}
	}
	return nil
}
