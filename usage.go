package vkframe

// Usage is a typed property bag. Linked usages form a chain; each link is
// decoded as a nested section named after the link.
type Usage struct {
	Name         string
	String_props map[string]string
	Int_props    map[string]int
	Bool_props   map[string]bool
	Float_props  map[string]float32
	Linked_usage *Usage
}

func NewUsage(name string, default_size uint) *Usage {
	var use Usage
	use.Name = name
	use.String_props = make(map[string]string, default_size)
	use.Int_props = make(map[string]int, default_size)
	use.Bool_props = make(map[string]bool, default_size)
	use.Float_props = make(map[string]float32, default_size)
	return &use
}

func (u *Usage) HasNext() bool {
	return u.Linked_usage != nil
}

// Link appends next to the end of the chain and returns u.
func (u *Usage) Link(next *Usage) *Usage {
	tail := u
	for tail.HasNext() {
		tail = tail.Linked_usage
	}
	tail.Linked_usage = next
	return u
}

// Map flattens the chain into a decoder input. The head's properties sit at
// the top level and every linked usage becomes a section under its Name.
func (u *Usage) Map() map[string]interface{} {
	out := u.props()
	for next := u.Linked_usage; next != nil; next = next.Linked_usage {
		out[next.Name] = next.props()
	}
	return out
}

func (u *Usage) props() map[string]interface{} {
	out := make(map[string]interface{}, len(u.String_props)+len(u.Int_props)+len(u.Bool_props)+len(u.Float_props))
	for k, v := range u.String_props {
		out[k] = v
	}
	for k, v := range u.Int_props {
		out[k] = v
	}
	for k, v := range u.Bool_props {
		out[k] = v
	}
	for k, v := range u.Float_props {
		out[k] = v
	}
	return out
}
