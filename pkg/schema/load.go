package schema

import (
	_ "embed"
	"fmt"
	"sort"

	jsoniter "github.com/json-iterator/go"
)

//go:embed config/clientMethods.json
var defaultMethods []byte

//go:embed config/serverEvents.json
var defaultEvents []byte

// Registry holds the outbound method schemas, the inbound event schemas and
// the shared struct dictionary. It is loaded once and never mutated.
type Registry struct {
	methods    map[string]Method
	events     map[string]*Event
	eventNames map[int]string
	structs    Structs
}

type eventsFile struct {
	Events  map[string]jsoniter.RawMessage `json:"events"`
	Structs Structs                        `json:"structs"`
}

// Default loads the dictionaries embedded in the package.
func Default() (*Registry, error) {
	return Load(defaultMethods, defaultEvents)
}

// MustDefault is Default for package initialization; it panics on a
// malformed embedded dictionary.
func MustDefault() *Registry {
	r, err := Default()
	if err != nil {
		panic(err)
	}
	return r
}

// Load parses a method dictionary ({method: {param: node}}) and an event
// dictionary ({"events": {name: {"id": n, ...node}}, "structs": {...}}).
func Load(methodsJSON, eventsJSON []byte) (*Registry, error) {
	r := &Registry{
		methods:    make(map[string]Method),
		events:     make(map[string]*Event),
		eventNames: make(map[int]string),
	}

	if err := jsoniter.Unmarshal(methodsJSON, &r.methods); err != nil {
		return nil, &ConfigError{Source: "methods", Reason: err.Error()}
	}

	var ef eventsFile
	if err := jsoniter.Unmarshal(eventsJSON, &ef); err != nil {
		return nil, &ConfigError{Source: "events", Reason: err.Error()}
	}
	r.structs = ef.Structs
	if r.structs == nil {
		r.structs = Structs{}
	}

	for _, name := range sortedKeys(ef.Events) {
		raw := ef.Events[name]
		var head struct {
			ID *int `json:"id"`
		}
		if err := jsoniter.Unmarshal(raw, &head); err != nil {
			return nil, &ConfigError{Source: "events", Entry: name, Reason: err.Error()}
		}
		if head.ID == nil {
			return nil, &ConfigError{Source: "events", Entry: name, Reason: "missing id"}
		}
		if other, dup := r.eventNames[*head.ID]; dup {
			return nil, &ConfigError{Source: "events", Entry: name, Reason: fmt.Sprintf("id %d already used by %q", *head.ID, other)}
		}
		node := new(Node)
		if err := jsoniter.Unmarshal(raw, node); err != nil {
			return nil, &ConfigError{Source: "events", Entry: name, Reason: err.Error()}
		}
		r.events[name] = &Event{Name: name, ID: *head.ID, Node: node}
		r.eventNames[*head.ID] = name
	}

	for name, node := range r.structs {
		if err := r.check(node); err != nil {
			return nil, &ConfigError{Source: "structs", Entry: name, Reason: err.Error()}
		}
	}
	for name, ev := range r.events {
		if err := r.check(ev.Node); err != nil {
			return nil, &ConfigError{Source: "events", Entry: name, Reason: err.Error()}
		}
	}
	for method, m := range r.methods {
		for key, node := range m {
			if err := r.check(node); err != nil {
				return nil, &ConfigError{Source: "methods", Entry: method + "." + key, Reason: err.Error()}
			}
		}
	}
	return r, nil
}

// check rejects structural defects. Unknown type tags are left for the
// validator and decoder to report when they are reached.
func (r *Registry) check(n *Node) error {
	if n == nil {
		return fmt.Errorf("null node")
	}
	if n.Type == "" && n.Kind == KindUnknown {
		return fmt.Errorf("missing type")
	}
	if n.Kind == KindStruct {
		if _, ok := r.structs[n.Struct]; !ok {
			return fmt.Errorf("reference to undefined struct %q", n.Struct)
		}
	}
	for i, f := range n.Fields {
		if f == nil || f.Name == "" {
			return fmt.Errorf("tuple field %d has no name", i)
		}
		if err := r.check(f); err != nil {
			return fmt.Errorf("field %s: %w", f.Name, err)
		}
	}
	if n.Elements != nil {
		if err := r.check(n.Elements); err != nil {
			return fmt.Errorf("elements: %w", err)
		}
	}
	for key, child := range n.Keys {
		if err := r.check(child); err != nil {
			return fmt.Errorf("key %s: %w", key, err)
		}
	}
	return nil
}

func (r *Registry) Method(name string) (Method, bool) {
	m, ok := r.methods[name]
	return m, ok
}

// Methods returns the method names in sorted order.
func (r *Registry) Methods() []string {
	return sortedKeys(r.methods)
}

func (r *Registry) Event(name string) (*Event, bool) {
	ev, ok := r.events[name]
	return ev, ok
}

// EventName resolves a wire event id.
func (r *Registry) EventName(id int) (string, bool) {
	name, ok := r.eventNames[id]
	return name, ok
}

// Events returns the event names ordered by id.
func (r *Registry) Events() []string {
	names := make([]string, 0, len(r.events))
	for name := range r.events {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return r.events[names[i]].ID < r.events[names[j]].ID })
	return names
}

func (r *Registry) Structs() Structs {
	return r.structs
}

// Validate checks params against the named method's schema.
func (r *Registry) Validate(method string, params map[string]any) error {
	m, ok := r.methods[method]
	if !ok {
		return &ValidationError{Key: method, Reason: "no schema declared", Err: ErrUnknownMethod}
	}
	return Validate(m, params)
}
