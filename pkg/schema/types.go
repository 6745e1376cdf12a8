package schema

import (
	jsoniter "github.com/json-iterator/go"
)

// Kind is the type tag of a schema node.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindUint
	KindInt
	KindFloat
	KindUintString
	KindIntString
	KindFloatString
	KindBool
	KindBinBool
	KindString
	KindHexString
	KindArray
	KindObject
	KindStruct
)

var kindNames = map[Kind]string{
	KindUint:        "uint",
	KindInt:         "int",
	KindFloat:       "float",
	KindUintString:  "uintString",
	KindIntString:   "intString",
	KindFloatString: "floatString",
	KindBool:        "bool",
	KindBinBool:     "binbool",
	KindString:      "string",
	KindHexString:   "hexString",
	KindArray:       "array",
	KindObject:      "object",
	KindStruct:      "struct",
}

var kindByName = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames))
	for k, name := range kindNames {
		m[name] = k
	}
	return m
}()

// ParseKind maps a wire type tag to its Kind. Unrecognized tags map to KindUnknown.
func ParseKind(tag string) Kind {
	return kindByName[tag]
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Node describes the shape and constraints of one wire field or structure.
// Nodes are immutable once loaded and shared by pointer.
type Node struct {
	Kind Kind
	// Type is the raw tag as declared. It only differs from Kind.String()
	// when the tag is not recognized.
	Type     string
	Name     string
	Optional bool

	// nil means the constraint is not declared
	Length    *int
	MinLength *int
	MaxLength *int

	Elements *Node
	Fields   []*Node
	Keys     map[string]*Node
	Struct   string
}

type nodeJSON struct {
	Type      string           `json:"type"`
	Name      string           `json:"name,omitempty"`
	Optional  bool             `json:"optional,omitempty"`
	Length    *int             `json:"length,omitempty"`
	MinLength *int             `json:"minLength,omitempty"`
	MaxLength *int             `json:"maxLength,omitempty"`
	Elements  *Node            `json:"elements,omitempty"`
	Fields    []*Node          `json:"fields,omitempty"`
	Keys      map[string]*Node `json:"keys,omitempty"`
	Struct    string           `json:"struct,omitempty"`
}

func (n *Node) UnmarshalJSON(data []byte) error {
	var raw nodeJSON
	if err := jsoniter.Unmarshal(data, &raw); err != nil {
		return err
	}
	*n = Node{
		Kind:      ParseKind(raw.Type),
		Type:      raw.Type,
		Name:      raw.Name,
		Optional:  raw.Optional,
		Length:    raw.Length,
		MinLength: raw.MinLength,
		MaxLength: raw.MaxLength,
		Elements:  raw.Elements,
		Fields:    raw.Fields,
		Keys:      raw.Keys,
		Struct:    raw.Struct,
	}
	return nil
}

func (n *Node) MarshalJSON() ([]byte, error) {
	return jsoniter.Marshal(nodeJSON{
		Type:      n.tag(),
		Name:      n.Name,
		Optional:  n.Optional,
		Length:    n.Length,
		MinLength: n.MinLength,
		MaxLength: n.MaxLength,
		Elements:  n.Elements,
		Fields:    n.Fields,
		Keys:      n.Keys,
		Struct:    n.Struct,
	})
}

// tag returns the declared type tag, falling back to the kind name for
// nodes built in code.
func (n *Node) tag() string {
	if n.Type != "" {
		return n.Type
	}
	return n.Kind.String()
}

// Method maps parameter names to their schema. It is the complete set of
// parameters a remote method accepts.
type Method map[string]*Node

// Structs is the dictionary of named, reusable nodes referenced by KindStruct.
type Structs map[string]*Node

// Event is an inbound event: its numeric wire id and payload schema.
type Event struct {
	Name string
	ID   int
	Node *Node
}

// Reserved outbound keys injected by the dispatch layer.
const (
	MethodKey    = "c"
	RequestIDKey = "rid"
)

// Int returns a pointer to v, for declaring length constraints in code.
func Int(v int) *int { return &v }
