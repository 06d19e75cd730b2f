package transport

import "strings"

// OptionKind groups options that replace one another
type OptionKind int

const (
	KindMethod OptionKind = iota + 1
	KindAutoAuth
	KindHeader
)

// Option tweaks how a request is sent. The set of options is closed: Method,
// AutoAuth and Header. Every option value is comparable, so options can be
// removed by value.
type Option interface {
	Kind() OptionKind

	// replaces reports whether setting o evicts the persistent option other
	replaces(other Option) bool
}

// Method selects the HTTP verb and body encoding
type Method string

const (
	MethodGet      Method = "get"
	MethodDelete   Method = "delete"
	MethodPostJSON Method = "postjson"
	MethodPostXML  Method = "postxml"
)

func (Method) Kind() OptionKind { return KindMethod }

func (Method) replaces(other Option) bool {
	_, ok := other.(Method)
	return ok
}

// AutoAuth enables transparent re-registration when the auth cookie is
// missing or expired
type AutoAuth bool

func (AutoAuth) Kind() OptionKind { return KindAutoAuth }

func (AutoAuth) replaces(other Option) bool {
	_, ok := other.(AutoAuth)
	return ok
}

// Header adds a request header. Headers are repeatable, and setting one only
// evicts persistent headers of the same name.
type Header struct {
	Name  string
	Value string
}

// NewHeader returns a Header option. It takes a name/value pair so helpers
// like sonynet.AuthHeader can feed it directly.
func NewHeader(name, value string) Header {
	return Header{Name: name, Value: value}
}

func (Header) Kind() OptionKind { return KindHeader }

func (h Header) replaces(other Option) bool {
	o, ok := other.(Header)
	return ok && strings.EqualFold(o.Name, h.Name)
}
