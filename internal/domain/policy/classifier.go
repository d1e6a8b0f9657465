package policy

import "strings"

// ReservedPrefix marks internal sandbox metadata keys on the virtual global
// object. Reserved keys are always scoped.
const ReservedPrefix = "__SANDVEIL_"

// Treatment is the classification outcome for a property key.
type Treatment int

const (
	// TreatScoped keeps reads, writes and containment checks on the virtual
	// global object only. It is the zero value, so an uninitialized
	// classification defaults to the safest routing.
	TreatScoped Treatment = iota

	// TreatSetterForced sends writes directly to the real global object;
	// reads behave as TreatDefault.
	TreatSetterForced

	// TreatDefault reads from the virtual object first with fall-through to
	// the real global object; write mirroring is decided separately via
	// Escapes/StaticEscapes.
	TreatDefault
)

// String returns the string representation of a Treatment.
func (t Treatment) String() string {
	switch t {
	case TreatScoped:
		return "scoped"
	case TreatSetterForced:
		return "setter-forced"
	case TreatDefault:
		return "default"
	default:
		return "unknown"
	}
}

// Known-unsafe shared libraries that leak state between applications when
// they share one global object.
var defaultScopedKeys = []string{
	"webpackJsonp",
	"webpackHotUpdate",
	"Vue",
	"jQuery",
	"$",
}

// Shared runtime helpers that must stay singletons: mirrored to the real
// global object only while it does not define them itself.
var defaultStaticEscapeKeys = []string{
	"System",
	"__cjsWrapper",
}

// Keys whose writes always target the real global object directly.
var defaultEscapeSetterKeys = []string{
	"location",
}

// Rule is one plugin contribution of extra scoped/escaped keys. Malformed
// entries (empty key strings, nil lists) degrade to no contribution.
type Rule struct {
	ScopeProperties  []string
	EscapeProperties []string
}

// Classifier decides per-key routing for one sandbox. Immutable after New.
type Classifier struct {
	scoped       map[string]struct{}
	escape       map[string]struct{}
	staticEscape map[string]struct{}
	setterForced map[string]struct{}
}

// New builds a classifier from the fixed seed sets plus plugin rules.
func New(rules ...Rule) *Classifier {
	c := &Classifier{
		scoped:       make(map[string]struct{}, len(defaultScopedKeys)),
		escape:       make(map[string]struct{}),
		staticEscape: make(map[string]struct{}, len(defaultStaticEscapeKeys)),
		setterForced: make(map[string]struct{}, len(defaultEscapeSetterKeys)),
	}

	for _, k := range defaultScopedKeys {
		c.scoped[k] = struct{}{}
	}
	for _, k := range defaultStaticEscapeKeys {
		c.staticEscape[k] = struct{}{}
	}
	for _, k := range defaultEscapeSetterKeys {
		c.setterForced[k] = struct{}{}
	}

	for _, rule := range rules {
		for _, k := range rule.ScopeProperties {
			if k != "" {
				c.scoped[k] = struct{}{}
			}
		}
		for _, k := range rule.EscapeProperties {
			if k != "" {
				c.escape[k] = struct{}{}
			}
		}
	}

	return c
}

// IsReserved reports whether key is internal sandbox metadata.
func IsReserved(key string) bool {
	return strings.HasPrefix(key, ReservedPrefix)
}

// Scoped reports whether key must never touch the real global object.
func (c *Classifier) Scoped(key string) bool {
	if IsReserved(key) {
		return true
	}
	_, ok := c.scoped[key]
	return ok
}

// Classify returns the treatment for key, evaluated in fixed precedence:
// scoped (incl. reserved) > setter-forced > default.
func (c *Classifier) Classify(key string) Treatment {
	if c.Scoped(key) {
		return TreatScoped
	}
	if _, ok := c.setterForced[key]; ok {
		return TreatSetterForced
	}
	return TreatDefault
}

// Escapes reports whether writes to key must always mirror to the real
// global object. Scoped wins when a key appears in both lists.
func (c *Classifier) Escapes(key string) bool {
	if c.Scoped(key) {
		return false
	}
	_, ok := c.escape[key]
	return ok
}

// StaticEscapes reports whether writes to key mirror to the real global
// object when it does not already define the key. Scoped wins here too.
func (c *Classifier) StaticEscapes(key string) bool {
	if c.Scoped(key) {
		return false
	}
	_, ok := c.staticEscape[key]
	return ok
}
