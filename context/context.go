// Package context provides request-scoped values and logging for the
// registry. Values set on a context are addressable by dotted string keys,
// which keeps log field extraction uniform across handlers.
package context

import "context"

// Context is an alias for the standard context, kept so packages that take
// dotted-key values and loggers can name this package as the source of
// both.
type Context = context.Context

// stringMapContext is a simple context implementation that checks a map for
// a key, falling back to a parent if not present.
type stringMapContext struct {
	context.Context
	m map[string]interface{}
}

// WithValues returns a context that proxies lookups through a map. Only
// supports string keys.
func WithValues(ctx context.Context, m map[string]interface{}) context.Context {
	mo := make(map[string]interface{}, len(m)) // make our own copy.
	for k, v := range m {
		mo[k] = v
	}

	return stringMapContext{
		Context: ctx,
		m:       mo,
	}
}

func (smc stringMapContext) Value(key interface{}) interface{} {
	if ks, ok := key.(string); ok {
		if v, ok := smc.m[ks]; ok {
			return v
		}
	}

	return smc.Context.Value(key)
}

// GetStringValue returns a string value from the context, or "" if the key
// is absent or holds a non-string.
func GetStringValue(ctx context.Context, key interface{}) (value string) {
	if valuev, ok := ctx.Value(key).(string); ok {
		value = valuev
	}
	return value
}
