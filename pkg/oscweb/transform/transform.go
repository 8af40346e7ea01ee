// Package transform provides filters and rewrites applied to bridge documents
// before they are broadcast to WebSocket clients or forwarded to the OSC peer.
package transform

import (
	"strings"

	"github.com/amir-yaghoubi/mqttpattern"
	"github.com/tsarna/oscweb/pkg/oscweb/osc"
)

// DocumentTransformFunc transforms a document on its way through the bridge.
//
// Returns:
//   - *osc.Document: The transformed document (nil to drop it)
//   - bool: Whether to continue calling subsequent transform functions (ignored if the document is nil)
//
// Transform functions must not modify the document they receive; they return
// a new one instead.
type DocumentTransformFunc func(doc *osc.Document) (*osc.Document, bool)

// Apply runs transforms in order and returns the resulting document, or nil
// if one of them dropped it.
func Apply(transforms []DocumentTransformFunc, doc *osc.Document) *osc.Document {
	current := doc
	for _, transform := range transforms {
		var cont bool
		current, cont = transform(current)
		if current == nil || !cont {
			break
		}
	}
	return current
}

// addressTopic maps an OSC address onto the slash-separated topic form used by
// MQTT patterns: "/synth/freq" becomes "synth/freq".
func addressTopic(address string) string {
	return strings.TrimPrefix(address, "/")
}

func patternTopic(pattern string) string {
	return strings.TrimPrefix(pattern, "/")
}

// MatchesAddress reports whether an OSC address matches an MQTT-style pattern.
// "+" matches one address part and a trailing "#" matches any remainder. A
// leading "/" on either side is ignored.
//
// Pattern examples:
//   - "/synth/+" matches "/synth/freq" and "/synth/gain"
//   - "/debug/#" matches everything below "/debug"
//   - "/+/on" matches "/led/on" and "/relay/on"
func MatchesAddress(pattern, address string) bool {
	return mqttpattern.Matches(patternTopic(pattern), addressTopic(address))
}

// DropAddressPattern returns a transform that drops documents whose address
// matches any of the given patterns.
func DropAddressPattern(patterns ...string) DocumentTransformFunc {
	return func(doc *osc.Document) (*osc.Document, bool) {
		for _, pattern := range patterns {
			if MatchesAddress(pattern, doc.Address) {
				return nil, false
			}
		}
		return doc, true
	}
}

// AllowAddressPattern returns a transform that drops every document whose
// address matches none of the given patterns.
func AllowAddressPattern(patterns ...string) DocumentTransformFunc {
	return func(doc *osc.Document) (*osc.Document, bool) {
		for _, pattern := range patterns {
			if MatchesAddress(pattern, doc.Address) {
				return doc, true
			}
		}
		return nil, false
	}
}

// DropAddressPrefix returns a transform that drops documents whose address
// starts with prefix. You probably want the prefix to end with a slash.
func DropAddressPrefix(prefix string) DocumentTransformFunc {
	return func(doc *osc.Document) (*osc.Document, bool) {
		if strings.HasPrefix(doc.Address, prefix) {
			return nil, false
		}
		return doc, true
	}
}

// AddAddressPrefix returns a transform that prepends prefix to the address.
//
// Example:
//
//	AddAddressPrefix("/browser") // "/led/on" becomes "/browser/led/on"
func AddAddressPrefix(prefix string) DocumentTransformFunc {
	prefix = strings.TrimSuffix(prefix, "/")
	return func(doc *osc.Document) (*osc.Document, bool) {
		return &osc.Document{
			Address: prefix + doc.Address,
			V:       doc.V,
		}, true
	}
}
