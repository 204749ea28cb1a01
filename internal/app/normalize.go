package app

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"barefoot_sync/internal/domain"
	"barefoot_sync/internal/xmltree"
)

// Shape tags the structural variant of a reply value.
type Shape int

const (
	ShapeEmpty Shape = iota
	ShapeList
	ShapeCollection
	ShapeEnvelope
	ShapeObject
	ShapeEmbeddedXML
	ShapeUnrecognized
)

func (s Shape) String() string {
	switch s {
	case ShapeEmpty:
		return "empty"
	case ShapeList:
		return "list"
	case ShapeCollection:
		return "collection"
	case ShapeEnvelope:
		return "envelope"
	case ShapeObject:
		return "object"
	case ShapeEmbeddedXML:
		return "embedded_xml"
	}
	return "unrecognized"
}

// DefaultWrappers are the collection paths the service is known to use,
// tried in order.
var DefaultWrappers = []string{
	"PROPERTIES.PROPERTY",
	"PropertyList.Property",
	"Property.PropertyImg",
	"Property",
	"Info",
	"ImageInfo",
}

const defaultMaxDepth = 4

// Normalizer turns a RawReply into an ordered sequence of records. Output is
// never a bare object, and a single object under a collection field counts
// as one record.
type Normalizer struct {
	Wrappers []string
	MaxDepth int // nesting bound for envelopes and embedded XML
}

func NewNormalizer(wrappers ...string) Normalizer {
	if len(wrappers) == 0 {
		wrappers = DefaultWrappers
	}
	return Normalizer{Wrappers: wrappers, MaxDepth: defaultMaxDepth}
}

// Normalize extracts the <Op>Result field of reply and decodes it. An absent
// result field means "no data" and yields an empty sequence.
func (n Normalizer) Normalize(reply domain.RawReply) ([]Record, error) {
	result, ok := resultField(reply)
	if !ok {
		log.Warn().Str("op", reply.Operation).Msg("reply has no result field, treating as no data")
		return nil, nil
	}
	b, err := json.Marshal(result)
	if err != nil {
		return nil, domain.E(domain.KindNormalizationGap, reply.Operation, err)
	}
	recs, err := n.decode(gjson.ParseBytes(b), 0)
	if err != nil {
		return nil, domain.E(domain.KindNormalizationGap, reply.Operation, err)
	}
	return recs, nil
}

func resultField(reply domain.RawReply) (any, bool) {
	want := reply.Operation + "Result"
	if v, ok := reply.Payload[want]; ok {
		return v, true
	}
	for k, v := range reply.Payload {
		if strings.EqualFold(k, want) {
			return v, true
		}
	}
	return nil, false
}

// Classify reports the variant of v without decoding it.
func (n Normalizer) Classify(v gjson.Result) Shape {
	switch {
	case v.IsObject():
		if _, ok := n.collection(v); ok {
			return ShapeCollection
		}
		if _, ok := envelopeChild(v); ok {
			return ShapeEnvelope
		}
		if isEmpty(v) {
			return ShapeEmpty
		}
		return ShapeObject
	case isEmpty(v):
		return ShapeEmpty
	case v.IsArray():
		return ShapeList
	case v.Type == gjson.String && xmltree.LooksLikeXML(v.String()):
		return ShapeEmbeddedXML
	}
	return ShapeUnrecognized
}

func (n Normalizer) decode(v gjson.Result, depth int) ([]Record, error) {
	if depth > n.maxDepth() {
		return nil, fmt.Errorf("%w: nesting deeper than %d", domain.ErrUnrecognizedShape, n.maxDepth())
	}
	switch shape := n.Classify(v); shape {
	case ShapeEmpty:
		return nil, nil
	case ShapeList:
		return n.decodeList(v, depth)
	case ShapeCollection:
		inner, _ := n.collection(v)
		return n.decodeItems(inner, depth)
	case ShapeEnvelope:
		inner, _ := envelopeChild(v)
		return n.decode(inner, depth+1)
	case ShapeObject:
		return []Record{{data: v}}, nil
	case ShapeEmbeddedXML:
		m, err := xmltree.Decode([]byte(strings.TrimSpace(v.String())))
		if err != nil {
			return nil, fmt.Errorf("%w: embedded xml: %v", domain.ErrUnrecognizedShape, err)
		}
		b, err := json.Marshal(m)
		if err != nil {
			return nil, err
		}
		return n.decode(gjson.ParseBytes(b), depth+1)
	default:
		return nil, fmt.Errorf("%w: %s value %q", domain.ErrUnrecognizedShape, v.Type, truncate(v.String(), 64))
	}
}

// decodeItems handles the value found under a collection path: one object
// is one record, a list is its elements.
func (n Normalizer) decodeItems(v gjson.Result, depth int) ([]Record, error) {
	switch {
	case isBlankItem(v):
		return nil, nil
	case v.IsArray():
		return n.decodeList(v, depth)
	case v.IsObject():
		return []Record{{data: v}}, nil
	}
	return n.decode(v, depth+1)
}

func (n Normalizer) decodeList(v gjson.Result, depth int) ([]Record, error) {
	var out []Record
	var err error
	v.ForEach(func(_, item gjson.Result) bool {
		switch {
		case isBlankItem(item):
		case item.IsObject():
			out = append(out, Record{data: item})
		default:
			var recs []Record
			recs, err = n.decode(item, depth+1)
			out = append(out, recs...)
		}
		return err == nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (n Normalizer) collection(v gjson.Result) (gjson.Result, bool) {
	// a record that carries its own id is a record, even with an Info child
	if hasRemoteID(v) {
		return gjson.Result{}, false
	}
	for _, path := range n.Wrappers {
		cur := v
		for _, part := range strings.Split(path, ".") {
			cur = child(cur, part)
		}
		if cur.IsObject() || cur.IsArray() {
			return cur, true
		}
	}
	return gjson.Result{}, false
}

// envelopeChild returns the only element field of v when that field is an
// object or list, e.g. <string><PropertyList>...</PropertyList></string>.
func envelopeChild(v gjson.Result) (gjson.Result, bool) {
	var (
		only  gjson.Result
		count int
	)
	v.ForEach(func(k, val gjson.Result) bool {
		if strings.HasPrefix(k.String(), "-") {
			return true
		}
		count++
		only = val
		return count < 2
	})
	if count != 1 {
		return gjson.Result{}, false
	}
	if only.IsObject() || only.IsArray() {
		return only, true
	}
	if only.Type == gjson.String && xmltree.LooksLikeXML(only.String()) {
		return only, true
	}
	return gjson.Result{}, false
}

func hasRemoteID(v gjson.Result) bool {
	for _, alias := range propertyAliases["remote_id"] {
		c := child(v, alias)
		if c.IsObject() {
			c = child(c, "#text")
		}
		if c.Type == gjson.String || c.Type == gjson.Number {
			if strings.TrimSpace(c.String()) != "" {
				return true
			}
		}
	}
	return false
}

// isBlankItem is the emptiness test for list and collection items. An
// object with element keys is kept even when every value is blank, so the
// mapper can reject it with its id.
func isBlankItem(v gjson.Result) bool {
	if !v.IsObject() {
		return isEmpty(v)
	}
	keys := 0
	v.ForEach(func(k, _ gjson.Result) bool {
		if !strings.HasPrefix(k.String(), "-") {
			keys++
		}
		return keys == 0
	})
	return keys == 0
}

func isEmpty(v gjson.Result) bool {
	switch {
	case !v.Exists(), v.Type == gjson.Null:
		return true
	case v.Type == gjson.String:
		return strings.TrimSpace(v.String()) == ""
	case v.IsObject():
		empty := true
		v.ForEach(func(k, val gjson.Result) bool {
			if !strings.HasPrefix(k.String(), "-") && !isEmpty(val) {
				empty = false
			}
			return empty
		})
		return empty
	case v.IsArray():
		return len(v.Array()) == 0
	}
	return false
}

func (n Normalizer) maxDepth() int {
	if n.MaxDepth <= 0 {
		return defaultMaxDepth
	}
	return n.MaxDepth
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
