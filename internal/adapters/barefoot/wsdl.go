package barefoot

import (
	"strings"
	"time"

	"barefoot_sync/internal/xmltree"
)

// session is the introspected service description. Owned by Client.
type session struct {
	ops       []string
	offered   map[string]struct{}
	fetchedAt time.Time
}

func (s *session) offers(op string) bool {
	if len(s.offered) == 0 {
		return false
	}
	_, ok := s.offered[strings.ToLower(op)]
	return ok
}

// parseWSDL returns the unique operation names of every portType, in
// document order.
func parseWSDL(body []byte) (*session, error) {
	m, err := xmltree.Decode(body)
	if err != nil {
		return nil, err
	}
	defs, _ := xmltree.AsMap(xmltree.Lookup(m, "definitions"))
	s := &session{offered: map[string]struct{}{}, fetchedAt: time.Now()}
	for _, pt := range xmltree.AsList(xmltree.Lookup(defs, "portType")) {
		ptm, ok := xmltree.AsMap(pt)
		if !ok {
			continue
		}
		for _, op := range xmltree.AsList(xmltree.Lookup(ptm, "operation")) {
			om, ok := xmltree.AsMap(op)
			if !ok {
				continue
			}
			name := xmltree.Text(om["-name"])
			if name == "" {
				continue
			}
			key := strings.ToLower(name)
			if _, dup := s.offered[key]; dup {
				continue
			}
			s.offered[key] = struct{}{}
			s.ops = append(s.ops, name)
		}
	}
	return s, nil
}
