package barefoot

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"

	"barefoot_sync/internal/xmltree"
)

const (
	soap12NS  = "http://www.w3.org/2003/05/soap-envelope"
	serviceNS = "http://www.barefoot.com/Services/"
)

// Param is one named argument of a remote operation. Order matters: the
// service validates the sequence against its schema.
type Param struct {
	Name  string
	Value string
}

func contentType(op string) string {
	return fmt.Sprintf(`application/soap+xml; charset=utf-8; action="%s%s"`, serviceNS, op)
}

func buildEnvelope(op string, params []Param) []byte {
	var b bytes.Buffer
	b.WriteString(`<?xml version="1.0" encoding="utf-8"?>`)
	b.WriteString(`<soap12:Envelope xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xmlns:xsd="http://www.w3.org/2001/XMLSchema" xmlns:soap12="` + soap12NS + `">`)
	b.WriteString(`<soap12:Body>`)
	b.WriteString(`<` + op + ` xmlns="` + serviceNS + `">`)
	for _, p := range params {
		b.WriteString("<" + p.Name + ">")
		_ = xml.EscapeText(&b, []byte(p.Value))
		b.WriteString("</" + p.Name + ">")
	}
	b.WriteString(`</` + op + `>`)
	b.WriteString(`</soap12:Body></soap12:Envelope>`)
	return b.Bytes()
}

// Fault is a structured SOAP 1.1 or 1.2 fault returned by the service.
type Fault struct {
	Code   string
	Reason string
}

func (f *Fault) Error() string {
	if f.Code == "" {
		return "soap fault: " + f.Reason
	}
	return fmt.Sprintf("soap fault %s: %s", f.Code, f.Reason)
}

var errNoEnvelope = errors.New("response is not a soap envelope")

// parseEnvelope decodes a SOAP envelope and returns the body's first child
// under its local name. A Fault child is returned as *Fault.
func parseEnvelope(body []byte) (name string, content any, err error) {
	m, err := xmltree.Decode(body)
	if err != nil {
		return "", nil, err
	}
	env, ok := xmltree.AsMap(xmltree.Lookup(m, "Envelope"))
	if !ok {
		return "", nil, errNoEnvelope
	}
	b, ok := xmltree.AsMap(xmltree.Lookup(env, "Body"))
	if !ok {
		return "", nil, errNoEnvelope
	}
	for k, v := range b {
		if strings.HasPrefix(k, "-") {
			continue
		}
		if strings.EqualFold(k, "Fault") {
			return k, nil, parseFault(v)
		}
		return k, v, nil
	}
	return "", nil, nil
}

func parseFault(v any) *Fault {
	fm, _ := xmltree.AsMap(v)
	f := &Fault{}
	// 1.2: Code/Value, Reason/Text
	if code, ok := xmltree.AsMap(xmltree.Lookup(fm, "Code")); ok {
		f.Code = xmltree.Text(xmltree.Lookup(code, "Value"))
	}
	if reason, ok := xmltree.AsMap(xmltree.Lookup(fm, "Reason")); ok {
		f.Reason = xmltree.Text(xmltree.Lookup(reason, "Text"))
	}
	// 1.1: faultcode, faultstring
	if f.Code == "" {
		f.Code = xmltree.Text(xmltree.Lookup(fm, "faultcode"))
	}
	if f.Reason == "" {
		f.Reason = xmltree.Text(xmltree.Lookup(fm, "faultstring"))
	}
	if f.Reason == "" {
		f.Reason = "unspecified fault"
	}
	return f
}
