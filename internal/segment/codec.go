package segment

import (
	"fmt"
	"math"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// segmentDoc is the JSON encoding of a segment. Mirrors store segments in
// this form; converting from the upstream binary format happens outside the
// engine.
type segmentDoc struct {
	Kind       string            `json:"kind"`
	Station    string            `json:"station"`
	Deployment int               `json:"deployment,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Variables  []variableDoc     `json:"variables"`
}

type variableDoc struct {
	Name       string            `json:"name"`
	Dimensions []string          `json:"dimensions,omitempty"`
	Shape      []int             `json:"shape,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	// Values holds numeric cells row-major; null cells are fill.
	Values []*float64 `json:"values,omitempty"`
	Text   string     `json:"text,omitempty"`
}

// JSONDecoder decodes segments from their JSON encoding.
type JSONDecoder struct{}

// Decode parses one JSON segment document
func (JSONDecoder) Decode(kind Kind, station string, deployment int, data []byte) (Segment, error) {
	var doc segmentDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse segment document: %w", err)
	}

	// Path-derived identity is authoritative; the document fills gaps
	if station == "" {
		station = doc.Station
	}
	if deployment == 0 {
		deployment = doc.Deployment
	}
	if kind == "" {
		kind = Kind(doc.Kind)
	}

	seg := NewMemorySegment(kind, station, deployment)
	for name, value := range doc.Attributes {
		seg.SetAttribute(name, value)
	}

	for _, vd := range doc.Variables {
		mv, err := buildVariable(vd)
		if err != nil {
			return nil, err
		}
		seg.AddVariable(mv)
	}

	return seg, nil
}

func buildVariable(vd variableDoc) (*MemoryVariable, error) {
	if vd.Text != "" && len(vd.Values) == 0 {
		v := NewTextVar(vd.Name, vd.Text)
		for name, value := range vd.Attributes {
			v.WithAttr(name, value)
		}
		return v, nil
	}

	values := make([]float64, len(vd.Values))
	for i, p := range vd.Values {
		if p == nil {
			values[i] = math.NaN()
		} else {
			values[i] = *p
		}
	}

	var v *MemoryVariable
	switch {
	case len(vd.Shape) == 0:
		if len(values) != 1 {
			return nil, fmt.Errorf("variable %s: scalar with %d values", vd.Name, len(values))
		}
		v = NewScalar(vd.Name, values[0])
	case len(vd.Shape) == 1:
		if len(values) != vd.Shape[0] {
			return nil, fmt.Errorf("variable %s: %d values for shape %v", vd.Name, len(values), vd.Shape)
		}
		dim := vd.Name
		if len(vd.Dimensions) > 0 {
			dim = vd.Dimensions[0]
		}
		v = NewVar(vd.Name, dim, values)
	case len(vd.Shape) == 2:
		if len(values) != vd.Shape[0]*vd.Shape[1] {
			return nil, fmt.Errorf("variable %s: %d values for shape %v", vd.Name, len(values), vd.Shape)
		}
		dim, colDim := vd.Name, "cols"
		if len(vd.Dimensions) > 1 {
			dim, colDim = vd.Dimensions[0], vd.Dimensions[1]
		}
		v = NewVar2D(vd.Name, dim, colDim, values, vd.Shape[1])
	default:
		return nil, fmt.Errorf("variable %s: unsupported rank %d", vd.Name, len(vd.Shape))
	}

	for name, value := range vd.Attributes {
		v.WithAttr(name, value)
	}
	return v, nil
}

// EncodeJSON renders a memory segment as its JSON document; the inverse of
// JSONDecoder.Decode. Used by mirror tooling and tests.
func EncodeJSON(seg *MemorySegment) ([]byte, error) {
	doc := segmentDoc{
		Kind:       string(seg.kind),
		Station:    seg.station,
		Deployment: seg.deployment,
		Attributes: seg.attrs,
	}

	for _, v := range seg.vars {
		vd := variableDoc{
			Name:       v.name,
			Dimensions: v.dims,
			Shape:      v.shape,
			Attributes: v.attrs,
		}
		if v.isText {
			vd.Text = v.text
		} else {
			vd.Values = make([]*float64, len(v.values))
			for i := range v.values {
				if !math.IsNaN(v.values[i]) {
					vd.Values[i] = &v.values[i]
				}
			}
		}
		doc.Variables = append(doc.Variables, vd)
	}

	return json.Marshal(doc)
}
