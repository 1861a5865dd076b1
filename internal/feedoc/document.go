// =============================================================================
// XML Fee Reconciler - Fee Document
// =============================================================================
//
// This module loads an invoice XML document into an order-preserving tree,
// locates the repeated fee records, and lets callers replace the text of the
// quantity fields before the document is rendered back.
//
// DOCUMENT STRUCTURE:
//   Fee records may appear at any depth. Each record must carry the four
//   field elements below as direct children:
//
//   <invoice>
//     <fee_summary>
//       <fee>                                 <!-- Record element -->
//         <charge_date>2024-01-01</charge_date>
//         <units>10.256</units>
//         <rate>5.00</rate>
//         <total_amount>51.28</total_amount>
//       </fee>
//     </fee_summary>
//   </invoice>
//
//   Everything that is not a quantity field is kept as it was read:
//   attributes, namespace prefixes, comments and processing instructions.
//
// =============================================================================

package feedoc

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/ginjaninja78/xml-fee-reconciler/internal/types"
)

var (
	// ErrMissingField indicates a fee record without one of its field elements.
	ErrMissingField = errors.New("missing field element")

	// ErrNoRoot indicates a document without a root element.
	ErrNoRoot = errors.New("document has no root element")

	// ErrRecordIndex indicates an index outside the document's records.
	ErrRecordIndex = errors.New("record index out of range")

	// ErrMalformedXML indicates input that is not well-formed XML.
	ErrMalformedXML = errors.New("malformed XML")
)

// =============================================================================
// OPTIONS
// =============================================================================

// FieldNames holds the element names of the fields inside a fee record.
type FieldNames struct {
	ChargeDate  string `yaml:"charge_date"`
	Units       string `yaml:"units"`
	Rate        string `yaml:"rate"`
	TotalAmount string `yaml:"total_amount"`
}

// Options controls how a document is read and rendered.
type Options struct {
	// RecordElement is the local name of the repeated record element.
	// Default: "fee"
	RecordElement string

	// Fields are the names of the record's child elements.
	Fields FieldNames

	// Indent is the string written once per nesting level.
	// Default: "\t"
	Indent string

	// IncludeXMLDeclaration adds a declaration when the source had none.
	IncludeXMLDeclaration bool
}

// DefaultOptions returns the options matching the invoice export format.
func DefaultOptions() Options {
	return Options{
		RecordElement:         "fee",
		Fields:                DefaultFieldNames(),
		Indent:                "\t",
		IncludeXMLDeclaration: true,
	}
}

// DefaultFieldNames returns the standard fee field element names.
func DefaultFieldNames() FieldNames {
	return FieldNames{
		ChargeDate:  "charge_date",
		Units:       "units",
		Rate:        "rate",
		TotalAmount: "total_amount",
	}
}

// WithDefaults fills empty names with the default element names.
func (n FieldNames) WithDefaults() FieldNames {
	def := DefaultFieldNames()
	if n.ChargeDate == "" {
		n.ChargeDate = def.ChargeDate
	}
	if n.Units == "" {
		n.Units = def.Units
	}
	if n.Rate == "" {
		n.Rate = def.Rate
	}
	if n.TotalAmount == "" {
		n.TotalAmount = def.TotalAmount
	}
	return n
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.RecordElement == "" {
		o.RecordElement = def.RecordElement
	}
	o.Fields = o.Fields.WithDefaults()
	if o.Indent == "" {
		o.Indent = def.Indent
	}
	return o
}

// =============================================================================
// NODES
// =============================================================================

// Node is one item of the document tree.
type Node interface {
	node()
}

// Element is an XML element with its attributes and ordered children.
// Name.Space holds the namespace prefix as written, not the namespace URL.
type Element struct {
	Name     xml.Name
	Attr     []xml.Attr
	Children []Node
}

// Text is character data.
type Text string

// Comment is the content of <!-- -->.
type Comment string

// ProcInst is a processing instruction such as the XML declaration.
type ProcInst struct {
	Target string
	Inst   string
}

// Directive is the content of <! > such as a DOCTYPE.
type Directive string

func (*Element) node()  {}
func (Text) node()      {}
func (Comment) node()   {}
func (*ProcInst) node() {}
func (Directive) node() {}

// Child returns the first direct child element with the given local name.
func (e *Element) Child(local string) *Element {
	for _, c := range e.Children {
		if el, ok := c.(*Element); ok && el.Name.Local == local {
			return el
		}
	}
	return nil
}

// Text returns the concatenated character data of the element's direct
// text children.
func (e *Element) Text() string {
	var sb strings.Builder
	for _, c := range e.Children {
		if t, ok := c.(Text); ok {
			sb.WriteString(string(t))
		}
	}
	return sb.String()
}

// SetText replaces all children of the element with a single text node.
func (e *Element) SetText(value string) {
	e.Children = []Node{Text(value)}
}

// =============================================================================
// DOCUMENT
// =============================================================================

// Document is a parsed invoice.
type Document struct {
	options Options
	nodes   []Node
	root    *Element
	records []*Element
}

// Load reads an XML document. Non UTF-8 encodings declared in the XML
// declaration are converted on the fly.
func Load(r io.Reader, opts Options) (*Document, error) {
	opts = opts.withDefaults()

	decoder := xml.NewDecoder(r)
	decoder.CharsetReader = charset.NewReaderLabel

	doc := &Document{options: opts}
	var stack []*Element

	appendNode := func(n Node) {
		if len(stack) == 0 {
			doc.nodes = append(doc.nodes, n)
			return
		}
		top := stack[len(stack)-1]
		top.Children = append(top.Children, n)
	}

	for {
		token, err := decoder.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedXML, err)
		}

		switch t := token.(type) {
		case xml.StartElement:
			if len(stack) == 0 && doc.root != nil {
				return nil, fmt.Errorf("%w: multiple root elements (<%s> after <%s>)", ErrMalformedXML,
					qualifiedName(t.Name), qualifiedName(doc.root.Name))
			}

			element := &Element{Name: t.Name, Attr: append([]xml.Attr(nil), t.Attr...)}
			appendNode(element)
			stack = append(stack, element)

			if doc.root == nil {
				doc.root = element
			}
			if t.Name.Local == opts.RecordElement {
				doc.records = append(doc.records, element)
			}

		case xml.EndElement:
			if len(stack) == 0 || stack[len(stack)-1].Name != t.Name {
				return nil, fmt.Errorf("%w: unexpected end element </%s>", ErrMalformedXML, qualifiedName(t.Name))
			}
			stack = stack[:len(stack)-1]

		case xml.CharData:
			// Whitespace between top-level nodes is layout only.
			if len(stack) == 0 {
				continue
			}
			appendNode(Text(string(t)))

		case xml.Comment:
			appendNode(Comment(string(t)))

		case xml.ProcInst:
			appendNode(&ProcInst{Target: t.Target, Inst: string(t.Inst)})

		case xml.Directive:
			appendNode(Directive(string(t)))
		}
	}

	if len(stack) > 0 {
		return nil, fmt.Errorf("%w: unexpected end of input inside <%s>", ErrMalformedXML, qualifiedName(stack[len(stack)-1].Name))
	}
	if doc.root == nil {
		return nil, ErrNoRoot
	}

	return doc, nil
}

// Root returns the document's root element.
func (d *Document) Root() *Element {
	return d.root
}

// Len returns the number of fee records in the document.
func (d *Document) Len() int {
	return len(d.records)
}

// Records returns the fee records in document order.
func (d *Document) Records() ([]types.FeeRecord, error) {
	records := make([]types.FeeRecord, 0, len(d.records))
	names := d.options.Fields

	for i, element := range d.records {
		fields := make(map[string]string, 4)
		for _, name := range []string{names.ChargeDate, names.Units, names.Rate, names.TotalAmount} {
			child := element.Child(name)
			if child == nil {
				return nil, fmt.Errorf("%s record %d: %w <%s>", d.options.RecordElement, i+1, ErrMissingField, name)
			}
			fields[name] = child.Text()
		}

		records = append(records, types.FeeRecord{
			Index:       i,
			ChargeDate:  fields[names.ChargeDate],
			Units:       fields[names.Units],
			Rate:        fields[names.Rate],
			TotalAmount: fields[names.TotalAmount],
		})
	}

	return records, nil
}

// SetValues replaces the units, rate and amount text of the record at index.
func (d *Document) SetValues(index int, units, rate, amount string) error {
	if index < 0 || index >= len(d.records) {
		return fmt.Errorf("%w: %d (document has %d records)", ErrRecordIndex, index, len(d.records))
	}

	element := d.records[index]
	names := d.options.Fields
	values := []struct {
		name  string
		value string
	}{
		{names.Units, units},
		{names.Rate, rate},
		{names.TotalAmount, amount},
	}

	for _, v := range values {
		child := element.Child(v.name)
		if child == nil {
			return fmt.Errorf("%s record %d: %w <%s>", d.options.RecordElement, index+1, ErrMissingField, v.name)
		}
		child.SetText(v.value)
	}

	return nil
}
