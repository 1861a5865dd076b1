// =============================================================================
// XML Fee Reconciler - XML Writer
// =============================================================================
//
// This module renders a Document back to text with consistent indentation.
//
// LAYOUT RULES:
//   - One element per line, indented once per nesting level
//   - Elements holding only text are written inline: <rate>5.00</rate>
//   - Mixed content (text next to elements) is written inline and verbatim:
//     <note>a <b>x</b> c</note>
//   - Elements without content are self-closing: <note/>
//   - Whitespace-only text between elements is layout and is regenerated
//   - The XML declaration always announces UTF-8, whatever the input used
//
// =============================================================================

package feedoc

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// Render writes the document to w.
func (d *Document) Render(w io.Writer) error {
	var buffer bytes.Buffer

	hasDeclaration := false
	for _, n := range d.nodes {
		if pi, ok := n.(*ProcInst); ok && pi.Target == "xml" {
			hasDeclaration = true
			break
		}
	}
	if !hasDeclaration && d.options.IncludeXMLDeclaration {
		writeDeclaration(&buffer, "")
	}

	for _, n := range d.nodes {
		d.writeNode(&buffer, n, 0)
	}

	if _, err := w.Write(buffer.Bytes()); err != nil {
		return fmt.Errorf("failed to write XML: %w", err)
	}
	return nil
}

// Bytes returns the rendered document.
func (d *Document) Bytes() ([]byte, error) {
	var buffer bytes.Buffer
	if err := d.Render(&buffer); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

// writeNode writes a single node at the given nesting level.
func (d *Document) writeNode(buffer *bytes.Buffer, n Node, level int) {
	switch node := n.(type) {
	case *Element:
		d.writeElement(buffer, node, level)

	case Text:
		text := strings.TrimSpace(string(node))
		if text == "" {
			return
		}
		d.writeIndent(buffer, level)
		buffer.WriteString(escapeText(text))
		buffer.WriteString("\n")

	case Comment:
		d.writeIndent(buffer, level)
		buffer.WriteString("<!--")
		buffer.WriteString(string(node))
		buffer.WriteString("-->\n")

	case *ProcInst:
		if node.Target == "xml" {
			writeDeclaration(buffer, node.Inst)
			return
		}
		d.writeIndent(buffer, level)
		buffer.WriteString("<?")
		buffer.WriteString(node.Target)
		if node.Inst != "" {
			buffer.WriteString(" ")
			buffer.WriteString(node.Inst)
		}
		buffer.WriteString("?>\n")

	case Directive:
		d.writeIndent(buffer, level)
		buffer.WriteString("<!")
		buffer.WriteString(string(node))
		buffer.WriteString(">\n")
	}
}

// writeElement writes an XML element to the buffer with indentation.
func (d *Document) writeElement(buffer *bytes.Buffer, element *Element, level int) {
	d.writeIndent(buffer, level)

	// Write opening tag.
	name := qualifiedName(element.Name)
	buffer.WriteString("<")
	buffer.WriteString(name)

	// Write attributes.
	for _, attr := range element.Attr {
		buffer.WriteString(fmt.Sprintf(" %s=\"%s\"", qualifiedName(attr.Name), escapeAttr(attr.Value)))
	}

	content := significantChildren(element.Children)

	if len(content) == 0 {
		// Self-closing tag.
		buffer.WriteString("/>\n")
		return
	}

	buffer.WriteString(">")

	if textOnly(content) {
		// Simple element with text value, written exactly as stored.
		buffer.WriteString(escapeText(element.Text()))
	} else if hasText(content) {
		for _, child := range element.Children {
			writeInline(buffer, child)
		}
	} else {
		buffer.WriteString("\n")
		for _, child := range content {
			d.writeNode(buffer, child, level+1)
		}
		d.writeIndent(buffer, level)
	}

	// Write closing tag.
	buffer.WriteString("</")
	buffer.WriteString(name)
	buffer.WriteString(">\n")
}

func (d *Document) writeIndent(buffer *bytes.Buffer, level int) {
	for i := 0; i < level; i++ {
		buffer.WriteString(d.options.Indent)
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// significantChildren drops whitespace-only text nodes.
func significantChildren(children []Node) []Node {
	out := make([]Node, 0, len(children))
	for _, c := range children {
		if t, ok := c.(Text); ok && strings.TrimSpace(string(t)) == "" {
			continue
		}
		out = append(out, c)
	}
	return out
}

// writeInline writes a node and its descendants without adding layout.
func writeInline(buffer *bytes.Buffer, n Node) {
	switch node := n.(type) {
	case *Element:
		name := qualifiedName(node.Name)
		buffer.WriteString("<")
		buffer.WriteString(name)
		for _, attr := range node.Attr {
			buffer.WriteString(fmt.Sprintf(" %s=\"%s\"", qualifiedName(attr.Name), escapeAttr(attr.Value)))
		}
		if len(node.Children) == 0 {
			buffer.WriteString("/>")
			return
		}
		buffer.WriteString(">")
		for _, child := range node.Children {
			writeInline(buffer, child)
		}
		buffer.WriteString("</")
		buffer.WriteString(name)
		buffer.WriteString(">")

	case Text:
		buffer.WriteString(escapeText(string(node)))

	case Comment:
		buffer.WriteString("<!--")
		buffer.WriteString(string(node))
		buffer.WriteString("-->")

	case *ProcInst:
		buffer.WriteString("<?")
		buffer.WriteString(node.Target)
		if node.Inst != "" {
			buffer.WriteString(" ")
			buffer.WriteString(node.Inst)
		}
		buffer.WriteString("?>")

	case Directive:
		buffer.WriteString("<!")
		buffer.WriteString(string(node))
		buffer.WriteString(">")
	}
}

// hasText reports whether any node is non-whitespace text.
func hasText(nodes []Node) bool {
	for _, n := range nodes {
		if t, ok := n.(Text); ok && strings.TrimSpace(string(t)) != "" {
			return true
		}
	}
	return false
}

func textOnly(nodes []Node) bool {
	for _, n := range nodes {
		if _, ok := n.(Text); !ok {
			return false
		}
	}
	return true
}

// writeDeclaration writes the XML declaration, keeping the version and
// standalone pseudo-attributes of the original but always declaring UTF-8.
func writeDeclaration(buffer *bytes.Buffer, inst string) {
	version := procInstParam(inst, "version")
	if version == "" {
		version = "1.0"
	}

	buffer.WriteString(fmt.Sprintf("<?xml version=\"%s\" encoding=\"UTF-8\"", version))
	if standalone := procInstParam(inst, "standalone"); standalone != "" {
		buffer.WriteString(fmt.Sprintf(" standalone=\"%s\"", standalone))
	}
	buffer.WriteString("?>\n")
}

// procInstParam returns the value of a pseudo-attribute such as
// version="1.0" in a processing instruction body.
func procInstParam(inst, param string) string {
	idx := strings.Index(inst, param+"=")
	if idx < 0 {
		return ""
	}
	rest := inst[idx+len(param)+1:]
	if rest == "" {
		return ""
	}
	quote := rest[0]
	if quote != '"' && quote != '\'' {
		return ""
	}
	end := strings.IndexByte(rest[1:], quote)
	if end < 0 {
		return ""
	}
	return rest[1 : end+1]
}

// qualifiedName returns prefix:local, or local when there is no prefix.
func qualifiedName(name xml.Name) string {
	if name.Space == "" {
		return name.Local
	}
	return name.Space + ":" + name.Local
}

// escapeAttr escapes special characters for attribute values.
func escapeAttr(s string) string {
	var buffer bytes.Buffer

	for _, r := range s {
		switch r {
		case '&':
			buffer.WriteString("&amp;")
		case '<':
			buffer.WriteString("&lt;")
		case '>':
			buffer.WriteString("&gt;")
		case '"':
			buffer.WriteString("&quot;")
		default:
			buffer.WriteRune(r)
		}
	}

	return buffer.String()
}

// escapeText escapes the characters that may not appear raw in text content.
func escapeText(s string) string {
	var buffer bytes.Buffer

	for _, r := range s {
		switch r {
		case '&':
			buffer.WriteString("&amp;")
		case '<':
			buffer.WriteString("&lt;")
		case '>':
			buffer.WriteString("&gt;")
		default:
			buffer.WriteRune(r)
		}
	}

	return buffer.String()
}
