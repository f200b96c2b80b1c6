package extract

import (
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/cognicore/medallion/pkg/medallion/table"
)

// ReadHTMLTable parses the first <table> in an HTML document. The header is
// the first row, whether it holds <th> or <td> cells.
func ReadHTMLTable(r io.Reader) (*table.Batch, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	tbl := findFirst(doc, atom.Table)
	if tbl == nil {
		return table.New(), nil
	}

	var rows [][]string
	walk(tbl, func(n *html.Node) bool {
		if n.Type != html.ElementNode || n.DataAtom != atom.Tr {
			return true
		}
		var cells []string
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode || (c.DataAtom != atom.Td && c.DataAtom != atom.Th) {
				continue
			}
			cells = append(cells, strings.Join(strings.Fields(textOf(c)), " "))
		}
		if len(cells) > 0 {
			rows = append(rows, cells)
		}
		return false
	})
	if len(rows) == 0 {
		return table.New(), nil
	}

	header := rows[0]
	b := table.New(header...)
	for _, cells := range rows[1:] {
		if len(cells) != len(header) {
			continue
		}
		row := make(table.Row, len(header))
		for i, col := range header {
			row[col] = table.ParseScalar(cells[i])
		}
		b.Rows = append(b.Rows, row)
	}
	return b, nil
}

func findFirst(n *html.Node, a atom.Atom) *html.Node {
	var found *html.Node
	walk(n, func(c *html.Node) bool {
		if found != nil {
			return false
		}
		if c.Type == html.ElementNode && c.DataAtom == a {
			found = c
			return false
		}
		return true
	})
	return found
}

// walk visits n depth first; fn returns false to skip a node's children.
func walk(n *html.Node, fn func(*html.Node) bool) {
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	walk(n, func(c *html.Node) bool {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
			sb.WriteByte(' ')
		}
		return true
	})
	return sb.String()
}
