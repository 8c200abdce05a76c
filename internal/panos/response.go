package panos

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/antchfx/xmlquery"
)

// parseResponse parses an API response envelope and returns its root
// <response> element. A status other than "success" becomes an *APIError.
func parseResponse(op string, body []byte) (*xmlquery.Node, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, &APIError{Op: op, Err: fmt.Errorf("invalid response: %w", err)}
	}
	root := xmlquery.FindOne(doc, "/response")
	if root == nil {
		return nil, &APIError{Op: op, Err: fmt.Errorf("invalid response: missing <response> element")}
	}

	if status := root.SelectAttr("status"); status != "success" {
		return nil, &APIError{
			Op:      op,
			Code:    root.SelectAttr("code"),
			Message: errorMessage(root),
		}
	}
	return root, nil
}

// errorMessage collects the firewall's error text. PAN-OS puts it in
// <msg>, <msg><line> or <details><line> depending on the call.
func errorMessage(root *xmlquery.Node) string {
	var lines []string
	for _, n := range xmlquery.Find(root, "//msg/line | //details/line") {
		if t := strings.TrimSpace(n.InnerText()); t != "" {
			lines = append(lines, t)
		}
	}
	if len(lines) == 0 {
		if n := xmlquery.FindOne(root, "//msg"); n != nil {
			if t := strings.TrimSpace(n.InnerText()); t != "" {
				lines = append(lines, t)
			}
		}
	}
	if len(lines) == 0 {
		return "unknown error"
	}
	return strings.Join(lines, "; ")
}

// isErrorEnvelope reports whether an export body is an error response
// instead of the exported payload.
func isErrorEnvelope(body []byte) bool {
	head := body
	if len(head) > 512 {
		head = head[:512]
	}
	return bytes.Contains(head, []byte("<response")) && bytes.Contains(head, []byte(`status="error"`))
}

func childText(n *xmlquery.Node, expr string) string {
	if c := xmlquery.FindOne(n, expr); c != nil {
		return strings.TrimSpace(c.InnerText())
	}
	return ""
}
