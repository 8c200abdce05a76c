// Package configdoc loads a firewall configuration export and answers
// structural queries against it.
//
// A Document is read-only once parsed. Queries are XPath 1.0 expressions
// supplied by the caller as constants; values that come from users or from
// the firewall (certificate names, entry names) are compared in Go through
// the Node helpers and never spliced into an expression.
package configdoc
