// Package render turns request values into the HTML pages served to the
// embedding page: the unsecure shell that hosts the secure iframe, and the
// secure page that displays or edits a value.
//
// Templates are html/template files embedded in the binary; a directory can
// be supplied to override them. Escaping is contextual, so values, CSS URLs
// and script messages are written through the template engine and never
// concatenated into markup.
package render
