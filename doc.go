// Package literal renders interpolated strings embedded in HTML attributes
// and element content, and re-renders them whenever an element's data
// changes.
//
// An element opts in with the marker attribute (literal by default):
//
//	<p literal title="${name}">Hello, ${name}!</p>
//
// When the Observer activates the element it captures every attribute
// containing ${ and, if the content contains ${, the content itself, which is
// cleared until the first render. Each write to the element's Store that
// changes a value re-renders all captured templates of that element:
//
//	doc, _ := literal.Parse(r)
//	obs := literal.New(doc)
//	obs.Start()
//	obs.Data(p).Set("name", "Ada")
//	doc.Flush()
//
// Expressions use Go syntax and may only name keys of the element's data.
// Writing \${ keeps the text literal.
package literal
