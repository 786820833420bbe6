// Package prompt renders the instruction templates sent to the generative model.
package prompt

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// DefaultExpansion asks for alternative phrasings of .Question, one per line.
const DefaultExpansion = `You are an AI language model assistant. Your task is to generate five different versions of the given user question to retrieve relevant documents from a vector database. By generating multiple perspectives on the user question, your goal is to help the user overcome some of the limitations of the distance-based similarity search. Provide these alternative questions separated by newlines.
Original question: {{ .Question }}`

// DefaultAnswer grounds the answer to .Question in .Context.
const DefaultAnswer = `Answer the question based ONLY on the following context.

Context:
{{ .Context }}

Question: {{ .Question }}

Answer the question and ONLY use information from the provided context. If you cannot answer the question based on the context, say so. Make sure to be precise and concise in your answer.`

// Template is a parsed prompt. Sprig's text functions (trim, upper, indent, ...) are available.
type Template struct {
	tmpl *template.Template
}

// Parse compiles text as the prompt called name. Unknown fields fail at render time.
func Parse(name, text string) (*Template, error) {
	t, err := template.New(name).Funcs(sprig.TxtFuncMap()).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse %s prompt: %w", name, err)
	}
	return &Template{tmpl: t}, nil
}

// MustParse is Parse for the built-in templates.
func MustParse(name, text string) *Template {
	t, err := Parse(name, text)
	if err != nil {
		panic(err)
	}
	return t
}

// Data is the value a prompt template is rendered with.
type Data struct {
	Question string
	Context  string
}

// Render executes the template with data.
func (t *Template) Render(data Data) (string, error) {
	var buf bytes.Buffer
	if err := t.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", t.tmpl.Name(), err)
	}
	return buf.String(), nil
}
