// Package e2e runs the full ingest and ask pipeline over a corpus of small documents in every
// supported format.
package e2e

import "fmt"

// Fact is one corpus document: a short passage and a question only it answers.
type Fact struct {
	Name     string
	Ext      string
	Text     string
	Question string
	// Answer is a word the passage contains and a correct answer repeats.
	Answer string
}

// Corpus holds the documents and their questions.
type Corpus struct {
	Facts []Fact
}

// FileName returns the file the fact is written to.
func (f Fact) FileName() string {
	return f.Name + f.Ext
}

var passages = []struct {
	name     string
	text     string
	question string
	answer   string
}{
	{"france", "The capital of France is Paris. Paris sits on the Seine river.", "What is the capital city of France?", "Paris"},
	{"japan", "Tokyo is the capital of Japan and its largest metropolitan area.", "Which city is the capital of Japan?", "Tokyo"},
	{"everest", "Mount Everest, on the Nepal and Tibet border, is the highest mountain above sea level.", "What is the highest mountain above sea level?", "Everest"},
	{"nile", "The Nile flows north through Egypt and Sudan into the Mediterranean Sea.", "Which river flows north through Egypt into the Mediterranean?", "Nile"},
	{"photosynthesis", "Photosynthesis lets plants convert sunlight, water and carbon dioxide into glucose and oxygen.", "How do plants convert sunlight into glucose?", "Photosynthesis"},
	{"mercury", "Mercury is the smallest planet and orbits closest to the Sun.", "Which planet orbits closest to the Sun?", "Mercury"},
	{"penicillin", "Alexander Fleming discovered penicillin in 1928 after noticing mould killing bacteria.", "Who discovered penicillin after noticing mould killing bacteria?", "Fleming"},
	{"goroutines", "Goroutines are lightweight threads managed by the Go runtime and communicate over channels.", "What lightweight threads does the Go runtime manage?", "Goroutines"},
	{"sqlite", "SQLite stores an entire relational database in a single ordinary disk file.", "Which database stores everything in a single disk file?", "SQLite"},
	{"espresso", "Espresso is brewed by forcing hot pressurised water through finely ground coffee.", "How is espresso coffee brewed?", "pressurised"},
	{"octopus", "An octopus has three hearts and blue copper based blood.", "How many hearts does an octopus have?", "three"},
	{"honey", "Honey never spoils because its low moisture and acidity stop bacteria growing.", "Why does honey never spoil?", "moisture"},
	{"marathon", "A marathon race covers 42.195 kilometres, a distance fixed at the 1908 London Olympics.", "How many kilometres does a marathon race cover?", "42"},
	{"saturn", "Saturn's rings are made mostly of ice particles with some rocky debris.", "What are Saturn's rings made of?", "ice"},
	{"bees", "Honeybees communicate the direction of flowers with a waggle dance.", "How do honeybees communicate the direction of flowers?", "waggle"},
}

var formats = []string{".txt", ".md", ".rst", ".docx", ".xlsx"}

// BuildCorpus returns one fact per passage, rotating through the supported formats.
func BuildCorpus() *Corpus {
	facts := make([]Fact, 0, len(passages))
	for i, p := range passages {
		facts = append(facts, Fact{
			Name:     fmt.Sprintf("%02d-%s", i+1, p.name),
			Ext:      formats[i%len(formats)],
			Text:     p.text,
			Question: p.question,
			Answer:   p.answer,
		})
	}
	return &Corpus{Facts: facts}
}
