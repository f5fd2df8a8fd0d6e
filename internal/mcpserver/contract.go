package mcpserver

// NotationContract describes the notations limen imports and the rules an
// LLM consumer should follow when writing documents.
const NotationContract = `# limen Notation Contract

limen stores documents whose markup may overlap, be discontinuous, or
branch into alternative readings. Three notations are accepted. The
notation is chosen by the file extension.

## TAGML (.tagml)

` + "```" + `
[s|+A,+B>[l|A>One line [w|B>cross<l]ing<w]<s]
` + "```" + `

- ` + "`[t>`" + ` opens, ` + "`<t]`" + ` closes. ` + "`[t]`" + ` is a milestone.
- ` + "`|+A,+B`" + ` after the tag opens new layers; ` + "`|A`" + ` places a range in an existing layer.
  Ranges in different layers may overlap freely. Within one layer they must nest.
- ` + "`<-t]`" + ` suspends a range, ` + "`[+t>`" + ` resumes it. The range covers both segments.
- ` + "`[?t>`" + ` marks an optional range. ` + "`[t~1>`" + ` adds a suffix to tell equal tags apart.
- ` + "`<| a | b |>`" + ` holds alternative readings (branches).
- Attributes: ` + "`[w n=1 who=\"x\" tags=[\"a\",\"b\"] meta={by=\"y\"}>`" + `. ` + "`:id`" + ` names a range,
  a milestone with ` + "`:ref`" + ` refers back to one.
- ` + "`[! comment !]`" + `, ` + "`[!ns p uri]`" + `, ` + "`[!schema uri]`" + `. Escape with ` + "`\\[ \\< \\| \\\\`" + `.

## TexMECS (.texmecs)

` + "```" + `
<s|<a|John <b|loves|a> Mary|b>|s>
` + "```" + `

- ` + "`<e|`" + ` starts, ` + "`|e>`" + ` ends, ` + "`<e>`" + ` is a sole tag. Attributes: ` + "`<e a=\"v\"|`" + `.
- Overlap needs no layers; they are assigned on import.
- ` + "`|-e>`" + ` suspends, ` + "`<+e|`" + ` resumes. ` + "`<e~1|`" + ` adds a suffix, ` + "`<e@id|`" + ` an identifier.
- ` + "`<^e^id>`" + ` is a virtual copy of the element with that identifier.
- ` + "`<* comment *>`" + ` (nestable) and ` + "`<#CDATA<...>#CDATA>`" + `.

## LMNL (.lmnl)

` + "```" + `
[excerpt [source}The Housekeeper{source]}[l}On his own farm.{l]{excerpt]
` + "```" + `

- ` + "`[t}`" + ` opens, ` + "`{t]`" + ` closes, ` + "`{]`" + ` closes the innermost annotation. ` + "`[t]`" + ` is a milestone.
- Annotations sit inside the start tag and may nest: ` + "`[t [a}value{a]}`" + `.
- ` + "`[!-- comment --]`" + `.

## Import rules

1. A document is rejected if a range is never closed, a close has no open
   range, a resume has no suspended range, or an identifier is declared twice.
2. A close that could match several layers without naming one is rejected.
3. A range suspended and never resumed is kept, with a diagnostic.
4. Paths use forward slashes and must stay inside the corpus.
5. Sources are UTF-8.
`
